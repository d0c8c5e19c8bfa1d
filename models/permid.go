package models

import "github.com/gofrs/uuid"

// PermID is a stable opaque identifier for an equity, independent of its
// current ticker symbol (the GLOSSARY's "Permanent identifier"). It is
// backed by a UUID the way models.Asset.ID is in the teacher, but exposed
// as its string form since every on-disk artifact and lookup in this
// system treats it as an opaque sortable string.
type PermID string

// NewPermID generates a fresh permanent identifier, mirroring
// models.Asset.BeforeCreate's uuid.Must(uuid.NewV4()).String() pattern.
func NewPermID() PermID {
	return PermID(uuid.Must(uuid.NewV4()).String())
}

func (p PermID) String() string {
	return string(p)
}
