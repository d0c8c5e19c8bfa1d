package universe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/alpacahq/gopaca/log"

	"github.com/alpacahq/refdata/internal/atomicfile"
	"github.com/alpacahq/refdata/models"
)

// permIDStore assigns and persists a stable permanent identifier per
// ticker, so a CoarseRow's permId (§3) stays constant across successive
// coarse-generation runs rather than being re-minted every day. Neither
// §4.5.1 nor §3 names where permanent identifiers come from; the teacher
// has no direct counterpart (its asset IDs are assigned at account-open
// time by a database), so this is new code grounded on models.NewPermID's
// uuid generation and the atomic-write pattern used everywhere else in
// this module.
type permIDStore struct {
	path string

	mu sync.Mutex
	m  map[string]models.PermID
}

func newPermIDStore(rootDir string) *permIDStore {
	s := &permIDStore{
		path: filepath.Join(rootDir, "equity", "usa", "fundamental", "permid_map.json"),
		m:    map[string]models.PermID{},
	}
	s.load()
	return s
}

func (s *permIDStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &s.m); err != nil {
		log.Warn("permid store: corrupt map file, starting empty", "error", err)
		s.m = map[string]models.PermID{}
	}
}

func (s *permIDStore) save() {
	data, err := json.MarshalIndent(s.m, "", "  ")
	if err != nil {
		return
	}
	if err := atomicfile.Write(s.path, data, 0o644); err != nil {
		log.Warn("permid store: write failed", "error", err)
	}
}

func (s *permIDStore) getOrCreate(ticker string) models.PermID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.m[ticker]; ok {
		return id
	}
	id := models.NewPermID()
	s.m[ticker] = id
	s.save()
	return id
}
