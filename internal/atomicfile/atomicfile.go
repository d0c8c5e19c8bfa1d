// Package atomicfile provides temp-file-then-rename writes so partial
// writes are never observable to concurrent readers, per the spec's
// concurrency & resource model.
package atomicfile

import (
	"os"
	"path/filepath"
)

// Write writes data to path by first writing to a sibling temp file and
// then renaming it into place. The rename is atomic on the same
// filesystem, so a reader either sees the old contents or the complete
// new contents, never a partial write.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
