// Package blob stores captured image payloads as PNG files on disk. The
// history database holds only the blob name; keeping pixel data out of the
// database keeps history queries cheap.
package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store is a flat directory of PNG blobs addressed by name.
type Store struct {
	dir string
}

// Open creates the image directory under baseDir if needed.
func Open(baseDir string) (*Store, error) {
	dir := filepath.Join(baseDir, "images")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory blobs live in.
func (s *Store) Dir() string { return s.dir }

// Save writes png under a name derived from id and returns that name.
func (s *Store) Save(id string, png []byte) (string, error) {
	name := id + ".png"
	if err := os.WriteFile(filepath.Join(s.dir, name), png, 0o600); err != nil {
		return "", fmt.Errorf("write image blob: %w", err)
	}
	return name, nil
}

// Load reads a blob by name.
func (s *Store) Load(name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid blob name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read image blob: %w", err)
	}
	return data, nil
}

// Delete removes a blob. Deleting an absent blob is not an error.
func (s *Store) Delete(name string) error {
	if !validName(name) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image blob: %w", err)
	}
	return nil
}

// Sweep deletes every blob whose name is not in keep and returns how many
// were removed. Run at startup to drop blobs orphaned by a crash between a
// history delete and its blob delete.
func (s *Store) Sweep(keep []string) (int, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		keepSet[name] = struct{}{}
	}

	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("scan image dir: %w", err)
	}

	removed := 0
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		if _, ok := keepSet[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return removed, fmt.Errorf("sweep %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

// validName rejects names that could escape the store directory.
func validName(name string) bool {
	return name != "" && name == filepath.Base(name) && !strings.HasPrefix(name, ".")
}
