// Package tempstore owns short-lived media files spooled to the local
// filesystem. Every Resource is released exactly once regardless of how many
// times Release is called; the store can sweep anything left behind.
package tempstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Resource is one scoped temporary file. Release is idempotent.
type Resource struct {
	path string
	once sync.Once
	err  error
}

// Path returns the absolute path of the underlying file.
func (r *Resource) Path() string { return r.path }

// Release deletes the underlying file. Safe to call multiple times; only the
// first call performs the deletion.
func (r *Resource) Release() error {
	r.once.Do(func() {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			r.err = fmt.Errorf("tempstore: release %s: %w", r.path, err)
		}
	})
	return r.err
}

// Store spools temporary media under a dedicated directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
// If dir is empty the system temp directory is used.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "speechd")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("tempstore: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the spool directory.
func (s *Store) Dir() string { return s.dir }

// Save writes the reader's content to a new uniquely named file. The ext
// argument (e.g. ".wav") is appended to the generated name; it may be empty.
func (s *Store) Save(reader io.Reader, ext string) (*Resource, error) {
	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("tempstore: create %s: %w", path, err)
	}

	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("tempstore: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("tempstore: close %s: %w", path, err)
	}

	return &Resource{path: path}, nil
}

// Create reserves a new uniquely named path without writing content.
// Used for tool output files (ffmpeg writes the file itself).
func (s *Store) Create(ext string) *Resource {
	name := uuid.New().String() + ext
	return &Resource{path: filepath.Join(s.dir, name)}
}

// Count returns the number of files currently in the spool directory.
func (s *Store) Count() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("tempstore: read dir %s: %w", s.dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// Sweep removes every file in the spool directory. Intended for startup
// recovery after an unclean shutdown.
func (s *Store) Sweep() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("tempstore: read dir %s: %w", s.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("tempstore: sweep %s: %w", e.Name(), err)
		}
	}
	return nil
}
