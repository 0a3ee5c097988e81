// Package artifact persists the single model artifact at a fixed location.
// It does not version, retain or roll back artifacts.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrArtifactIO marks any failure to read or write the artifact.
	ErrArtifactIO = errors.New("artifact I/O error")

	// ErrNotFound is returned by Read when no artifact exists yet. It also
	// matches ErrArtifactIO.
	ErrNotFound = fmt.Errorf("%w: artifact not found", ErrArtifactIO)
)

// Store is a single named artifact on the filesystem.
type Store struct {
	path string
}

// NewStore returns a Store for path. Nothing is created until Write. Paths
// with a ".." segment are rejected.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty artifact path", ErrArtifactIO)
	}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if seg == ".." {
			return nil, fmt.Errorf("%w: artifact path %q leaves the working tree", ErrArtifactIO, path)
		}
	}
	return &Store{path: path}, nil
}

// Path returns the artifact location.
func (s *Store) Path() string { return s.path }

// Exists reports whether the artifact is present.
func (s *Store) Exists() (bool, error) {
	info, err := os.Stat(s.path)
	if err == nil {
		if info.IsDir() {
			return false, fmt.Errorf("%w: %s is a directory", ErrArtifactIO, s.path)
		}
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %v", ErrArtifactIO, s.path, err)
}

// Read returns the artifact bytes.
func (s *Store) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrArtifactIO, s.path, err)
	}
	return data, nil
}

// Write replaces the artifact, creating parent directories. The bytes go to
// a synced sibling temp file that is then renamed over the artifact, so a
// concurrent Read sees the old or the new model, never a mix.
func (s *Store) Write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.ioErr("mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return s.ioErr("create temp for", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return s.ioErr("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return s.ioErr("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return s.ioErr("close", err)
	}
	// CreateTemp uses 0600.
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return s.ioErr("chmod", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return s.ioErr("replace", err)
	}
	renamed = true
	return nil
}

func (s *Store) ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrArtifactIO, op, s.path, err)
}
