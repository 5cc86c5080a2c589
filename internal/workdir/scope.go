package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"mergeflow/internal/services"
	"mergeflow/internal/textutil"
)

const (
	runDirPrefix = "run-"
	lockFileName = ".lock"
)

// Scope is a run-owned directory.
type Scope struct {
	dir  string
	lock *flock.Flock

	mu       sync.Mutex
	released bool
	releaseE error
}

// Acquire creates and locks a run directory under root. It fails with
// services.ErrConflict when another process holds the same directory.
func Acquire(root string, ownerID int64, runID string) (*Scope, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workdir", "acquire", "work root is empty", nil)
	}
	name := fmt.Sprintf("%s%d-%s", runDirPrefix, ownerID, textutil.SanitizeToken(runID))
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock run directory: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConflict, "workdir", "acquire", dir+" is held by another run", nil)
	}
	return &Scope{dir: dir, lock: lock}, nil
}

// Dir returns the run directory.
func (s *Scope) Dir() string { return s.dir }

// PairDir returns the directory for the pair at index, creating it.
func (s *Scope) PairDir(index int) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.dir, fmt.Sprintf("pair-%03d", index))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create pair directory: %w", err)
	}
	return dir, nil
}

// RemovePair deletes the directory of one pair and everything in it.
func (s *Scope) RemovePair(index int) error {
	if err := s.checkOpen(); err != nil {
		return nil
	}
	return os.RemoveAll(filepath.Join(s.dir, fmt.Sprintf("pair-%03d", index)))
}

// Artifacts lists every file left under the run directory, excluding the
// lock file.
func (s *Scope) Artifacts() []string {
	var files []string
	_ = filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && path != filepath.Join(s.dir, lockFileName) {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// Release removes the run directory and drops the lock. It is safe to call
// more than once; later calls return the first result.
func (s *Scope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return s.releaseE
	}
	s.released = true
	removeErr := os.RemoveAll(s.dir)
	unlockErr := s.lock.Unlock()
	s.releaseE = errors.Join(removeErr, unlockErr)
	return s.releaseE
}

func (s *Scope) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return services.Wrap(services.ErrValidation, "workdir", "use", "scope already released", nil)
	}
	return nil
}
