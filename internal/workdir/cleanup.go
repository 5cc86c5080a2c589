package workdir

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"mergeflow/internal/logging"
)

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed        []string
	Skipped        []string // held by a live run
	Errors         []CleanupError
	ReclaimedBytes int64
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

func (r *CleanResult) fail(path string, err error) {
	r.Errors = append(r.Errors, CleanupError{Path: path, Error: err})
}

// CleanStale removes run directories older than maxAge. A maxAge of zero
// removes every run directory that is not locked by a live run. Directories
// that do not look like run directories are never touched.
func CleanStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	var result CleanResult
	if logger == nil {
		logger = logging.NewNop()
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	candidates, err := staleRunDirs(root, maxAge)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.fail(root, err)
		}
		return result
	}

	for _, dir := range candidates {
		if ctx.Err() != nil {
			break
		}
		size := treeSize(dir)
		removed, err := reap(dir)
		switch {
		case err != nil:
			result.fail(dir, err)
			logging.WarnWithContext(logger, "failed to remove stale run directory", "workdir_cleanup_failed",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		case !removed:
			result.Skipped = append(result.Skipped, dir)
		default:
			result.Removed = append(result.Removed, dir)
			result.ReclaimedBytes += size
			logger.Info("removed stale run directory",
				logging.String("path", dir),
				logging.String("size", humanize.IBytes(uint64(size))),
				logging.String(logging.FieldEventType, "workdir_cleanup"),
			)
		}
	}
	return result
}

// staleRunDirs lists run directories under root last modified before
// now-maxAge, or all of them when maxAge is zero.
func staleRunDirs(root string, maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), runDirPrefix) {
			continue
		}
		if maxAge > 0 {
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
		}
		out = append(out, filepath.Join(root, entry.Name()))
	}
	return out, nil
}

// reap removes dir if its run lock can be taken. It reports false without
// error when a live run holds the lock.
func reap(dir string) (bool, error) {
	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		return false, err
	}
	defer func() { _ = lock.Unlock() }()
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}

func treeSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
