package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
)

// lockFileName guards a local store directory against concurrent writers.
const lockFileName = ".trialscope.lock"

// DirLock is a cross-process exclusive lock on a store directory.
type DirLock struct {
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for dir. The lock file is <dir>/.trialscope.lock.
func NewDirLock(dir string) *DirLock {
	return &DirLock{flock: flock.New(filepath.Join(dir, lockFileName))}
}

// TryLock acquires the lock without blocking. A lock held by another process
// returns ErrCodeIndexLocked.
func (l *DirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return trialerrors.New(trialerrors.ErrCodeIndexLocked,
			"local store is being written by another process", nil).
			WithDetail("lock", l.flock.Path()).
			WithSuggestion("Wait for the running 'trialscope index' to finish")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe on an unlocked DirLock.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.flock.Path()
}
