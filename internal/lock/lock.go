// Package lock serializes forksync runs against one repository.
//
// The orchestrator assumes exclusive ownership of the working tree and git's
// index for the duration of a run; a second concurrent run is refused.
package lock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside the git directory.
const FileName = "forksync.lock"

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another forksync run holds the repository lock")

// RunLock is an exclusive advisory lock on a repository.
type RunLock struct {
	flock *flock.Flock
}

// Acquire takes the lock in gitDir without blocking.
func Acquire(gitDir string) (*RunLock, error) {
	path := filepath.Join(gitDir, FileName)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return &RunLock{flock: fl}, nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string { return l.flock.Path() }

// Release drops the lock. Safe to call more than once.
func (l *RunLock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
