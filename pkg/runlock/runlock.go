// Package runlock guarantees a single writer per data directory.
package runlock

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/gofrs/flock"
)

// Lock is an exclusive, non-blocking file lock.
type Lock struct {
	lock *flock.Flock
}

// Acquire takes the lock at path or fails immediately with a 409 error when
// another process holds it.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !locked {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "another writer holds %s", path)
	}
	return &Lock{lock: l}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.lock.Path()
}

// Release unlocks. It is safe to call more than once.
func (l *Lock) Release() error {
	return l.lock.Unlock()
}
