// Package runlock guards periodically scheduled batch processes against
// overlapping runs with an advisory file lock.
package runlock

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ReleaseFunc releases an acquired lock. Safe to call more than once.
type ReleaseFunc func() error

// Acquire takes the exclusive non-blocking lock named name under dir. It
// returns ok=false when another process already holds the lock; an error
// means the lock file itself could not be used.
func Acquire(dir, name string) (ReleaseFunc, bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, errors.Wrapf(err, "creating lock dir %s", dir)
	}

	lock := flock.New(filepath.Join(dir, name+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, false, errors.Wrapf(err, "acquiring lock %s", name)
	}
	if !ok {
		return nil, false, nil
	}
	return func() error { return lock.Unlock() }, true, nil
}
