package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked reports that another supervisor already runs a daemon against
// the same Recoll configuration directory.
var ErrLocked = errors.New("index lock held by another supervisor")

// indexLock is an advisory file lock guarding one conf dir.
type indexLock struct {
	fl *flock.Flock
}

func acquireIndexLock(path string) (*indexLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &indexLock{fl: fl}, nil
}

func (l *indexLock) Path() string {
	if l == nil {
		return ""
	}
	return l.fl.Path()
}

func (l *indexLock) release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
