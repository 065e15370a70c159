package os

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("already locked by another process")

type Flock struct {
	f *flock.Flock
}

// NewFileLock makes a lock file in the dir.
func NewFileLock(dir string) (*Flock, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := CheckCreateDir(dir); err != nil {
		return nil, err
	}
	return &Flock{f: flock.New(filepath.Join(dir, "livecast.lock"))}, nil
}

// TryLock takes the lock without waiting.
func (f *Flock) TryLock() error {
	ok, err := f.f.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (f *Flock) Unlock() error { return f.f.Unlock() }
