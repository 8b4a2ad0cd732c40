package repository

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLockHeld is returned when another backy process already holds the
// repository lock (spec.md §7's LockHeld).
var ErrLockHeld = errors.New("repository: lock held by another process")

const lockFileName = ".backy.lock"

// lock acquires the repository's single exclusive-or-shared file lock
// (spec.md §4.3). It returns a release function that must be called on
// every exit path, including failure.
func (r *Repository) lock(exclusive bool) (release func(), err error) {
	path := filepath.Join(r.dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, err
	}

	how := unix.LOCK_SH | unix.LOCK_NB
	if exclusive {
		how = unix.LOCK_EX | unix.LOCK_NB
	}

	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLockHeld
		}
		return nil, err
	}

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
