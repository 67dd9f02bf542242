//go:build !windows

package sharc

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile acquires an exclusive, non-blocking advisory lock on f's
// underlying descriptor, so two handles cannot open the same database
// file for writing at once.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return errDatabaseLocked
	}
	return err
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
