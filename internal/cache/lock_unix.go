//go:build linux || freebsd || darwin

package cache

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock blocks until an exclusive flock(2) is held on artifactPath + LockSuffix.
// The lock is released by Unlock or when the process exits.
func Lock(artifactPath string) (*FileLock, error) {
	path := artifactPath + LockSuffix

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	for {
		err = unix.Flock(fd, unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to lock %s: %w", path, os.NewSyscallError("flock", err))
	}

	return &FileLock{path: path, fd: fd}, nil
}

// Unlock releases the lock. The lock file itself is left in place so that
// other waiters keep locking the same inode.
func (l *FileLock) Unlock() error {
	if l == nil || l.fd < 0 {
		return nil
	}
	fd := l.fd
	l.fd = -1

	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	return unix.Close(fd)
}
