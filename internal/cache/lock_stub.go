//go:build !linux && !freebsd && !darwin

package cache

// Lock is a no-op on platforms without flock(2); concurrent invocations
// race and the last writer wins.
func Lock(artifactPath string) (*FileLock, error) {
	return &FileLock{path: artifactPath + LockSuffix, fd: -1}, nil
}

// Unlock is a no-op on this platform
func (l *FileLock) Unlock() error {
	return nil
}
