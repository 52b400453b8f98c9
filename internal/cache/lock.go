package cache

// LockSuffix is appended to the artifact path to name its lock file
const LockSuffix = ".lock"

// FileLock is an advisory lock serializing the check-rebuild-persist
// sequence between concurrent invocations sharing a cache directory.
type FileLock struct {
	path string
	fd   int
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.path
}
