package archive

import (
	"path/filepath"
	"sync"
)

// pathLocks serializes in-place edits of the same archive within the process.
// Entries are dropped once no caller holds or waits for them.
var pathLocks = struct {
	sync.Mutex
	m map[string]*pathLock
}{m: make(map[string]*pathLock)}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// lockPath blocks until the caller holds the lock for path and returns the
// function that releases it.
func lockPath(path string) func() {
	key := lockKey(path)

	pathLocks.Lock()
	l, ok := pathLocks.m[key]
	if !ok {
		l = &pathLock{}
		pathLocks.m[key] = l
	}
	l.refs++
	pathLocks.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		pathLocks.Lock()
		l.refs--
		if l.refs == 0 {
			delete(pathLocks.m, key)
		}
		pathLocks.Unlock()
	}
}

// lockKey canonicalizes path so different spellings of one file share a lock.
func lockKey(path string) string {
	if p, err := realPath(path); err == nil {
		return p
	}
	if p, err := filepath.Abs(path); err == nil {
		return p
	}
	return filepath.Clean(path)
}
