package application

import "sync"

// IssueLocks hands out one mutex per submission thread. The dispatcher and the
// job workers share a single instance so body mutations and jobs for the same
// issue never interleave.
type IssueLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIssueLocks creates an empty lock table.
func NewIssueLocks() *IssueLocks {
	return &IssueLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (l *IssueLocks) Lock(key string) func() {
	m := l.get(key)
	m.Lock()
	return m.Unlock
}

func (l *IssueLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[key]
	if ok {
		return m
	}
	m = &sync.Mutex{}
	l.locks[key] = m
	return m
}
