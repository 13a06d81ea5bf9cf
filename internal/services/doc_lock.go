package services

import "sync"

// docLocks serialises mutations per document id. Entries are dropped once
// no goroutine holds or waits on them.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*refMutex)}
}

// Lock blocks until id is free and returns the matching unlock func
func (l *docLocks) Lock(id string) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &refMutex{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *docLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
