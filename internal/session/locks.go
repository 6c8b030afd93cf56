package session

import "sync"

// Locks serializes turns per session id. Two requests against the same
// session run one after the other; requests against different sessions
// proceed in parallel.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty lock manager.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*lockEntry)}
}

// Lock acquires the lock for id, blocking until it is free, and returns
// the release function. Entries are reference counted so ids that no
// longer have waiters don't accumulate.
func (l *Locks) Lock(id string) (release func()) {
	l.mu.Lock()
	e := l.locks[id]
	if e == nil {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
