package service

import "sync"

// submissionLocks serialises mutating operations per submission id inside
// the process. Entries are dropped once no goroutine holds or waits on them.
type submissionLocks struct {
	mu    sync.Mutex
	locks map[string]*submissionLock
}

type submissionLock struct {
	mu   sync.Mutex
	refs int
}

func newSubmissionLocks() *submissionLocks {
	return &submissionLocks{locks: make(map[string]*submissionLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (l *submissionLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &submissionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *submissionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
