package chat

import (
	"sync"
)

// threadLocks hands out one mutex per thread id so concurrent turns on the
// same thread cannot interleave their read-modify-write of session state.
// Entries are reference counted and dropped when the last holder releases.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

func (t *threadLocks) acquire(threadID string) *threadLock {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return l
}

func (t *threadLocks) release(threadID string, l *threadLock) {
	l.Unlock()

	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, threadID)
	}
	t.mu.Unlock()
}
