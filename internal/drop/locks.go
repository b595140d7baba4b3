package drop

import "sync"

// slotLocks is a keyed mutex. Entries are reference counted and dropped
// once no goroutine holds or waits on them.
type slotLocks struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[string]*slotLock)}
}

// Lock blocks until key is free and returns the unlock function.
func (l *slotLocks) Lock(key string) func() {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &slotLock{}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// held returns how many keys currently have holders or waiters.
func (l *slotLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func slotKey(accountID, folder, originalName string) string {
	return accountID + "\x00" + folder + "\x00" + originalName
}
