package reconciliation

import "sync"

// refLocks serializes effect runs per transaction reference within this
// process. Entries are dropped once nobody holds or waits for them.
type refLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (l *refLocks) lock(ref string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*refLock)
	}
	k, ok := l.locks[ref]
	if !ok {
		k = &refLock{}
		l.locks[ref] = k
	}
	k.refs++
	l.mu.Unlock()

	k.Lock()
	return func() {
		k.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.locks, ref)
		}
		l.mu.Unlock()
	}
}
