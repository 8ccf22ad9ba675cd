package lifecycle

import "sync"

// keyedMutex serializes transitions per work order. Entries are small
// and live for the process lifetime.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

func (km *keyedMutex) Lock(key int64) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &sync.Mutex{}
		km.locks[key] = l
	}
	km.mu.Unlock()
	l.Lock()
}

func (km *keyedMutex) Unlock(key int64) {
	km.mu.Lock()
	l := km.locks[key]
	km.mu.Unlock()
	if l != nil {
		l.Unlock()
	}
}
