package service

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedLock serializes work per order id. Transitions on different orders
// never contend with each other; two transitions on the same order run one
// after the other. Entries are dropped once the last holder releases.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*lockEntry)}
}

func (k *keyedLock) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

func (k *keyedLock) Unlock(key string) {
	k.mu.Lock()
	e := k.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
