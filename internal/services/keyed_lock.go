package services

import (
	"fmt"
	"sync"
)

// ledgerKey identifies one fee schedule.
type ledgerKey struct {
	clientID int64
	year     int
}

func (k ledgerKey) String() string {
	return fmt.Sprintf("%d:%d", k.clientID, k.year)
}

// keyedLocker hands out one mutex per ledger key. Entries are dropped when
// the last holder or waiter releases them, so the map only holds keys that
// are in use.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[ledgerKey]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[ledgerKey]*keyedEntry)}
}

// Lock blocks until the key is free and returns the matching unlock.
func (k *keyedLocker) Lock(key ledgerKey) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
