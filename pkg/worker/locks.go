package worker

import "sync"

// keyedMutex provides mutual exclusion per target key, so two jobs for the
// same blueprint or range never run concurrently while jobs for different
// targets proceed in parallel. Entries are reference counted and removed
// when the last holder or waiter releases, so the map does not grow with
// every target ever locked.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// lockEntry is one key's mutex plus the count of holders and waiters.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
