package orchestrator

import "sync"

// targetLocks is a keyed mutex serializing admission decisions per target
// URL. Correctness needs at-most-one admission decision in flight per
// target, not global serialization, so each target gets its own lock.
// Entries are reference-counted and removed once the last holder releases,
// keeping the map from growing with every target ever scanned.
type targetLocks struct {
	mu    sync.Mutex
	locks map[string]*targetLock
}

type targetLock struct {
	mu   sync.Mutex
	refs int
}

func newTargetLocks() *targetLocks {
	return &targetLocks{locks: make(map[string]*targetLock)}
}

// lock acquires the lock for the target and returns its release func.
// The release func must be called on every exit path.
func (t *targetLocks) lock(target string) func() {
	t.mu.Lock()
	entry, ok := t.locks[target]
	if !ok {
		entry = &targetLock{}
		t.locks[target] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, target)
		}
		t.mu.Unlock()
	}
}
