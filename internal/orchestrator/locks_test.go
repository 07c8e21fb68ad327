package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetLocksSerializePerTarget(t *testing.T) {
	locks := newTargetLocks()

	var mu sync.Mutex
	var holders int
	var maxHolders int

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("https://example.com")
			defer unlock()

			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()

			mu.Lock()
			holders--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxHolders, "only one holder per target at a time")
}

func TestTargetLocksIndependentTargets(t *testing.T) {
	locks := newTargetLocks()

	unlockA := locks.lock("https://a.test")
	// A held lock on one target must not block another target.
	unlockB := locks.lock("https://b.test")
	unlockB()
	unlockA()

	assert.Empty(t, locks.locks, "entries are removed once released")
}

func TestTargetLocksCleanup(t *testing.T) {
	locks := newTargetLocks()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("https://example.com")
			unlock()
		}()
	}
	wg.Wait()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
