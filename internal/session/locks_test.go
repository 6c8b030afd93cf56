package session

import (
	"sync"
	"testing"
)

func TestLocksSerializeSameID(t *testing.T) {
	locks := NewLocks()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock("session-1")
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestLocksIndependentIDs(t *testing.T) {
	locks := NewLocks()

	releaseA := locks.Lock("a")
	// Must not block on a different id.
	releaseB := locks.Lock("b")
	releaseB()
	releaseA()
}

func TestLocksEntriesCleaned(t *testing.T) {
	locks := NewLocks()

	release := locks.Lock("ephemeral")
	release()

	locks.mu.Lock()
	n := len(locks.locks)
	locks.mu.Unlock()
	if n != 0 {
		t.Errorf("lock table has %d entries after release, want 0", n)
	}
}
