package sequence

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	chat := uuid.New()

	var (
		wg      sync.WaitGroup
		counter int
		seen    = make(map[int]bool)
		seenMu  sync.Mutex
	)
	const n = 200
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(chat)
			v := counter
			counter = v + 1
			unlock()

			seenMu.Lock()
			seen[v] = true
			seenMu.Unlock()
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			t.Errorf("value %d never observed", i)
		}
	}
	if k.Len() != 0 {
		t.Errorf("Len() = %d after all unlocks, want 0", k.Len())
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	a, b := uuid.New(), uuid.New()

	unlockA := k.Lock(a)
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock(b)
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
