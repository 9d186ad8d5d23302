package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestMap_SerializesSameKey(t *testing.T) {
	var (
		l       Map
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("a")
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("same key held concurrently by %d goroutines", maxSeen)
	}
	if l.Len() != 0 {
		t.Fatalf("entries leaked: %d", l.Len())
	}
}

func TestMap_DifferentKeysIndependent(t *testing.T) {
	var l Map
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		l.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
}
