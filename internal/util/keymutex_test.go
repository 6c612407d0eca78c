package util

import (
	"errors"
	"sync"
	"testing"
)

func TestKeyMutexSerializesSameKey(t *testing.T) {
	m := NewKeyMutex()

	const workers = 50
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			m.WithLock("submission:1", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d", counter, workers)
	}
}

func TestKeyMutexIndependentKeysDoNotBlock(t *testing.T) {
	m := NewKeyMutex()

	m.Lock("submission:1")
	defer m.Unlock("submission:1")

	done := make(chan struct{})
	go func() {
		m.WithLock("submission:2", func() error { return nil })
		close(done)
	}()
	<-done
}

func TestKeyMutexWithLockPropagatesError(t *testing.T) {
	m := NewKeyMutex()
	want := errors.New("boom")
	if got := m.WithLock("k", func() error { return want }); got != want {
		t.Errorf("WithLock error = %v, want %v", got, want)
	}
}

func TestKeyMutexReleasesAfterWithLock(t *testing.T) {
	m := NewKeyMutex()
	m.WithLock("k", func() error { return nil })

	// Re-acquiring the same key must not deadlock.
	m.WithLock("k", func() error { return nil })

	m.mu.Lock()
	n := len(m.locks)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("lock table has %d entries after release, want 0", n)
	}
}
