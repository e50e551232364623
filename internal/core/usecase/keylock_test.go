package usecase

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	lock := NewKeyLock()

	const goroutines = 200
	var counter int
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			lock.Lock("user:1")
			counter++
			lock.Unlock("user:1")
		}()
	}

	wg.Wait()
	assert.Equal(t, goroutines, counter)
}

func TestKeyLockDifferentKeysDoNotBlock(t *testing.T) {
	lock := NewKeyLock()

	lock.Lock("user:1")
	done := make(chan struct{})
	go func() {
		lock.Lock("user:2")
		lock.Unlock("user:2")
		close(done)
	}()
	<-done
	lock.Unlock("user:1")
}

func TestKeyLockReleasesIdleEntries(t *testing.T) {
	lock := NewKeyLock()
	lock.Lock("a")
	lock.Unlock("a")

	lock.mu.Lock()
	defer lock.mu.Unlock()
	assert.Empty(t, lock.locks)
}
