package reconcile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderLocksSerializeSameOrder(t *testing.T) {
	locks := newOrderLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire(1)
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestOrderLocksReleaseFreesEntry(t *testing.T) {
	locks := newOrderLocks()

	release := locks.Acquire(7)
	release()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}

func TestOrderLocksIndependentOrders(t *testing.T) {
	locks := newOrderLocks()

	releaseA := locks.Acquire(1)
	defer releaseA()

	// A second order must not block behind the first
	done := make(chan struct{})
	go func() {
		releaseB := locks.Acquire(2)
		releaseB()
		close(done)
	}()
	<-done
}
