package reconcile

import "sync"

// orderLocks serializes Handle calls per order ID within this process. Entries
// are reference-counted and removed once the last holder releases, so the map
// does not grow with order cardinality.
type orderLocks struct {
	mu    sync.Mutex
	locks map[int64]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[int64]*orderLock)}
}

// Acquire blocks until the per-order lock is held and returns the release func
func (ol *orderLocks) Acquire(orderID int64) func() {
	ol.mu.Lock()
	l, ok := ol.locks[orderID]
	if !ok {
		l = &orderLock{}
		ol.locks[orderID] = l
	}
	l.refs++
	ol.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		ol.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(ol.locks, orderID)
		}
		ol.mu.Unlock()
	}
}
