package resilience

import "errors"

// ErrBulkheadFull is returned when the admission channel has no free slot.
var ErrBulkheadFull = errors.New("BULKHEAD_FULL")

// Bulkhead bounds the number of concurrent in-flight calls via a buffered
// channel used as a semaphore.
type Bulkhead struct {
	slots chan struct{}
}

// NewBulkhead creates a Bulkhead admitting at most maxConcurrent calls.
func NewBulkhead(maxConcurrent int) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Bulkhead{slots: make(chan struct{}, maxConcurrent)}
}

// TryAcquire attempts to reserve a slot without blocking. On success, the
// caller must call the returned release func exactly once.
func (b *Bulkhead) TryAcquire() (release func(), ok bool) {
	select {
	case b.slots <- struct{}{}:
		return func() { <-b.slots }, true
	default:
		return nil, false
	}
}

// InFlight returns the number of currently reserved slots.
func (b *Bulkhead) InFlight() int {
	return len(b.slots)
}
