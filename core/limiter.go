package core

import (
	"fmt"
	"sync"
)

// DepthLimiter bounds the number of counted transitions (handoffs, tool
// calls, implicit returns) within a single run.
type DepthLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewDepthLimiter creates a limiter allowing max transitions.
// If max == 0, unlimited transitions are allowed.
func NewDepthLimiter(max int) *DepthLimiter {
	return &DepthLimiter{max: max}
}

// Increment records one transition. When the transition would take the
// counter past the maximum it is not recorded and ErrDepthExceeded is
// returned, so the caller must not perform it.
func (dl *DepthLimiter) Increment() error {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.max > 0 && dl.count+1 > dl.max {
		return fmt.Errorf("%w: limit %d reached", ErrDepthExceeded, dl.max)
	}
	dl.count++

	return nil
}

// Count returns the number of transitions performed.
func (dl *DepthLimiter) Count() int {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	return dl.count
}

// Remaining returns how many transitions are left before hitting the limit.
func (dl *DepthLimiter) Remaining() int {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if dl.max == 0 {
		return -1 // unlimited
	}

	return dl.max - dl.count
}
