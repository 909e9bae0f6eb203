package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ConcurrencyLimiter admits at most capacity scrapes at once. Waiters are
// served in FIFO order and a released slot goes straight to the oldest
// waiter, so a late Acquire cannot overtake the queue.
type ConcurrencyLimiter struct {
	sem      *semaphore.Weighted
	capacity int

	inFlight atomic.Int64
	waiting  atomic.Int64
}

// NewConcurrencyLimiter returns a limiter with the given number of slots.
func NewConcurrencyLimiter(capacity int) *ConcurrencyLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &ConcurrencyLimiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is granted or ctx is done.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	c.waiting.Add(1)
	err := c.sem.Acquire(ctx, 1)
	c.waiting.Add(-1)
	if err != nil {
		return err
	}
	c.inFlight.Add(1)
	return nil
}

// Release returns a slot taken by Acquire.
func (c *ConcurrencyLimiter) Release() {
	c.inFlight.Add(-1)
	c.sem.Release(1)
}

// InFlight is the number of slots currently held.
func (c *ConcurrencyLimiter) InFlight() int {
	return int(c.inFlight.Load())
}

// Waiting is the number of callers blocked in Acquire.
func (c *ConcurrencyLimiter) Waiting() int {
	return int(c.waiting.Load())
}

// Capacity is the configured number of slots.
func (c *ConcurrencyLimiter) Capacity() int {
	return c.capacity
}
