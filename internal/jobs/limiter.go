package jobs

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting permit pool. Acquire blocks until a permit is
// free; waiters are served in arrival order.
type Limiter struct {
	sem  *semaphore.Weighted
	size int
}

func NewLimiter(size int) *Limiter {
	if size < 1 {
		size = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *Limiter) Release() {
	l.sem.Release(1)
}

func (l *Limiter) Size() int { return l.size }
