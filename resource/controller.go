// Package resource bounds the background work the engine schedules:
// compaction runs, snapshot uploads and their IO throughput.
package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrBusy is returned by TryAcquireWorker when every slot is taken.
var ErrBusy = errors.New("resource: all background workers busy")

// Limits holds the configured ceilings. Zero values mean unlimited, except
// MaxBackgroundWorkers which defaults to 1.
type Limits struct {
	// MemoryLimitBytes caps memory reserved for rebuild scratch state.
	MemoryLimitBytes int64

	// MaxBackgroundWorkers caps concurrent background jobs (compactions,
	// snapshot uploads).
	MaxBackgroundWorkers int64

	// IOBytesPerSec throttles snapshot and WAL IO.
	IOBytesPerSec int64
}

// Controller enforces Limits. A nil Controller enforces nothing, so callers
// can thread it through unconditionally.
type Controller struct {
	limits Limits

	memSem  *semaphore.Weighted
	memUsed atomic.Int64

	workers *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller for the given limits.
func NewController(limits Limits) *Controller {
	if limits.MaxBackgroundWorkers <= 0 {
		limits.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		limits:  limits,
		workers: semaphore.NewWeighted(limits.MaxBackgroundWorkers),
	}
	if limits.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(limits.MemoryLimitBytes)
	}
	if limits.IOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(limits.IOBytesPerSec), int(limits.IOBytesPerSec))
	}
	return c
}

// AcquireWorker blocks until a background slot is free or ctx is done.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workers.Acquire(ctx, 1)
}

// TryAcquireWorker grabs a background slot without blocking.
func (c *Controller) TryAcquireWorker() error {
	if c == nil {
		return nil
	}
	if !c.workers.TryAcquire(1) {
		return ErrBusy
	}
	return nil
}

// ReleaseWorker returns a background slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workers.Release(1)
}

// ReserveMemory blocks until the requested bytes fit under the memory limit.
func (c *Controller) ReserveMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns reserved bytes.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage reports currently reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// WaitIO blocks until the IO budget allows bytes more to be transferred.
func (c *Controller) WaitIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	// rate.Limiter rejects waits larger than its burst; split them.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
