package scheduler

import (
	"context"
	"sync"
)

// Runner executes one scheduling run.
type Runner interface {
	Run(ctx context.Context, opts Options) (Report, error)
}

// Coordinator serialises runs and lets an operator abort the active one.
type Coordinator struct {
	runner Runner
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCoordinator wraps runner.
func NewCoordinator(runner Runner) *Coordinator {
	return &Coordinator{runner: runner}
}

// Start runs opts unless another run is active, in which case it returns
// ErrRunInProgress immediately.
func (c *Coordinator) Start(ctx context.Context, opts Options) (Report, error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return Report{}, ErrRunInProgress
	}
	rctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()
	return c.runner.Run(rctx, opts)
}

// Abort cancels the active run. It reports whether a run was active.
func (c *Coordinator) Abort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// Running reports whether a run is active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}
