package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner runs fire-and-forget jobs detached from the request that started
// them, each with its own deadline.
type Runner struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner creates a Runner. A zero timeout defaults to 30s.
func NewRunner(timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Go starts fn in the background. Panics are recovered and logged.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background job panicked", zap.String("job", name), zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.logger.Warn("background job failed", zap.String("job", name), zap.Error(err))
		}
	}()
}

// Wait blocks until all started jobs have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
