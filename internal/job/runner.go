// Package job provides the periodic runner shared by the engine's background
// jobs (value snapshots, withdrawal expiry sweeps).
package job

import (
	"context"
	"sync"
	"time"

	"github.com/portfolio-engine/internal/logging"
)

// Func is one run of a background job. It returns how many items were
// processed and any terminal error; errors are logged, not fatal.
type Func func(ctx context.Context) (int, error)

// Runner executes a job immediately and then on a fixed interval until
// stopped. An interval of zero runs the job exactly once.
type Runner struct {
	name     string
	interval time.Duration
	fn       Func

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewRunner creates a runner for a named job
func NewRunner(name string, interval time.Duration, fn Func) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		fn:       fn,
		stopCh:   make(chan struct{}),
	}
}

// Run blocks until the runner is stopped or the context is cancelled.
// The first run happens immediately.
func (r *Runner) Run(ctx context.Context) {
	logger := logging.FromContext(ctx).WithField("job", r.name)

	r.runOnce(ctx)
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-r.stopCh:
			logger.Info("Job runner stopped")
			return
		case <-ctx.Done():
			logger.Info("Job runner context cancelled")
			return
		}
	}
}

// Stop signals the runner to exit after the current run
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.stopCh)
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	logger := logging.FromContext(ctx).WithField("job", r.name)
	start := time.Now()

	processed, err := r.fn(ctx)
	if err != nil {
		logger.WithError(err).Error("Job run failed")
		return
	}

	logger.WithFields(map[string]interface{}{
		"processed": processed,
		"duration":  time.Since(start).String(),
	}).Info("Job run completed")
}
