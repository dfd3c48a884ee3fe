package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-payments/core"
)

// Runner polls the retry ledger and dispatches due tasks until its context
// is canceled. It backs off to the idle delay when a pass claims nothing so
// an empty ledger does not turn into a tight polling loop.
type Runner struct {
	Pipeline *Pipeline
	Observer core.Observer
	Config   core.RetryConfig
}

func NewRunner(pipeline *Pipeline) (*Runner, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("retry: pipeline is required")
	}
	return &Runner{
		Pipeline: pipeline,
		Config:   pipeline.Config,
	}, nil
}

// Run blocks until ctx is canceled. Claim errors are logged and retried on
// the next tick; a broken store must not kill the loop.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.Pipeline == nil {
		return core.NewInternalError("retry: runner is not configured")
	}
	interval := r.Config.PollInterval
	if interval <= 0 {
		interval = core.DefaultConfig().Retry.PollInterval
	}
	idleDelay := r.Config.IdleDelay
	if idleDelay <= 0 {
		idleDelay = core.DefaultConfig().Retry.IdleDelay
	}

	r.Observer.LogInfo(ctx, "retry runner started", map[string]any{
		"poll_interval": interval.String(),
		"idle_delay":    idleDelay.String(),
		"batch_size":    r.Config.BatchSize,
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Observer.LogInfo(context.Background(), "retry runner stopping", map[string]any{
				"reason": ctx.Err().Error(),
			})
			return ctx.Err()
		case <-ticker.C:
			stats, err := r.Pipeline.DispatchDue(ctx, r.Config.BatchSize)
			if err != nil {
				r.Observer.LogError(ctx, "retry runner dispatch pass failed", map[string]any{
					"error": err.Error(),
				})
				continue
			}
			if stats.Claimed == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(idleDelay):
				}
			}
		}
	}
}
