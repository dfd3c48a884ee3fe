package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/goliatone/go-payments/core"
)

// Reconciler is the subset of the reconcile engine the pipeline drives.
type Reconciler interface {
	Reconcile(ctx context.Context, event core.PaymentEvent) (core.ReconcileResult, error)
	ReconcileVerification(ctx context.Context, verification core.GatewayVerification) (core.ReconcileResult, error)
}

// DispatchStats summarizes one dispatch pass over the retry ledger.
type DispatchStats struct {
	Claimed      int
	Completed    int
	Retried      int
	DeadLettered int
}

// Pipeline moves retry tasks through their lifecycle. Replay tasks re-apply
// the persisted payment event; verify tasks ask the gateway for the current
// transaction state instead of trusting a stored payload.
type Pipeline struct {
	Tasks    core.RetryTaskStore
	Engine   Reconciler
	Gateway  core.GatewayClient
	Alerts   core.AlertSink
	Observer core.Observer
	Config   core.RetryConfig
	Now      func() time.Time
}

func NewPipeline(tasks core.RetryTaskStore, engine Reconciler) (*Pipeline, error) {
	if tasks == nil {
		return nil, fmt.Errorf("retry: task store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("retry: reconcile engine is required")
	}
	return &Pipeline{
		Tasks:  tasks,
		Engine: engine,
		Alerts: core.NopAlertSink{},
		Config: core.DefaultConfig().Retry,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// EnqueueReplay persists a replay task for a delivery that failed inline.
// The first attempt is scheduled one backoff interval out; the inline
// attempt already failed, so an immediate retry would hit the same state.
func (p *Pipeline) EnqueueReplay(ctx context.Context, event core.PaymentEvent, cause error) (core.RetryTask, error) {
	if p == nil || p.Tasks == nil {
		return core.RetryTask{}, core.NewInternalError("retry: pipeline is not configured")
	}
	if !event.Processable() {
		return core.RetryTask{}, core.NewMalformedPayloadError("retry: event is not processable")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return core.RetryTask{}, core.NewInternalError(fmt.Sprintf("retry: encode replay payload: %v", err))
	}
	return p.enqueue(ctx, core.RetryTask{
		Reference: event.Reference,
		Kind:      core.TaskKindReplay,
		Payload:   payload,
	}, cause)
}

// EnqueueVerify persists a verify task. Used when the raw payload cannot be
// trusted or no longer exists and the reference must be re-checked with the
// gateway.
func (p *Pipeline) EnqueueVerify(ctx context.Context, reference string, cause error) (core.RetryTask, error) {
	if p == nil || p.Tasks == nil {
		return core.RetryTask{}, core.NewInternalError("retry: pipeline is not configured")
	}
	if reference == "" {
		return core.RetryTask{}, core.NewMalformedPayloadError("retry: reference is required")
	}
	return p.enqueue(ctx, core.RetryTask{
		Reference: reference,
		Kind:      core.TaskKindVerify,
	}, cause)
}

func (p *Pipeline) enqueue(ctx context.Context, task core.RetryTask, cause error) (core.RetryTask, error) {
	startedAt := p.nowUTC()
	nextAttemptAt := startedAt.Add(p.backoffDelay(1))
	task.Status = core.TaskStatusPending
	task.MaxAttempts = p.maxAttempts()
	task.NextAttemptAt = &nextAttemptAt
	if cause != nil {
		task.LastError = cause.Error()
	}

	stored, err := p.Tasks.Enqueue(ctx, task)
	p.Observer.ObserveOperation(ctx, startedAt, "retry_enqueue", err, map[string]any{
		"reference": task.Reference,
		"task_kind": string(task.Kind),
	})
	if err != nil {
		return core.RetryTask{}, core.NewStoreUnavailableError(err, "retry: persist retry task")
	}
	return stored, nil
}

// DispatchDue claims up to batchSize due tasks and processes each one.
// Task failures are absorbed into the ledger, not returned; the error
// return covers claim failures only, so a runner can distinguish a broken
// store from ordinary task churn.
func (p *Pipeline) DispatchDue(ctx context.Context, batchSize int) (DispatchStats, error) {
	if p == nil || p.Tasks == nil || p.Engine == nil {
		return DispatchStats{}, core.NewInternalError("retry: pipeline is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = p.Config.BatchSize
	}
	if limit <= 0 {
		limit = core.DefaultConfig().Retry.BatchSize
	}
	startedAt := p.nowUTC()

	tasks, err := p.Tasks.ClaimDue(ctx, limit, startedAt)
	if err != nil {
		return DispatchStats{}, core.NewStoreUnavailableError(err, "retry: claim due tasks")
	}

	stats := DispatchStats{Claimed: len(tasks)}
	for _, task := range tasks {
		p.dispatchOne(ctx, task, &stats)
	}

	p.Observer.ObserveOperation(ctx, startedAt, "retry_dispatch", nil, map[string]any{
		"claimed":       stats.Claimed,
		"completed":     stats.Completed,
		"retried":       stats.Retried,
		"dead_lettered": stats.DeadLettered,
	})
	return stats, nil
}

func (p *Pipeline) dispatchOne(ctx context.Context, task core.RetryTask, stats *DispatchStats) {
	startedAt := p.nowUTC()
	result, err := p.processTask(ctx, task)

	p.Observer.ObserveOperation(ctx, startedAt, "retry_task", err, map[string]any{
		"reference": task.Reference,
		"task_kind": string(task.Kind),
		"attempts":  task.Attempts,
		"outcome":   string(result.Outcome),
	})

	if err == nil {
		if completeErr := p.Tasks.Complete(ctx, task.ID); completeErr != nil {
			p.Observer.LogError(ctx, "retry: complete task", map[string]any{
				"task_id": task.ID,
				"error":   completeErr.Error(),
			})
			return
		}
		stats.Completed++
		return
	}

	if !core.IsRetryable(err) || task.Exhausted() {
		p.deadLetter(ctx, task, err, stats)
		return
	}

	nextAttemptAt := p.nowUTC().Add(p.backoffDelay(task.Attempts + 1))
	if failErr := p.Tasks.Fail(ctx, task.ID, err, nextAttemptAt); failErr != nil {
		p.Observer.LogError(ctx, "retry: reschedule task", map[string]any{
			"task_id": task.ID,
			"error":   failErr.Error(),
		})
		return
	}
	stats.Retried++
}

func (p *Pipeline) processTask(ctx context.Context, task core.RetryTask) (core.ReconcileResult, error) {
	switch task.Kind {
	case core.TaskKindReplay:
		var event core.PaymentEvent
		if err := json.Unmarshal(task.Payload, &event); err != nil {
			return core.ReconcileResult{}, core.NewMalformedPayloadError(
				fmt.Sprintf("retry: decode replay payload for task %q: %v", task.ID, err))
		}
		return p.Engine.Reconcile(ctx, event)
	case core.TaskKindVerify:
		if p.Gateway == nil {
			return core.ReconcileResult{}, core.NewInternalError("retry: verify tasks require a gateway client")
		}
		verification, err := p.Gateway.VerifyTransaction(ctx, task.Reference)
		if err != nil {
			return core.ReconcileResult{}, err
		}
		return p.Engine.ReconcileVerification(ctx, verification)
	default:
		return core.ReconcileResult{}, core.NewInternalError(
			fmt.Sprintf("retry: unknown task kind %q", task.Kind))
	}
}

func (p *Pipeline) deadLetter(ctx context.Context, task core.RetryTask, cause error, stats *DispatchStats) {
	if failErr := p.Tasks.Fail(ctx, task.ID, cause, time.Time{}); failErr != nil {
		p.Observer.LogError(ctx, "retry: dead-letter task", map[string]any{
			"task_id": task.ID,
			"error":   failErr.Error(),
		})
		return
	}
	stats.DeadLettered++
	if p.Alerts != nil {
		p.Alerts.DeadLettered(ctx, task, cause)
	}
}

// ReplayDead re-arms a dead task for one more round of attempts. The
// rescheduled task runs on the next dispatch pass.
func (p *Pipeline) ReplayDead(ctx context.Context, taskID string) (core.RetryTask, error) {
	if p == nil || p.Tasks == nil {
		return core.RetryTask{}, core.NewInternalError("retry: pipeline is not configured")
	}
	task, err := p.Tasks.Get(ctx, taskID)
	if err != nil {
		return core.RetryTask{}, err
	}
	if task.Status != core.TaskStatusDead {
		return core.RetryTask{}, core.NewInternalError(
			fmt.Sprintf("retry: task %q is %s, only dead tasks can be replayed", taskID, task.Status))
	}
	if err := p.Tasks.Requeue(ctx, taskID, p.nowUTC()); err != nil {
		return core.RetryTask{}, core.NewStoreUnavailableError(err, "retry: requeue dead task")
	}
	return p.Tasks.Get(ctx, taskID)
}

// backoffDelay returns the wait before the given attempt, doubling from the
// configured base and clamped to the maximum.
func (p *Pipeline) backoffDelay(attempt int) time.Duration {
	initial := p.Config.InitialBackoff
	if initial <= 0 {
		initial = core.DefaultConfig().Retry.InitialBackoff
	}
	maxBackoff := p.Config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = core.DefaultConfig().Retry.MaxBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	next := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if next < 0 || next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (p *Pipeline) maxAttempts() int {
	if p.Config.MaxAttempts > 0 {
		return p.Config.MaxAttempts
	}
	return core.DefaultConfig().Retry.MaxAttempts
}

func (p *Pipeline) nowUTC() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
