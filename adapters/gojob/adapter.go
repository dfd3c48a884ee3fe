// Package gojob runs retry-ledger dispatch through a go-job queue, for
// hosts that schedule work with queue workers instead of the polling runner.
package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/retry"
)

const (
	JobIDRetryDispatch = "payments.retry.dispatch"

	ParamBatchSize = "batch_size"
)

// RetryPolicy bounds queue-level redelivery so a poisoned dispatch job
// cannot loop forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Normalize clamps nack options for the given attempt. Retry dispositions
// past the attempt ceiling become dead-letter (or failed when the policy
// keeps no DLQ); terminal dispositions carry no redelivery delay.
func (p RetryPolicy) Normalize(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts && out.Disposition == queue.NackDispositionRetry {
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		} else {
			out.Disposition = queue.NackDispositionFailed
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

// DispatchMessage builds the execution message that triggers one retry
// dispatch pass over the ledger.
func DispatchMessage(batchSize int) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID: JobIDRetryDispatch,
		Parameters: map[string]any{
			ParamBatchSize: batchSize,
		},
	}
}

// BatchSizeFrom extracts the batch size parameter, falling back when the
// message carries none or an unusable value.
func BatchSizeFrom(msg *job.ExecutionMessage, fallback int) int {
	if msg == nil {
		return fallback
	}
	raw, ok := msg.Parameters[ParamBatchSize]
	if !ok {
		return fallback
	}
	switch value := raw.(type) {
	case int:
		if value > 0 {
			return value
		}
	case int64:
		if value > 0 {
			return int(value)
		}
	case float64:
		if value > 0 {
			return int(value)
		}
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// Dispatcher drains due tasks from the retry ledger. The retry pipeline
// satisfies it.
type Dispatcher interface {
	DispatchDue(ctx context.Context, batchSize int) (retry.DispatchStats, error)
}

// DispatchScheduler enqueues dispatch trigger jobs.
type DispatchScheduler struct {
	enqueuer  queue.Enqueuer
	batchSize int
}

func NewDispatchScheduler(enqueuer queue.Enqueuer, batchSize int) (*DispatchScheduler, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	if batchSize <= 0 {
		batchSize = core.DefaultConfig().Retry.BatchSize
	}
	return &DispatchScheduler{enqueuer: enqueuer, batchSize: batchSize}, nil
}

func (s *DispatchScheduler) Schedule(ctx context.Context) (queue.EnqueueReceipt, error) {
	if s == nil || s.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: scheduler is not configured")
	}
	return s.enqueuer.Enqueue(ctx, DispatchMessage(s.batchSize))
}

// DispatchConsumer pulls trigger jobs from the queue and runs the ledger
// dispatch they request.
type DispatchConsumer struct {
	dequeuer   queue.Dequeuer
	dispatcher Dispatcher
	Policy     RetryPolicy
	BatchSize  int
	Observer   core.Observer
}

func NewDispatchConsumer(dequeuer queue.Dequeuer, dispatcher Dispatcher) (*DispatchConsumer, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("gojob: dispatcher is required")
	}
	return &DispatchConsumer{
		dequeuer:   dequeuer,
		dispatcher: dispatcher,
		BatchSize:  core.DefaultConfig().Retry.BatchSize,
	}, nil
}

// ProcessNext handles exactly one queued trigger. A failed dispatch is
// nacked with bounded redelivery; the ledger itself tracks per-task retries.
func (c *DispatchConsumer) ProcessNext(ctx context.Context) (retry.DispatchStats, error) {
	if c == nil || c.dequeuer == nil || c.dispatcher == nil {
		return retry.DispatchStats{}, fmt.Errorf("gojob: dispatch consumer is not configured")
	}

	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return retry.DispatchStats{}, err
	}

	batchSize := BatchSizeFrom(delivery.Message(), c.BatchSize)
	stats, err := c.dispatcher.DispatchDue(ctx, batchSize)
	if err != nil {
		nack := c.Policy.Normalize(queue.NackOptions{Disposition: queue.NackDispositionRetry, Reason: err.Error()}, 0)
		if nackErr := delivery.Nack(ctx, nack); nackErr != nil {
			c.Observer.LogError(ctx, "gojob: nack dispatch trigger", map[string]any{
				"job_id": JobIDRetryDispatch,
				"error":  nackErr.Error(),
			})
		}
		return stats, err
	}

	if ackErr := delivery.Ack(ctx); ackErr != nil {
		c.Observer.LogError(ctx, "gojob: ack dispatch trigger", map[string]any{
			"job_id": JobIDRetryDispatch,
			"error":  ackErr.Error(),
		})
	}
	return stats, nil
}

// ObserverHook feeds worker lifecycle events into payment observability.
type ObserverHook struct {
	Observer core.Observer
}

func (h ObserverHook) OnStart(ctx context.Context, event worker.Event) {
	h.Observer.LogInfo(ctx, "gojob: job started", eventFields(event))
}

func (h ObserverHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.Observer.ObserveOperation(ctx, event.StartedAt, "retry_job", nil, eventFields(event))
}

func (h ObserverHook) OnFailure(ctx context.Context, event worker.Event) {
	h.Observer.ObserveOperation(ctx, event.StartedAt, "retry_job", event.Err, eventFields(event))
}

func (h ObserverHook) OnRetry(ctx context.Context, event worker.Event) {
	fields := eventFields(event)
	fields["delay"] = event.Delay.String()
	h.Observer.LogInfo(ctx, "gojob: job retry scheduled", fields)
}

func eventFields(event worker.Event) map[string]any {
	fields := map[string]any{
		"attempt": event.Attempt,
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		fields["job_id"] = message.JobID
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

var _ worker.Hook = ObserverHook{}
