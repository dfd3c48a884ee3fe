package webhooks

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-payments/core"
)

// Reconciler applies a normalized payment event to order state.
type Reconciler interface {
	Reconcile(ctx context.Context, event core.PaymentEvent) (core.ReconcileResult, error)
}

// RetryEnqueuer hands failed deliveries to the durable retry pipeline.
type RetryEnqueuer interface {
	EnqueueReplay(ctx context.Context, event core.PaymentEvent, cause error) (core.RetryTask, error)
}

// Processor drives one webhook delivery through verification, normalization,
// and reconciliation. Terminal dispositions are acknowledged with a 200 so
// the gateway never redelivers them; retryable failures are persisted to the
// retry ledger and also acknowledged, because this subsystem owns its own
// retries rather than leaning on gateway redelivery.
type Processor struct {
	Verifier Verifier
	Engine   Reconciler
	Retries  RetryEnqueuer
	Observer core.Observer
	Now      func() time.Time
}

func NewProcessor(verifier Verifier, engine Reconciler, retries RetryEnqueuer) *Processor {
	return &Processor{
		Verifier: verifier,
		Engine:   engine,
		Retries:  retries,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Engine == nil {
		return core.InboundResult{}, core.NewInternalError("webhooks: processor requires a reconcile engine")
	}
	startedAt := p.now()

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			p.Observer.ObserveOperation(ctx, startedAt, "webhook_verify", err, map[string]any{
				"provider_id": req.ProviderID,
			})
			return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"rejected": true,
				},
			}, err
		}
	}

	event, err := Normalize(req.Body)
	if err != nil {
		// Schema violations are terminal: acknowledge, log, drop. A 5xx here
		// would only make the gateway redeliver an unparseable payload.
		p.Observer.ObserveOperation(ctx, startedAt, "webhook_normalize", err, map[string]any{
			"provider_id": req.ProviderID,
		})
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"error_code": core.TextCode(err),
			},
		}, nil
	}

	if !event.Processable() {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"ignored": true,
			},
		}, nil
	}

	result, err := p.Engine.Reconcile(ctx, event)
	if err == nil {
		p.Observer.ObserveOperation(ctx, startedAt, "webhook_reconcile", nil, map[string]any{
			"reference": event.Reference,
			"outcome":   string(result.Outcome),
		})
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Outcome:    result.Outcome,
			Metadata: map[string]any{
				"reference": event.Reference,
				"outcome":   string(result.Outcome),
			},
		}, nil
	}

	if !core.IsRetryable(err) {
		p.Observer.ObserveOperation(ctx, startedAt, "webhook_reconcile", err, map[string]any{
			"reference": event.Reference,
			"outcome":   string(result.Outcome),
		})
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Outcome:    result.Outcome,
			Metadata: map[string]any{
				"reference":  event.Reference,
				"error_code": core.TextCode(err),
			},
		}, nil
	}

	if p.Retries == nil {
		return core.InboundResult{}, err
	}
	task, enqueueErr := p.Retries.EnqueueReplay(ctx, event, err)
	if enqueueErr != nil {
		// Losing both the inline attempt and the ledger write means the
		// confirmation would vanish silently; surface a 500 so the gateway
		// redelivers.
		p.Observer.ObserveOperation(ctx, startedAt, "webhook_enqueue_retry", enqueueErr, map[string]any{
			"reference": event.Reference,
		})
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusInternalServerError,
		}, enqueueErr
	}

	p.Observer.ObserveOperation(ctx, startedAt, "webhook_enqueue_retry", nil, map[string]any{
		"reference":  event.Reference,
		"task_id":    task.ID,
		"error_code": core.TextCode(err),
	})
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Outcome:    result.Outcome,
		Metadata: map[string]any{
			"reference": event.Reference,
			"enqueued":  true,
			"task_id":   task.ID,
		},
	}, nil
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
