// Package reconcile applies confirmed gateway payments to local order state.
//
// The paid transition is idempotent and monotonic: the order store's
// conditional update is the concurrency boundary, so concurrent deliveries
// of the same reference converge without external locking.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-payments/core"
)

type Engine struct {
	Orders      core.OrderStore
	Alerts      core.AlertSink
	Observer    core.Observer
	AmountCheck bool
	Now         func() time.Time
}

func NewEngine(orders core.OrderStore) (*Engine, error) {
	if orders == nil {
		return nil, fmt.Errorf("reconcile: order store is required")
	}
	return &Engine{
		Orders:      orders,
		Alerts:      core.NopAlertSink{},
		AmountCheck: true,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Reconcile applies a charge.success event to the matching order.
//
// Outcomes:
//   - Reconciled: this call performed the paid transition.
//   - AlreadyReconciled: the order was already paid; nothing was mutated.
//   - AmountMismatch: event and order totals disagree; the order stays
//     unpaid and the mismatch is flagged for manual review.
//   - OrderNotFound: returned together with a retryable error, because the
//     order-creation write may simply not be visible yet.
func (e *Engine) Reconcile(ctx context.Context, event core.PaymentEvent) (core.ReconcileResult, error) {
	if e == nil || e.Orders == nil {
		return core.ReconcileResult{}, core.NewInternalError("reconcile: engine requires an order store")
	}
	if !event.Processable() {
		return core.ReconcileResult{}, core.NewMalformedPayloadError("reconcile: event is not processable")
	}
	startedAt := e.now()
	result := core.ReconcileResult{Reference: event.Reference}

	order, err := e.Orders.FindByReference(ctx, event.Reference)
	if err != nil {
		if core.TextCode(err) == core.PaymentErrorOrderNotFound {
			result.Outcome = core.OutcomeOrderNotFound
		}
		e.observe(ctx, startedAt, result, err)
		return result, err
	}
	result.OrderID = order.ID

	if order.IsPaid {
		result.Outcome = core.OutcomeAlreadyReconciled
		e.observe(ctx, startedAt, result, nil)
		return result, nil
	}

	if e.AmountCheck && event.AmountMinorUnits > 0 && order.TotalAmountMinorUnits > 0 &&
		event.AmountMinorUnits != order.TotalAmountMinorUnits {
		result.Outcome = core.OutcomeAmountMismatch
		mismatchErr := core.NewAmountMismatchError(event.Reference, event.AmountMinorUnits, order.TotalAmountMinorUnits)
		if e.Alerts != nil {
			e.Alerts.AmountMismatch(ctx, event, order)
		}
		e.observe(ctx, startedAt, result, mismatchErr)
		return result, mismatchErr
	}

	updated, err := e.Orders.MarkPaid(ctx, event.Reference, e.snapshot(event))
	if err != nil {
		e.observe(ctx, startedAt, result, err)
		return result, err
	}
	if !updated {
		// The conditional write lost to a concurrent delivery: the guard
		// is_paid = false no longer matched.
		result.Outcome = core.OutcomeAlreadyReconciled
		e.observe(ctx, startedAt, result, nil)
		return result, nil
	}

	result.Outcome = core.OutcomeReconciled
	e.observe(ctx, startedAt, result, nil)
	return result, nil
}

// ReconcileVerification converts a gateway verification response for a
// reference into a payment event and applies it. Used by verify-style retry
// tasks and manual verification, where the payload cannot be trusted or no
// longer exists.
func (e *Engine) ReconcileVerification(ctx context.Context, verification core.GatewayVerification) (core.ReconcileResult, error) {
	if !verification.Successful() {
		return core.ReconcileResult{Reference: verification.Reference},
			core.NewGatewayUnavailableError(nil, "reconcile: transaction is not successful at the gateway")
	}
	return e.Reconcile(ctx, core.PaymentEvent{
		Type:             core.EventChargeSuccess,
		Reference:        verification.Reference,
		GatewayStatus:    verification.Status,
		AmountMinorUnits: verification.AmountMinorUnits,
		Currency:         verification.Currency,
		Channel:          verification.Channel,
		PayerEmail:       verification.PayerEmail,
		PaidAt:           verification.PaidAt,
	})
}

func (e *Engine) snapshot(event core.PaymentEvent) core.PaymentState {
	paidAt := e.now()
	if event.PaidAt != nil {
		paidAt = event.PaidAt.UTC()
	}
	return core.PaymentState{
		TransactionID:    event.Reference,
		Status:           event.GatewayStatus,
		Channel:          event.Channel,
		AmountMinorUnits: event.AmountMinorUnits,
		Currency:         event.Currency,
		PayerEmail:       event.PayerEmail,
		PaidAt:           paidAt,
	}
}

func (e *Engine) observe(ctx context.Context, startedAt time.Time, result core.ReconcileResult, err error) {
	e.Observer.ObserveOperation(ctx, startedAt, "reconcile", err, map[string]any{
		"reference": result.Reference,
		"order_id":  result.OrderID,
		"outcome":   string(result.Outcome),
	})
}

func (e *Engine) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}
