package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
)

type memoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]core.Order

	findErr error
	markErr error
}

func newMemoryOrderStore(orders ...core.Order) *memoryOrderStore {
	store := &memoryOrderStore{orders: map[string]core.Order{}}
	for _, order := range orders {
		store.orders[order.Reference] = order
	}
	return store
}

func (s *memoryOrderStore) FindByReference(_ context.Context, reference string) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return core.Order{}, s.findErr
	}
	order, ok := s.orders[reference]
	if !ok {
		return core.Order{}, core.NewOrderNotFoundError(reference)
	}
	return order, nil
}

func (s *memoryOrderStore) MarkPaid(_ context.Context, reference string, state core.PaymentState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	order, ok := s.orders[reference]
	if !ok || order.IsPaid {
		return false, nil
	}
	paidAt := state.PaidAt
	order.IsPaid = true
	order.PaidAt = &paidAt
	snapshot := state
	order.Payment = &snapshot
	s.orders[reference] = order
	return true, nil
}

func (s *memoryOrderStore) SavePendingReference(_ context.Context, orderID string, reference string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, order := range s.orders {
		if order.ID == orderID {
			order.Reference = reference
			delete(s.orders, key)
			s.orders[reference] = order
			return nil
		}
	}
	return core.NewOrderNotFoundError(reference)
}

type capturingAlertSink struct {
	mu         sync.Mutex
	mismatches int
	deadLetter int
}

func (s *capturingAlertSink) AmountMismatch(context.Context, core.PaymentEvent, core.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mismatches++
}

func (s *capturingAlertSink) DeadLettered(context.Context, core.RetryTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetter++
}

func chargeEvent(reference string, amount int64) core.PaymentEvent {
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return core.PaymentEvent{
		Type:             core.EventChargeSuccess,
		Reference:        reference,
		GatewayStatus:    "success",
		AmountMinorUnits: amount,
		Currency:         "NGN",
		Channel:          "card",
		PayerEmail:       "buyer@example.com",
		PaidAt:           &paidAt,
	}
}

func TestEngine_ReconcilesUnpaidOrder(t *testing.T) {
	store := newMemoryOrderStore(core.Order{ID: "ord_1", Reference: "ref_1", TotalAmountMinorUnits: 500000})
	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	result, err := engine.Reconcile(context.Background(), chargeEvent("ref_1", 500000))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Outcome != core.OutcomeReconciled {
		t.Fatalf("expected reconciled, got %q", result.Outcome)
	}

	order, err := store.FindByReference(context.Background(), "ref_1")
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if !order.IsPaid {
		t.Fatalf("expected order to be marked paid")
	}
	if order.Payment == nil || order.Payment.TransactionID != "ref_1" {
		t.Fatalf("expected payment snapshot on order")
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected event paidAt applied, got %v", order.PaidAt)
	}
}

func TestEngine_DuplicateDeliveryIsIdempotent(t *testing.T) {
	store := newMemoryOrderStore(core.Order{ID: "ord_1", Reference: "ref_1", TotalAmountMinorUnits: 500000})
	engine, _ := NewEngine(store)
	event := chargeEvent("ref_1", 500000)

	first, err := engine.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if first.Outcome != core.OutcomeReconciled {
		t.Fatalf("expected first delivery to reconcile, got %q", first.Outcome)
	}

	orderAfterFirst, _ := store.FindByReference(context.Background(), "ref_1")

	second, err := engine.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if second.Outcome != core.OutcomeAlreadyReconciled {
		t.Fatalf("expected duplicate to be already-reconciled, got %q", second.Outcome)
	}

	orderAfterSecond, _ := store.FindByReference(context.Background(), "ref_1")
	if !orderAfterFirst.PaidAt.Equal(*orderAfterSecond.PaidAt) {
		t.Fatalf("expected paidAt untouched by duplicate delivery")
	}
	if *orderAfterFirst.Payment != *orderAfterSecond.Payment {
		t.Fatalf("expected payment snapshot untouched by duplicate delivery")
	}
}

func TestEngine_ConcurrentDeliveriesProduceOneTransition(t *testing.T) {
	store := newMemoryOrderStore(core.Order{ID: "ord_1", Reference: "ref_1", TotalAmountMinorUnits: 500000})
	engine, _ := NewEngine(store)
	event := chargeEvent("ref_1", 500000)

	const attempts = 8
	outcomes := make(chan core.ReconcileOutcome, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.Reconcile(context.Background(), event)
			if err != nil {
				t.Errorf("concurrent reconcile: %v", err)
				return
			}
			outcomes <- result.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	reconciled := 0
	for outcome := range outcomes {
		if outcome == core.OutcomeReconciled {
			reconciled++
		}
	}
	if reconciled != 1 {
		t.Fatalf("expected exactly one successful transition, got %d", reconciled)
	}
}

func TestEngine_AmountMismatchLeavesOrderUnpaid(t *testing.T) {
	store := newMemoryOrderStore(core.Order{ID: "ord_1", Reference: "ref_1", TotalAmountMinorUnits: 10000})
	alerts := &capturingAlertSink{}
	engine, _ := NewEngine(store)
	engine.Alerts = alerts

	result, err := engine.Reconcile(context.Background(), chargeEvent("ref_1", 5000))
	if err == nil {
		t.Fatalf("expected amount mismatch error")
	}
	if result.Outcome != core.OutcomeAmountMismatch {
		t.Fatalf("expected amount-mismatch outcome, got %q", result.Outcome)
	}
	if core.IsRetryable(err) {
		t.Fatalf("expected amount mismatch to be terminal")
	}
	if alerts.mismatches != 1 {
		t.Fatalf("expected mismatch alert, got %d", alerts.mismatches)
	}

	order, _ := store.FindByReference(context.Background(), "ref_1")
	if order.IsPaid {
		t.Fatalf("expected order to stay unpaid on mismatch")
	}
}

func TestEngine_AmountCheckCanBeDisabled(t *testing.T) {
	store := newMemoryOrderStore(core.Order{ID: "ord_1", Reference: "ref_1", TotalAmountMinorUnits: 10000})
	engine, _ := NewEngine(store)
	engine.AmountCheck = false

	result, err := engine.Reconcile(context.Background(), chargeEvent("ref_1", 5000))
	if err != nil {
		t.Fatalf("reconcile with check disabled: %v", err)
	}
	if result.Outcome != core.OutcomeReconciled {
		t.Fatalf("expected reconciled, got %q", result.Outcome)
	}
}

func TestEngine_MissingOrderIsRetryable(t *testing.T) {
	engine, _ := NewEngine(newMemoryOrderStore())

	result, err := engine.Reconcile(context.Background(), chargeEvent("ref_missing", 500000))
	if err == nil {
		t.Fatalf("expected order-not-found error")
	}
	if result.Outcome != core.OutcomeOrderNotFound {
		t.Fatalf("expected order-not-found outcome, got %q", result.Outcome)
	}
	if !core.IsRetryable(err) {
		t.Fatalf("expected order-not-found to be retryable")
	}
}

func TestEngine_ReconcileVerification(t *testing.T) {
	store := newMemoryOrderStore(core.Order{ID: "ord_1", Reference: "ref_1", TotalAmountMinorUnits: 500000})
	engine, _ := NewEngine(store)

	paidAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	result, err := engine.ReconcileVerification(context.Background(), core.GatewayVerification{
		Reference:        "ref_1",
		Status:           "success",
		AmountMinorUnits: 500000,
		Currency:         "NGN",
		PaidAt:           &paidAt,
	})
	if err != nil {
		t.Fatalf("reconcile verification: %v", err)
	}
	if result.Outcome != core.OutcomeReconciled {
		t.Fatalf("expected reconciled, got %q", result.Outcome)
	}

	_, err = engine.ReconcileVerification(context.Background(), core.GatewayVerification{
		Reference: "ref_1",
		Status:    "pending",
	})
	if err == nil {
		t.Fatalf("expected pending verification to fail")
	}
	if !core.IsRetryable(err) {
		t.Fatalf("expected pending verification to stay retryable")
	}
}
