package payments

import (
	"context"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	gocmdadapter "github.com/goliatone/go-payments/adapters/gocommand"
	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	paymentsquery "github.com/goliatone/go-payments/query"
)

func newTestService(t *testing.T, orders *memoryOrders, tasks *memoryTasks, gateway core.GatewayClient) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Webhook.Secret = "whsec_test"
	if gateway == nil {
		gateway = stubGateway{}
	}
	svc, err := NewService(
		cfg,
		WithOrderStore(orders),
		WithRetryTaskStore(tasks),
		WithGatewayClient(gateway),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewFacade_BuildsCommandsAndQueries(t *testing.T) {
	svc := newTestService(t, newMemoryOrders(), newMemoryTasks(), nil)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Reconcile == nil || commands.VerifyPayment == nil ||
		commands.InitializePayment == nil || commands.ReplayDeadLetter == nil {
		t.Fatalf("expected all commands wired: %#v", commands)
	}
	queries := facade.Queries()
	if queries.GetOrder == nil || queries.GetRetryTask == nil || queries.ListDeadLetters == nil {
		t.Fatalf("expected all queries wired: %#v", queries)
	}
	if facade.Service() != svc {
		t.Fatalf("expected facade to retain service")
	}
}

func TestFacade_ReconcileCommandTransitionsOrder(t *testing.T) {
	orders := newMemoryOrders()
	orders.put(core.Order{
		ID:                    "ord_1",
		Reference:             "ref_1",
		TotalAmountMinorUnits: 5000,
		Currency:              "NGN",
	})

	svc := newTestService(t, orders, newMemoryTasks(), nil)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[core.ReconcileResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err = facade.Commands().Reconcile.Execute(ctx, paymentscommand.ReconcileEventMessage{
		Event: core.PaymentEvent{
			Type:             core.EventChargeSuccess,
			Reference:        "ref_1",
			GatewayStatus:    "success",
			AmountMinorUnits: 5000,
			Currency:         "NGN",
			PaidAt:           &paidAt,
		},
	})
	if err != nil {
		t.Fatalf("execute reconcile: %v", err)
	}

	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected reconcile result")
	}
	if result.Outcome != core.OutcomeReconciled {
		t.Fatalf("expected reconciled outcome, got %q", result.Outcome)
	}

	order, err := facade.Queries().GetOrder.Query(context.Background(), paymentsquery.GetOrderMessage{Reference: "ref_1"})
	if err != nil {
		t.Fatalf("query order: %v", err)
	}
	if !order.IsPaid {
		t.Fatalf("expected order paid after command, got %#v", order)
	}
}

func TestFacade_WithRetryTaskReaderOverride(t *testing.T) {
	svc := newTestService(t, newMemoryOrders(), newMemoryTasks(), nil)

	override := newMemoryTasks()
	seeded, err := override.Enqueue(context.Background(), core.RetryTask{
		Reference: "ref_dead",
		Kind:      core.TaskKindReplay,
		Status:    core.TaskStatusPending,
	})
	if err != nil {
		t.Fatalf("seed override store: %v", err)
	}
	if err := override.Fail(context.Background(), seeded.ID, nil, time.Time{}); err != nil {
		t.Fatalf("dead-letter seeded task: %v", err)
	}

	facade, err := NewFacade(svc, WithRetryTaskReader(override))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	dead, err := facade.Queries().ListDeadLetters.Query(context.Background(), paymentsquery.ListDeadLettersMessage{Limit: 10})
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].Reference != "ref_dead" {
		t.Fatalf("expected override reader to serve dead letters, got %#v", dead)
	}
}

func TestFacade_RegisterSubscribesEverything(t *testing.T) {
	orders := newMemoryOrders()
	orders.put(core.Order{
		ID:                    "ord_1",
		Reference:             "ref_1",
		TotalAmountMinorUnits: 5000,
	})
	svc := newTestService(t, orders, newMemoryTasks(), nil)
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	adapter := gocmdadapter.NewRegistryAdapter(nil)
	subscriptions, err := facade.Register(adapter)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	}()
	if len(subscriptions) != 7 {
		t.Fatalf("expected 7 subscriptions, got %d", len(subscriptions))
	}

	order, err := gocmdadapter.Query[paymentsquery.GetOrderMessage, core.Order](
		context.Background(),
		paymentsquery.GetOrderMessage{Reference: "ref_1"},
	)
	if err != nil {
		t.Fatalf("dispatch get order query: %v", err)
	}
	if order.ID != "ord_1" {
		t.Fatalf("unexpected order: %#v", order)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil service rejection")
	}
}
