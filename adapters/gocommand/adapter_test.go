package gocommand

import (
	"context"
	"testing"

	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	paymentsquery "github.com/goliatone/go-payments/query"
)

type recordingReconciler struct {
	events []core.PaymentEvent
}

func (r *recordingReconciler) Reconcile(_ context.Context, event core.PaymentEvent) (core.ReconcileResult, error) {
	r.events = append(r.events, event)
	return core.ReconcileResult{Outcome: core.OutcomeReconciled, Reference: event.Reference}, nil
}

func (r *recordingReconciler) ReconcileVerification(_ context.Context, verification core.GatewayVerification) (core.ReconcileResult, error) {
	return core.ReconcileResult{Outcome: core.OutcomeReconciled, Reference: verification.Reference}, nil
}

type staticTaskReader struct {
	task core.RetryTask
}

func (s staticTaskReader) Get(_ context.Context, taskID string) (core.RetryTask, error) {
	task := s.task
	task.ID = taskID
	return task, nil
}

func (s staticTaskReader) ListDead(_ context.Context, _ int) ([]core.RetryTask, error) {
	return []core.RetryTask{s.task}, nil
}

func TestValidateMessageContract(t *testing.T) {
	valid := paymentscommand.VerifyPaymentMessage{Reference: "ref_1"}
	if err := ValidateMessageContract(valid); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(struct{}{}); err == nil {
		t.Fatalf("expected contract violation for typeless message")
	}
}

func TestRegisterAndSubscribe_DispatchesThroughRegistry(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	engine := &recordingReconciler{}

	sub, err := RegisterAndSubscribe(adapter, paymentscommand.NewReconcileEventCommand(engine))
	if err != nil {
		t.Fatalf("register reconcile command: %v", err)
	}
	defer sub.Unsubscribe()

	err = Dispatch(context.Background(), paymentscommand.ReconcileEventMessage{Event: core.PaymentEvent{
		Type:      core.EventChargeSuccess,
		Reference: "ref_1",
	}})
	if err != nil {
		t.Fatalf("dispatch reconcile: %v", err)
	}
	if len(engine.events) != 1 || engine.events[0].Reference != "ref_1" {
		t.Fatalf("expected one reconciled event, got %#v", engine.events)
	}
}

func TestRegisterAndSubscribeQuery_AnswersQueries(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	reader := staticTaskReader{task: core.RetryTask{Status: core.TaskStatusDead, Attempts: 5}}

	sub, err := RegisterAndSubscribeQuery(adapter, paymentsquery.NewGetRetryTaskQuery(reader))
	if err != nil {
		t.Fatalf("register retry task query: %v", err)
	}
	defer sub.Unsubscribe()

	task, err := Query[paymentsquery.GetRetryTaskMessage, core.RetryTask](
		context.Background(),
		paymentsquery.GetRetryTaskMessage{TaskID: "task_1"},
	)
	if err != nil {
		t.Fatalf("query retry task: %v", err)
	}
	if task.ID != "task_1" || task.Status != core.TaskStatusDead {
		t.Fatalf("unexpected task: %#v", task)
	}
}

func TestRegistryAdapter_NilRegistryGuards(t *testing.T) {
	var adapter *RegistryAdapter
	if err := adapter.RegisterCommand(nil); err == nil {
		t.Fatalf("expected nil adapter rejection")
	}
	if adapter.HasResolver("payments") {
		t.Fatalf("nil adapter must not claim resolvers")
	}
}
