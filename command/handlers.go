package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

// ReconcilingService applies verified gateway state to orders. The reconcile
// engine satisfies it.
type ReconcilingService interface {
	Reconcile(ctx context.Context, event core.PaymentEvent) (core.ReconcileResult, error)
	ReconcileVerification(ctx context.Context, verification core.GatewayVerification) (core.ReconcileResult, error)
}

type PendingReferenceStore interface {
	SavePendingReference(ctx context.Context, orderID string, reference string, payerEmail string) error
}

// DeadLetterService re-arms dead retry tasks. The retry pipeline satisfies it.
type DeadLetterService interface {
	ReplayDead(ctx context.Context, taskID string) (core.RetryTask, error)
}

type ReconcileEventCommand struct {
	engine ReconcilingService
}

func NewReconcileEventCommand(engine ReconcilingService) *ReconcileEventCommand {
	return &ReconcileEventCommand{engine: engine}
}

func (c *ReconcileEventCommand) Execute(ctx context.Context, msg ReconcileEventMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: reconcile engine is required")
	}
	out, err := c.engine.Reconcile(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type VerifyPaymentCommand struct {
	gateway core.GatewayClient
	engine  ReconcilingService
}

func NewVerifyPaymentCommand(gateway core.GatewayClient, engine ReconcilingService) *VerifyPaymentCommand {
	return &VerifyPaymentCommand{gateway: gateway, engine: engine}
}

func (c *VerifyPaymentCommand) Execute(ctx context.Context, msg VerifyPaymentMessage) error {
	if c == nil || c.gateway == nil || c.engine == nil {
		return commandDependencyError("command: gateway client and reconcile engine are required")
	}
	verification, err := c.gateway.VerifyTransaction(ctx, msg.Reference)
	if err != nil {
		return err
	}
	out, err := c.engine.ReconcileVerification(ctx, verification)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type InitializePaymentCommand struct {
	gateway core.GatewayClient
	orders  PendingReferenceStore
}

func NewInitializePaymentCommand(gateway core.GatewayClient, orders PendingReferenceStore) *InitializePaymentCommand {
	return &InitializePaymentCommand{gateway: gateway, orders: orders}
}

// Execute initializes a gateway transaction and attaches the returned
// reference to the order so the eventual charge.success webhook resolves.
func (c *InitializePaymentCommand) Execute(ctx context.Context, msg InitializePaymentMessage) error {
	if c == nil || c.gateway == nil || c.orders == nil {
		return commandDependencyError("command: gateway client and order store are required")
	}
	out, err := c.gateway.InitializeTransaction(ctx, msg.Request)
	if err != nil {
		return err
	}
	if err := c.orders.SavePendingReference(ctx, msg.Request.OrderID, out.Reference, msg.Request.PayerEmail); err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReplayDeadLetterCommand struct {
	service DeadLetterService
}

func NewReplayDeadLetterCommand(service DeadLetterService) *ReplayDeadLetterCommand {
	return &ReplayDeadLetterCommand{service: service}
}

func (c *ReplayDeadLetterCommand) Execute(ctx context.Context, msg ReplayDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter service is required")
	}
	out, err := c.service.ReplayDead(ctx, msg.TaskID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
