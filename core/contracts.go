package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// OrderStore is the order collaborator. Implementations must make MarkPaid a
// single conditional write at the store layer so two concurrent deliveries of
// the same reference cannot both observe an unpaid order and both apply the
// transition.
type OrderStore interface {
	FindByReference(ctx context.Context, reference string) (Order, error)
	// MarkPaid applies the paid transition guarded on is_paid = false.
	// It returns false with no error when the guard did not match, meaning
	// another delivery already reconciled the order.
	MarkPaid(ctx context.Context, reference string, state PaymentState) (bool, error)
	// SavePendingReference attaches a gateway reference to an order when a
	// payment is initialized.
	SavePendingReference(ctx context.Context, orderID string, reference string, payerEmail string) error
}

type GatewayVerification struct {
	Reference        string
	Status           string
	AmountMinorUnits int64
	Currency         string
	Channel          string
	PayerEmail       string
	PaidAt           *time.Time
}

func (v GatewayVerification) Successful() bool {
	return v.Status == "success"
}

type InitializeTransactionRequest struct {
	OrderID          string
	PayerEmail       string
	AmountMinorUnits int64
	Currency         string
	CallbackURL      string
}

type InitializeTransactionResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// GatewayClient talks to the payment gateway API. All calls must carry a
// bounded timeout; a timeout surfaces as a gateway-unavailable error, never
// as silent success.
type GatewayClient interface {
	VerifyTransaction(ctx context.Context, reference string) (GatewayVerification, error)
	InitializeTransaction(ctx context.Context, req InitializeTransactionRequest) (InitializeTransactionResult, error)
}

// RetryTaskStore is the durable retry ledger. Claims must be atomic so
// concurrent pipeline runners never receive the same task.
type RetryTaskStore interface {
	// Enqueue persists a new task. Enqueueing a reference+kind pair that
	// already has a live task is a no-op returning the existing task.
	Enqueue(ctx context.Context, task RetryTask) (RetryTask, error)
	// ClaimDue atomically moves up to limit due tasks to processing and
	// returns them, attempts already incremented.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]RetryTask, error)
	Complete(ctx context.Context, taskID string) error
	// Fail records the error; a zero nextAttemptAt dead-letters the task.
	Fail(ctx context.Context, taskID string, cause error, nextAttemptAt time.Time) error
	Get(ctx context.Context, taskID string) (RetryTask, error)
	ListDead(ctx context.Context, limit int) ([]RetryTask, error)
	// Requeue re-arms a dead task for manual replay.
	Requeue(ctx context.Context, taskID string, nextAttemptAt time.Time) error
}

// AlertSink receives terminal dispositions that require human attention.
type AlertSink interface {
	DeadLettered(ctx context.Context, task RetryTask, cause error)
	AmountMismatch(ctx context.Context, event PaymentEvent, order Order)
}

type NopAlertSink struct{}

func (NopAlertSink) DeadLettered(context.Context, RetryTask, error) {}

func (NopAlertSink) AmountMismatch(context.Context, PaymentEvent, Order) {}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// InboundRequest carries one raw webhook delivery. Body holds the exact wire
// bytes; signature verification hashes these bytes, never a re-serialized
// form.
type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Outcome    ReconcileOutcome
	Metadata   map[string]any
}
