package core

import (
	"strings"
	"time"
)

type EventType string

const (
	// EventChargeSuccess is the only event type that mutates order state.
	EventChargeSuccess EventType = "charge.success"
	// EventIgnored covers every other gateway event. Ignored events are
	// acknowledged so the gateway does not redeliver them.
	EventIgnored EventType = "ignored"
)

// PaymentEvent is the canonical form of a verified gateway webhook payload.
// It is immutable once constructed; RawPayload keeps the exact wire bytes
// for audit and replay.
type PaymentEvent struct {
	Type             EventType
	Reference        string
	GatewayStatus    string
	AmountMinorUnits int64
	Currency         string
	Channel          string
	PayerEmail       string
	PaidAt           *time.Time
	RawPayload       []byte
}

func (e PaymentEvent) Processable() bool {
	return e.Type == EventChargeSuccess && strings.TrimSpace(e.Reference) != ""
}

// PaymentState is the gateway snapshot applied to an order when it
// transitions to paid.
type PaymentState struct {
	TransactionID    string
	Status           string
	Channel          string
	AmountMinorUnits int64
	Currency         string
	PayerEmail       string
	PaidAt           time.Time
}

// Order is the reconciliation view of an order. The only mutation this
// subsystem performs is the paid transition, and that transition is
// monotonic: once IsPaid is true it is never reset here.
type Order struct {
	ID                    string
	Reference             string
	IsPaid                bool
	PaidAt                *time.Time
	TotalAmountMinorUnits int64
	Currency              string
	Payment               *PaymentState
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type ReconcileOutcome string

const (
	OutcomeReconciled        ReconcileOutcome = "reconciled"
	OutcomeAlreadyReconciled ReconcileOutcome = "already_reconciled"
	OutcomeAmountMismatch    ReconcileOutcome = "amount_mismatch"
	OutcomeOrderNotFound     ReconcileOutcome = "order_not_found"
)

// Terminal reports whether the outcome must be acknowledged to the gateway
// without an internal retry.
func (o ReconcileOutcome) Terminal() bool {
	switch o {
	case OutcomeReconciled, OutcomeAlreadyReconciled, OutcomeAmountMismatch:
		return true
	default:
		return false
	}
}

type ReconcileResult struct {
	Outcome   ReconcileOutcome
	OrderID   string
	Reference string
}

type TaskKind string

const (
	// TaskKindReplay re-applies the original normalized webhook payload.
	TaskKindReplay TaskKind = "replay"
	// TaskKindVerify re-verifies the reference with the gateway instead of
	// trusting a replayed payload.
	TaskKindVerify TaskKind = "verify"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusProcessed  = "processed"
	TaskStatusRetryReady = "retry_ready"
	TaskStatusDead       = "dead"
)

// RetryTask is a durable unit of deferred reconciliation work. Tasks are
// created when inline reconciliation fails with a retryable error and are
// owned exclusively by the retry pipeline afterwards.
type RetryTask struct {
	ID            string
	Reference     string
	Kind          TaskKind
	Payload       []byte
	Status        string
	Attempts      int
	MaxAttempts   int
	NextAttemptAt *time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (t RetryTask) Exhausted() bool {
	return t.MaxAttempts > 0 && t.Attempts >= t.MaxAttempts
}
