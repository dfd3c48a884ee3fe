package command

import (
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeReconcileEvent    = "payments.command.reconcile"
	TypeVerifyPayment     = "payments.command.verify"
	TypeInitializePayment = "payments.command.initialize"
	TypeReplayDeadLetter  = "payments.command.dead_letter.replay"
)

type ReconcileEventMessage struct {
	Event core.PaymentEvent
}

func (ReconcileEventMessage) Type() string { return TypeReconcileEvent }

func (m ReconcileEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.Reference) == "" {
		return commandValidationError("reference", "reference is required")
	}
	if !m.Event.Processable() {
		return commandValidationError("type", "event type does not mutate order state")
	}
	return nil
}

type VerifyPaymentMessage struct {
	Reference string
}

func (VerifyPaymentMessage) Type() string { return TypeVerifyPayment }

func (m VerifyPaymentMessage) Validate() error {
	if strings.TrimSpace(m.Reference) == "" {
		return commandValidationError("reference", "reference is required")
	}
	return nil
}

type InitializePaymentMessage struct {
	Request core.InitializeTransactionRequest
}

func (InitializePaymentMessage) Type() string { return TypeInitializePayment }

func (m InitializePaymentMessage) Validate() error {
	if strings.TrimSpace(m.Request.OrderID) == "" {
		return commandValidationError("order_id", "order id is required")
	}
	if strings.TrimSpace(m.Request.PayerEmail) == "" {
		return commandValidationError("payer_email", "payer email is required")
	}
	if m.Request.AmountMinorUnits <= 0 {
		return commandValidationError("amount", "amount must be a positive number of minor units")
	}
	return nil
}

type ReplayDeadLetterMessage struct {
	TaskID string
}

func (ReplayDeadLetterMessage) Type() string { return TypeReplayDeadLetter }

func (m ReplayDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return commandValidationError("task_id", "task id is required")
	}
	return nil
}
