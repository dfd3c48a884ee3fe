package webhooks

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
)

type gatewayEnvelope struct {
	Event string       `json:"event"`
	Data  gatewayEvent `json:"data"`
}

type gatewayEvent struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Channel   string          `json:"channel"`
	PaidAt    string          `json:"paidAt"`
	Customer  gatewayCustomer `json:"customer"`
}

type gatewayCustomer struct {
	Email string `json:"email"`
}

// Normalize parses a verified gateway payload into a canonical PaymentEvent.
// Only charge.success events are processable; every other event type comes
// back as EventIgnored and must still be acknowledged, because the gateway
// treats a 200 as a delivery receipt regardless of local processing.
func Normalize(body []byte) (core.PaymentEvent, error) {
	if len(body) == 0 {
		return core.PaymentEvent{}, core.NewMalformedPayloadError("webhooks: payload body is empty")
	}

	var envelope gatewayEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.PaymentEvent{}, core.NewMalformedPayloadError("webhooks: decode payload: " + err.Error())
	}

	eventType := strings.TrimSpace(envelope.Event)
	if eventType == "" {
		return core.PaymentEvent{}, core.NewMalformedPayloadError("webhooks: event type is required")
	}

	if eventType != string(core.EventChargeSuccess) {
		return core.PaymentEvent{
			Type:       core.EventIgnored,
			Reference:  strings.TrimSpace(envelope.Data.Reference),
			RawPayload: append([]byte(nil), body...),
		}, nil
	}

	reference := strings.TrimSpace(envelope.Data.Reference)
	if reference == "" {
		return core.PaymentEvent{}, core.NewMalformedPayloadError("webhooks: data.reference is required")
	}
	status := strings.TrimSpace(envelope.Data.Status)
	if status == "" {
		return core.PaymentEvent{}, core.NewMalformedPayloadError("webhooks: data.status is required")
	}

	event := core.PaymentEvent{
		Type:             core.EventChargeSuccess,
		Reference:        reference,
		GatewayStatus:    status,
		AmountMinorUnits: envelope.Data.Amount,
		Currency:         strings.TrimSpace(envelope.Data.Currency),
		Channel:          strings.TrimSpace(envelope.Data.Channel),
		PayerEmail:       strings.TrimSpace(envelope.Data.Customer.Email),
		RawPayload:       append([]byte(nil), body...),
	}
	if raw := strings.TrimSpace(envelope.Data.PaidAt); raw != "" {
		if paidAt, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := paidAt.UTC()
			event.PaidAt = &utc
		}
	}
	return event, nil
}
