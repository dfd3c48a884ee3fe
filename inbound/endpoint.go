package inbound

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
)

const defaultMaxBodyBytes = 1 << 20

// Processor drives one raw webhook delivery to a final disposition.
type Processor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// WebhookEndpoint adapts net/http to the webhook processor. It accepts
// POST only and never rewrites the body bytes it hands downstream.
type WebhookEndpoint struct {
	Processor    Processor
	ProviderID   string
	MaxBodyBytes int64
	Observer     core.Observer
}

func NewWebhookEndpoint(processor Processor, providerID string) (*WebhookEndpoint, error) {
	if processor == nil {
		return nil, inboundInternal("inbound: webhook processor is required", nil)
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, inboundBadInput("inbound: provider id is required", nil)
	}
	return &WebhookEndpoint{
		Processor:    processor,
		ProviderID:   providerID,
		MaxBodyBytes: defaultMaxBodyBytes,
	}, nil
}

func (e *WebhookEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e == nil || e.Processor == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "error",
			"error":  core.PaymentErrorInternal,
		})
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"status": "error",
			"error":  core.PaymentErrorBadInput,
		})
		return
	}

	startedAt := time.Now().UTC()
	maxBytes := e.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		e.Observer.LogError(r.Context(), "webhook body read failed", map[string]any{
			"provider_id": e.ProviderID,
			"error":       err.Error(),
		})
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "error",
			"error":  core.PaymentErrorBadInput,
		})
		return
	}
	if int64(len(body)) > maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"status": "error",
			"error":  core.PaymentErrorBadInput,
		})
		return
	}

	result, err := e.Processor.Process(r.Context(), core.InboundRequest{
		ProviderID: e.ProviderID,
		Headers:    flattenHeaders(r.Header),
		Body:       body,
	})

	statusCode := result.StatusCode
	if statusCode == 0 {
		if err != nil {
			statusCode = core.HTTPStatus(err)
		} else {
			statusCode = http.StatusOK
		}
	}

	response := map[string]any{"status": "ok"}
	if !result.Accepted {
		response["status"] = "error"
		if err != nil {
			response["error"] = core.TextCode(err)
		}
	}
	for key, value := range result.Metadata {
		response[key] = value
	}

	e.Observer.ObserveOperation(r.Context(), startedAt, "webhook_http", err, map[string]any{
		"provider_id": e.ProviderID,
		"status_code": statusCode,
		"outcome":     string(result.Outcome),
	})
	writeJSON(w, statusCode, response)
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	flattened := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		flattened[key] = values[0]
	}
	return flattened
}

func writeJSON(w http.ResponseWriter, statusCode int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

var _ http.Handler = (*WebhookEndpoint)(nil)
