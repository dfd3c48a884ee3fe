package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PaymentErrorBadInput           = "PAYMENT_BAD_INPUT"
	PaymentErrorSignatureInvalid   = "PAYMENT_SIGNATURE_INVALID"
	PaymentErrorMalformedPayload   = "PAYMENT_MALFORMED_PAYLOAD"
	PaymentErrorOrderNotFound      = "PAYMENT_ORDER_NOT_FOUND"
	PaymentErrorStoreUnavailable   = "PAYMENT_STORE_UNAVAILABLE"
	PaymentErrorGatewayUnavailable = "PAYMENT_GATEWAY_UNAVAILABLE"
	PaymentErrorAmountMismatch     = "PAYMENT_AMOUNT_MISMATCH"
	PaymentErrorDeadLettered       = "PAYMENT_DEAD_LETTERED"
	PaymentErrorInternal           = "PAYMENT_INTERNAL_ERROR"
)

func NewSignatureError(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(PaymentErrorSignatureInvalid)
}

func NewMalformedPayloadError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(PaymentErrorMalformedPayload)
}

func NewOrderNotFoundError(reference string) error {
	return goerrors.New("core: no order found for reference "+strings.TrimSpace(reference), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(PaymentErrorOrderNotFound).
		WithMetadata(map[string]any{"reference": strings.TrimSpace(reference)})
}

func NewStoreUnavailableError(cause error, message string) error {
	err := goerrors.Wrap(cause, goerrors.CategoryInternal, message)
	if err == nil {
		err = goerrors.New(message, goerrors.CategoryInternal)
	}
	return err.
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(PaymentErrorStoreUnavailable)
}

func NewGatewayUnavailableError(cause error, message string) error {
	err := goerrors.Wrap(cause, goerrors.CategoryInternal, message)
	if err == nil {
		err = goerrors.New(message, goerrors.CategoryInternal)
	}
	return err.
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(PaymentErrorGatewayUnavailable)
}

func NewAmountMismatchError(reference string, eventAmount int64, orderAmount int64) error {
	return goerrors.New("core: event amount does not match order total", goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(PaymentErrorAmountMismatch).
		WithMetadata(map[string]any{
			"reference":    strings.TrimSpace(reference),
			"event_amount": eventAmount,
			"order_amount": orderAmount,
		})
}

func NewDeadLetteredError(reference string, attempts int) error {
	return goerrors.New("core: retry budget exhausted for reference "+strings.TrimSpace(reference), goerrors.CategoryOperation).
		WithCode(http.StatusInternalServerError).
		WithTextCode(PaymentErrorDeadLettered).
		WithMetadata(map[string]any{
			"reference": strings.TrimSpace(reference),
			"attempts":  attempts,
		})
}

func NewInternalError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(PaymentErrorInternal)
}

// IsRetryable reports whether an error represents a transient condition the
// retry pipeline should re-attempt. Terminal conditions (bad signature,
// malformed payload, amount mismatch, dead-lettered) are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch TextCode(err) {
	case PaymentErrorOrderNotFound, PaymentErrorStoreUnavailable, PaymentErrorGatewayUnavailable:
		return true
	}
	return false
}

// TextCode extracts the payment text code from an error envelope, or "" when
// the error carries none.
func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ""
	}
	return strings.TrimSpace(richErr.TextCode)
}

// HTTPStatus resolves the response status for an error envelope, defaulting
// to 500 for errors without one.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

// MapError normalizes foreign errors into a payment error envelope, keeping
// envelopes that already carry one.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePaymentErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return ensurePaymentErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryAuth).WithTextCode(PaymentErrorSignatureInvalid),
		)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "unavailable"):
		return ensurePaymentErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryInternal).WithTextCode(PaymentErrorStoreUnavailable),
		)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return ensurePaymentErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(PaymentErrorBadInput),
		)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePaymentErrorEnvelope(mapped)
}

func ensurePaymentErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = paymentHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPaymentTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPaymentTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return PaymentErrorBadInput
	case goerrors.CategoryNotFound:
		return PaymentErrorOrderNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return PaymentErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return PaymentErrorAmountMismatch
	default:
		return PaymentErrorInternal
	}
}

func paymentHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
