package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/ratelimit"
)

const (
	ProviderID = "paystack"

	defaultBaseURL = "https://api.paystack.co"
	defaultTimeout = 10 * time.Second

	verifyPathPrefix = "/transaction/verify/"
	initializePath   = "/transaction/initialize"

	transactionBucket = "transaction"
)

// Limiter gates outbound calls on learned rate limit state. It is satisfied
// by ratelimit.AdaptivePolicy.
type Limiter interface {
	BeforeCall(ctx context.Context, key ratelimit.Key) error
	AfterCall(ctx context.Context, key ratelimit.Key, res ratelimit.ResponseMeta) error
}

type Config struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Limiter    Limiter
}

func DefaultClientConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: defaultTimeout,
	}
}

// Client is the Paystack API client. Every call runs under a bounded
// timeout; transport failures and non-2xx responses surface as
// gateway-unavailable errors so callers can route them to the retry
// pipeline.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	timeout    time.Duration
	limiter    Limiter
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("providers/paystack: parse base url: %w", err)
	}
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("providers/paystack: secret key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: httpClient,
		timeout:    timeout,
		limiter:    cfg.Limiter,
	}, nil
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transactionData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyTransaction asks Paystack for the authoritative state of a
// transaction reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (core.GatewayVerification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return core.GatewayVerification{}, core.NewMalformedPayloadError("providers/paystack: reference is required")
	}

	endpoint := c.baseURL + verifyPathPrefix + url.PathEscape(reference)
	var envelope apiEnvelope
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &envelope); err != nil {
		return core.GatewayVerification{}, err
	}
	if !envelope.Status {
		return core.GatewayVerification{}, core.NewGatewayUnavailableError(nil,
			fmt.Sprintf("providers/paystack: verify %q: %s", reference, envelope.Message))
	}

	var data transactionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return core.GatewayVerification{}, core.NewGatewayUnavailableError(err,
			"providers/paystack: decode verify response")
	}

	verification := core.GatewayVerification{
		Reference:        data.Reference,
		Status:           strings.ToLower(strings.TrimSpace(data.Status)),
		AmountMinorUnits: data.Amount,
		Currency:         data.Currency,
		Channel:          data.Channel,
		PayerEmail:       data.Customer.Email,
	}
	if verification.Reference == "" {
		verification.Reference = reference
	}
	if paidAt, err := time.Parse(time.RFC3339, strings.TrimSpace(data.PaidAt)); err == nil {
		utc := paidAt.UTC()
		verification.PaidAt = &utc
	}
	return verification, nil
}

// InitializeTransaction creates a pending transaction and returns the
// checkout authorization URL. Amounts are minor units end to end, matching
// what Paystack expects on the wire.
func (c *Client) InitializeTransaction(ctx context.Context, req core.InitializeTransactionRequest) (core.InitializeTransactionResult, error) {
	if strings.TrimSpace(req.PayerEmail) == "" {
		return core.InitializeTransactionResult{}, core.NewMalformedPayloadError("providers/paystack: payer email is required")
	}
	if req.AmountMinorUnits <= 0 {
		return core.InitializeTransactionResult{}, core.NewMalformedPayloadError("providers/paystack: amount must be positive")
	}

	body := map[string]any{
		"email":  req.PayerEmail,
		"amount": req.AmountMinorUnits,
	}
	if strings.TrimSpace(req.Currency) != "" {
		body["currency"] = req.Currency
	}
	if strings.TrimSpace(req.CallbackURL) != "" {
		body["callback_url"] = req.CallbackURL
	}

	var envelope apiEnvelope
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+initializePath, body, &envelope); err != nil {
		return core.InitializeTransactionResult{}, err
	}
	if !envelope.Status {
		return core.InitializeTransactionResult{}, core.NewGatewayUnavailableError(nil,
			fmt.Sprintf("providers/paystack: initialize transaction: %s", envelope.Message))
	}

	var data initializeData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return core.InitializeTransactionResult{}, core.NewGatewayUnavailableError(err,
			"providers/paystack: decode initialize response")
	}
	return core.InitializeTransactionResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method string, endpoint string, body any, out *apiEnvelope) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return core.NewInternalError(fmt.Sprintf("providers/paystack: encode request body: %v", err))
		}
		reader = bytes.NewReader(encoded)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	limitKey := ratelimit.Key{ProviderID: ProviderID, BucketKey: transactionBucket}
	if c.limiter != nil {
		if err := c.limiter.BeforeCall(callCtx, limitKey); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return throttled.ToPaymentError()
			}
			return core.NewGatewayUnavailableError(err, "providers/paystack: rate limit check")
		}
	}

	req, err := http.NewRequestWithContext(callCtx, method, endpoint, reader)
	if err != nil {
		return core.NewInternalError(fmt.Sprintf("providers/paystack: build request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.NewGatewayUnavailableError(err, "providers/paystack: call "+endpoint)
	}
	defer resp.Body.Close()

	c.recordRateLimit(callCtx, limitKey, resp)

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return core.NewGatewayUnavailableError(err, "providers/paystack: read response body")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ratelimit.ThrottledError{ProviderID: ProviderID, BucketKey: transactionBucket}.ToPaymentError()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.NewGatewayUnavailableError(nil,
			fmt.Sprintf("providers/paystack: %s returned status %d", endpoint, resp.StatusCode))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return core.NewGatewayUnavailableError(err, "providers/paystack: decode response body")
	}
	return nil
}

// recordRateLimit feeds response headers back into the limiter. State store
// failures are swallowed, a bookkeeping miss must not fail a live call.
func (c *Client) recordRateLimit(ctx context.Context, key ratelimit.Key, resp *http.Response) {
	if c.limiter == nil || resp == nil {
		return
	}
	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}
	_ = c.limiter.AfterCall(ctx, key, ratelimit.ResponseMeta{
		StatusCode: resp.StatusCode,
		Headers:    headers,
	})
}

var _ core.GatewayClient = (*Client)(nil)
