package payments

import (
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers/paystack"
	"github.com/goliatone/go-payments/ratelimit"
	"github.com/goliatone/go-payments/webhooks"
)

// PaystackGateway builds the Paystack API client from a gateway config
// section. The client carries its own adaptive rate limiter.
func PaystackGateway(cfg core.GatewayConfig) (core.GatewayClient, error) {
	return paystack.NewClient(paystack.Config{
		BaseURL:   cfg.BaseURL,
		SecretKey: cfg.SecretKey,
		Timeout:   cfg.Timeout,
		Limiter:   ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore()),
	})
}

// PaystackWebhookVerifier returns the signature verifier for Paystack
// deliveries.
func PaystackWebhookVerifier(secret string) webhooks.Verifier {
	return paystack.NewWebhookVerifier(secret)
}

// DefaultExtensionHooks returns hooks preloaded with the built-in gateway.
func DefaultExtensionHooks() (*ExtensionHooks, error) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterGatewayFactory(paystack.ProviderID, PaystackGateway); err != nil {
		return nil, err
	}
	return hooks, nil
}
