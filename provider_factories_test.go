package payments

import (
	"context"
	"testing"

	"github.com/goliatone/go-payments/core"
)

func TestPaystackGateway_RequiresSecretKey(t *testing.T) {
	if _, err := PaystackGateway(core.GatewayConfig{}); err == nil {
		t.Fatalf("expected missing secret key error")
	}

	client, err := PaystackGateway(core.GatewayConfig{SecretKey: "sk_test_123"})
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}
	if client == nil {
		t.Fatalf("expected gateway client")
	}
}

func TestPaystackWebhookVerifier_VerifiesSignedBody(t *testing.T) {
	verifier := PaystackWebhookVerifier("whsec_test")

	body := []byte(`{"event":"charge.success"}`)
	req := core.InboundRequest{
		ProviderID: "paystack",
		Headers:    map[string]string{"X-Paystack-Signature": "not-a-signature"},
		Body:       body,
	}
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatalf("expected signature rejection")
	}
}
