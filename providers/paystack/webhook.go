package paystack

import (
	"strings"

	"github.com/goliatone/go-payments/webhooks"
)

const HeaderSignature = "X-Paystack-Signature"

// NewWebhookVerifier builds the Paystack signature verifier: HMAC-SHA512 of
// the exact raw body, hex-encoded. Paystack sends no delivery id header, so
// duplicate handling happens downstream at reconciliation.
func NewWebhookVerifier(secret string) webhooks.HeaderHMACVerifier {
	return webhooks.HeaderHMACVerifier{
		Header:    HeaderSignature,
		Secret:    strings.TrimSpace(secret),
		Algorithm: "sha512",
		Encoding:  "hex",
	}
}
