package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/goliatone/go-payments/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// HeaderHMACVerifier validates a keyed hash carried in a request header
// against the raw request body. Comparison is constant-time.
type HeaderHMACVerifier struct {
	Header    string
	Prefix    string
	Secret    string
	Algorithm string // sha256 | sha512
	Encoding  string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return core.NewSignatureError(fmt.Sprintf("webhooks: %s signature header is required", strings.TrimSpace(v.Header)))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return core.NewSignatureError("webhooks: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return core.NewSignatureError("webhooks: signature value is required")
	}

	mac := hmac.New(v.hashFunc(), []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return core.NewSignatureError("webhooks: decode base64 signature: " + err.Error())
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return core.NewSignatureError("webhooks: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return core.NewSignatureError("webhooks: decode hex signature: " + err.Error())
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return core.NewSignatureError("webhooks: signature verification failed")
		}
	}
	return nil
}

func (v HeaderHMACVerifier) hashFunc() func() hash.Hash {
	switch strings.ToLower(strings.TrimSpace(v.Algorithm)) {
	case "sha256":
		return sha256.New
	default:
		return sha512.New
	}
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
