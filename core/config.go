package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	SignatureHeader string `koanf:"signature_header" mapstructure:"signature_header"`
	Secret          string `koanf:"secret" mapstructure:"secret"`
}

type GatewayConfig struct {
	BaseURL   string        `koanf:"base_url" mapstructure:"base_url"`
	SecretKey string        `koanf:"secret_key" mapstructure:"secret_key"`
	Timeout   time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
	PollInterval   time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	IdleDelay      time.Duration `koanf:"idle_delay" mapstructure:"idle_delay"`
}

type Config struct {
	ServiceName        string        `koanf:"service_name" mapstructure:"service_name"`
	Webhook            WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Gateway            GatewayConfig `koanf:"gateway" mapstructure:"gateway"`
	Retry              RetryConfig   `koanf:"retry" mapstructure:"retry"`
	AmountCheckEnabled bool          `koanf:"amount_check_enabled" mapstructure:"amount_check_enabled"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "payments",
		Webhook: WebhookConfig{
			SignatureHeader: "X-Paystack-Signature",
		},
		Gateway: GatewayConfig{
			BaseURL: "https://api.paystack.co",
			Timeout: 10 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: time.Minute,
			MaxBackoff:     15 * time.Minute,
			BatchSize:      25,
			PollInterval:   time.Second,
			IdleDelay:      5 * time.Second,
		},
		AmountCheckEnabled: true,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Webhook.SignatureHeader) == "" {
		return fmt.Errorf("core: webhook.signature_header is required")
	}
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		return fmt.Errorf("core: gateway.base_url is required")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("core: gateway.timeout must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("core: retry.max_attempts must be positive")
	}
	if c.Retry.InitialBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("core: retry backoff bounds are invalid")
	}
	return nil
}
