package core

import (
	"context"
	"fmt"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || cfg.ServiceName != "" {
		layer["service_name"] = cfg.ServiceName
	}

	webhook := map[string]any{}
	if includeZero || cfg.Webhook.SignatureHeader != "" {
		webhook["signature_header"] = cfg.Webhook.SignatureHeader
	}
	if includeZero || cfg.Webhook.Secret != "" {
		webhook["secret"] = cfg.Webhook.Secret
	}
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}

	gateway := map[string]any{}
	if includeZero || cfg.Gateway.BaseURL != "" {
		gateway["base_url"] = cfg.Gateway.BaseURL
	}
	if includeZero || cfg.Gateway.SecretKey != "" {
		gateway["secret_key"] = cfg.Gateway.SecretKey
	}
	if includeZero || cfg.Gateway.Timeout > 0 {
		gateway["timeout"] = cfg.Gateway.Timeout
	}
	if len(gateway) > 0 {
		layer["gateway"] = gateway
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxAttempts > 0 {
		retry["max_attempts"] = cfg.Retry.MaxAttempts
	}
	if includeZero || cfg.Retry.InitialBackoff > 0 {
		retry["initial_backoff"] = cfg.Retry.InitialBackoff
	}
	if includeZero || cfg.Retry.MaxBackoff > 0 {
		retry["max_backoff"] = cfg.Retry.MaxBackoff
	}
	if includeZero || cfg.Retry.BatchSize > 0 {
		retry["batch_size"] = cfg.Retry.BatchSize
	}
	if includeZero || cfg.Retry.PollInterval > 0 {
		retry["poll_interval"] = cfg.Retry.PollInterval
	}
	if includeZero || cfg.Retry.IdleDelay > 0 {
		retry["idle_delay"] = cfg.Retry.IdleDelay
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	if includeZero || cfg.AmountCheckEnabled {
		layer["amount_check_enabled"] = cfg.AmountCheckEnabled
	}
	return layer
}
