// Package payments wires webhook ingestion, gateway verification, order
// reconciliation, and the durable retry pipeline into one subsystem.
package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/inbound"
	"github.com/goliatone/go-payments/providers/paystack"
	"github.com/goliatone/go-payments/ratelimit"
	"github.com/goliatone/go-payments/reconcile"
	"github.com/goliatone/go-payments/retry"
	sqlstore "github.com/goliatone/go-payments/store/sql"
	"github.com/goliatone/go-payments/webhooks"
)

type Config = core.Config

type RetryConfig = core.RetryConfig

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Service owns every collaborator of the reconciliation subsystem. Build it
// with NewService or Setup, then mount WebhookHandler and run Runner.
type Service struct {
	config   core.Config
	logger   core.Logger
	provider core.LoggerProvider
	metrics  core.MetricsRecorder
	alerts   core.AlertSink
	observer core.Observer

	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver

	repoFactory       *sqlstore.RepositoryFactory
	persistenceClient any

	gateway core.GatewayClient
	orders  core.OrderStore
	tasks   core.RetryTaskStore

	engine    *reconcile.Engine
	pipeline  *retry.Pipeline
	runner    *retry.Runner
	processor *webhooks.Processor
	endpoint  *inbound.WebhookEndpoint

	now func() time.Time
}

type Option func(*Service)

func WithLogger(logger core.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(s *Service) { s.provider = provider }
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(s *Service) { s.metrics = metrics }
}

func WithAlertSink(alerts core.AlertSink) Option {
	return func(s *Service) { s.alerts = alerts }
}

func WithGatewayClient(gateway core.GatewayClient) Option {
	return func(s *Service) { s.gateway = gateway }
}

func WithOrderStore(orders core.OrderStore) Option {
	return func(s *Service) { s.orders = orders }
}

func WithRetryTaskStore(tasks core.RetryTaskStore) Option {
	return func(s *Service) { s.tasks = tasks }
}

func WithRepositoryFactory(factory *sqlstore.RepositoryFactory) Option {
	return func(s *Service) { s.repoFactory = factory }
}

// WithPersistenceClient accepts a go-persistence-bun client (or anything
// exposing DB() *bun.DB) and builds the SQL stores from it.
func WithPersistenceClient(client any) Option {
	return func(s *Service) { s.persistenceClient = client }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(s *Service) { s.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(s *Service) { s.optionsResolver = resolver }
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	s := &Service{config: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}

	if err := s.resolveConfig(); err != nil {
		return nil, err
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	s.provider, s.logger = glog.Resolve(s.config.ServiceName, s.provider, s.logger)
	if s.metrics == nil {
		s.metrics = core.NopMetricsRecorder{}
	}
	if s.alerts == nil {
		s.alerts = core.NopAlertSink{}
	}
	s.observer = core.Observer{Logger: s.logger, Metrics: s.metrics}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	if err := s.resolveStores(); err != nil {
		return nil, err
	}
	if err := s.resolveGateway(); err != nil {
		return nil, err
	}
	return s, s.assemble()
}

// Setup is NewService with defaults merged in for any zero-value config
// section.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	resolver := core.GoOptionsResolver{}
	resolved, err := resolver.Resolve(core.DefaultConfig(), core.Config{}, cfg)
	if err != nil {
		return nil, err
	}
	return NewService(resolved, opts...)
}

func (s *Service) resolveConfig() error {
	if s.configProvider == nil {
		return nil
	}
	loaded, err := s.configProvider.Load(context.Background(), core.DefaultConfig())
	if err != nil {
		return fmt.Errorf("payments: load config: %w", err)
	}
	resolver := s.optionsResolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	resolved, err := resolver.Resolve(core.DefaultConfig(), loaded, s.config)
	if err != nil {
		return fmt.Errorf("payments: resolve config: %w", err)
	}
	s.config = resolved
	return nil
}

func (s *Service) resolveStores() error {
	if s.orders != nil && s.tasks != nil {
		return nil
	}
	factory := s.repoFactory
	if factory == nil && s.persistenceClient != nil {
		factory = sqlstore.NewRepositoryFactory()
		if err := factory.BuildStores(s.persistenceClient); err != nil {
			return err
		}
		s.repoFactory = factory
	}
	if factory == nil {
		return fmt.Errorf("payments: order and retry task stores are required (set stores, a repository factory, or a persistence client)")
	}
	if s.orders == nil {
		s.orders = factory.OrderStore()
	}
	if s.tasks == nil {
		s.tasks = factory.RetryTaskStore()
	}
	if s.orders == nil || s.tasks == nil {
		return fmt.Errorf("payments: repository factory did not produce stores")
	}
	return nil
}

func (s *Service) resolveGateway() error {
	if s.gateway != nil {
		return nil
	}
	if strings.TrimSpace(s.config.Gateway.SecretKey) == "" {
		return fmt.Errorf("payments: gateway client or gateway secret key is required")
	}
	client, err := paystack.NewClient(paystack.Config{
		BaseURL:   s.config.Gateway.BaseURL,
		SecretKey: s.config.Gateway.SecretKey,
		Timeout:   s.config.Gateway.Timeout,
		Limiter:   ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore()),
	})
	if err != nil {
		return err
	}
	s.gateway = client
	return nil
}

func (s *Service) assemble() error {
	engine, err := reconcile.NewEngine(s.orders)
	if err != nil {
		return err
	}
	engine.Alerts = s.alerts
	engine.Observer = s.observer
	engine.AmountCheck = s.config.AmountCheckEnabled
	engine.Now = s.now
	s.engine = engine

	pipeline, err := retry.NewPipeline(s.tasks, engine)
	if err != nil {
		return err
	}
	pipeline.Gateway = s.gateway
	pipeline.Alerts = s.alerts
	pipeline.Observer = s.observer
	pipeline.Config = s.config.Retry
	pipeline.Now = s.now
	s.pipeline = pipeline

	runner, err := retry.NewRunner(pipeline)
	if err != nil {
		return err
	}
	runner.Observer = s.observer
	s.runner = runner

	verifier := webhooks.HeaderHMACVerifier{
		Header:    s.config.Webhook.SignatureHeader,
		Secret:    s.config.Webhook.Secret,
		Algorithm: "sha512",
		Encoding:  "hex",
	}
	processor := webhooks.NewProcessor(verifier, engine, pipeline)
	processor.Observer = s.observer
	processor.Now = s.now
	s.processor = processor

	endpoint, err := inbound.NewWebhookEndpoint(processor, paystack.ProviderID)
	if err != nil {
		return err
	}
	endpoint.Observer = s.observer
	s.endpoint = endpoint
	return nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Observer() core.Observer {
	if s == nil {
		return core.Observer{}
	}
	return s.observer
}

func (s *Service) Engine() *reconcile.Engine {
	if s == nil {
		return nil
	}
	return s.engine
}

func (s *Service) Pipeline() *retry.Pipeline {
	if s == nil {
		return nil
	}
	return s.pipeline
}

// Runner returns the retry dispatch loop. Call Run on it from a goroutine;
// it exits when the context is canceled.
func (s *Service) Runner() *retry.Runner {
	if s == nil {
		return nil
	}
	return s.runner
}

func (s *Service) Processor() *webhooks.Processor {
	if s == nil {
		return nil
	}
	return s.processor
}

// WebhookHandler returns the HTTP handler for gateway webhook deliveries.
func (s *Service) WebhookHandler() http.Handler {
	if s == nil {
		return nil
	}
	return s.endpoint
}

func (s *Service) Gateway() core.GatewayClient {
	if s == nil {
		return nil
	}
	return s.gateway
}

func (s *Service) Orders() core.OrderStore {
	if s == nil {
		return nil
	}
	return s.orders
}

func (s *Service) Tasks() core.RetryTaskStore {
	if s == nil {
		return nil
	}
	return s.tasks
}

func (s *Service) RepositoryFactory() *sqlstore.RepositoryFactory {
	if s == nil {
		return nil
	}
	return s.repoFactory
}
