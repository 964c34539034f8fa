// Package structflow wires configuration, transport, provider framing,
// extraction and the optional cache/audit/metrics/telemetry collaborators into
// one entry point.
//
// Usage:
//
//	cfg, _ := config.Load("structflow.yaml")
//	sf, err := structflow.New(cfg, structflow.WithLogger(logger))
//	defer sf.Close(ctx)
//
//	target, err := sf.Extract(ctx, schema, "Jason is 25 years old", nil)
//	form, err := structflow.ExtractForm[Person](ctx, sf, "Jason is 25 years old", nil)
package structflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/extraction"
	"github.com/BaSui01/structflow/internal/audit"
	"github.com/BaSui01/structflow/internal/cache"
	"github.com/BaSui01/structflow/internal/database"
	"github.com/BaSui01/structflow/internal/metrics"
	"github.com/BaSui01/structflow/internal/telemetry"
	"github.com/BaSui01/structflow/llm/providers"
	"github.com/BaSui01/structflow/llm/transport"
	"github.com/BaSui01/structflow/structured"
)

// Option configures New.
type Option func(*settings)

type settings struct {
	logger    *zap.Logger
	registry  *prometheus.Registry
	transport transport.StreamingClient
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry registers extraction metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *settings) { s.registry = reg }
}

// WithStreamingClient replaces the HTTP transport, e.g. with a scripted fake.
func WithStreamingClient(c transport.StreamingClient) Option {
	return func(s *settings) { s.transport = c }
}

// Extractor is the assembled pipeline.
type Extractor struct {
	cfg          *config.Config
	logger       *zap.Logger
	client       *extraction.Client
	orchestrator *extraction.Orchestrator
	validator    structured.SchemaValidator
	registry     *prometheus.Registry
	closers      []func(context.Context) error
}

// New assembles an Extractor from cfg. Collaborators disabled in cfg are not
// created; a failure creating an enabled one is returned.
func New(cfg *config.Config, opts ...Option) (*Extractor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}

	e := &Extractor{cfg: cfg, logger: s.logger.With(zap.String("component", "structflow"))}
	ok := false
	defer func() {
		if !ok {
			_ = e.Close(context.Background())
		}
	}()

	policy, err := extraction.ParseFragmentPolicy(cfg.Extraction.FragmentPolicy)
	if err != nil {
		return nil, err
	}
	e.validator, err = NewValidator(cfg.Extraction.Validator)
	if err != nil {
		return nil, err
	}

	provider, err := providers.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	tel, err := telemetry.Init(cfg.Telemetry, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	e.closers = append(e.closers, tel.Shutdown)

	stream := s.transport
	if stream == nil {
		topts := []transport.Option{
			transport.WithLogger(s.logger),
			transport.WithRateLimit(cfg.LLM.RateLimitRPS, cfg.LLM.RateLimitBurst),
		}
		if p := tel.Propagator(); p != nil {
			topts = append(topts, transport.WithPropagator(p))
		}
		stream = transport.NewHTTPClient(cfg.LLM.Timeout, topts...)
	}

	common := []extraction.Option{
		extraction.WithLogger(s.logger),
		extraction.WithTracerProvider(tel.TracerProvider()),
	}

	if cfg.Metrics.Enabled || s.registry != nil {
		e.registry = s.registry
		if e.registry == nil {
			e.registry = prometheus.NewRegistry()
		}
		collector := metrics.NewCollector(cfg.Metrics.Namespace, e.registry, s.logger)
		common = append(common, extraction.WithObserver(collector))
	}

	clientOpts := append([]extraction.Option{
		extraction.WithFragmentPolicy(policy),
		extraction.WithMaxLineSize(cfg.Extraction.MaxLineSize),
	}, common...)
	e.client = extraction.NewClient(stream, provider, clientOpts...)

	orchOpts := append([]extraction.Option{
		extraction.WithErrorFeedback(cfg.Extraction.ErrorFeedback),
		extraction.WithRetryDelay(cfg.Extraction.RetryDelay, cfg.Extraction.MaxRetryDelay),
	}, common...)

	if cfg.Cache.Enabled {
		mgr, err := cache.NewManager(cache.Config{
			Addr:       cfg.Cache.Addr,
			Password:   cfg.Cache.Password,
			DB:         cfg.Cache.DB,
			DefaultTTL: cfg.Cache.TTL,
			TLS:        cfg.Cache.TLS,
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("connect result cache: %w", err)
		}
		e.closers = append(e.closers, func(context.Context) error { return mgr.Close() })
		orchOpts = append(orchOpts, extraction.WithCache(
			cache.NewResultCache(mgr, cfg.Cache.Prefix, cfg.Cache.TTL).ForModel(provider.Name(), provider.Model())))
	}

	if cfg.Audit.Enabled {
		pool, err := database.Open(cfg.Audit, s.logger)
		if err != nil {
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		store, err := audit.NewStore(pool, s.logger)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		e.closers = append(e.closers, func(context.Context) error { return store.Close() })
		orchOpts = append(orchOpts, extraction.WithRecorder(store))
	}

	e.orchestrator = extraction.NewOrchestrator(e.client, orchOpts...)

	e.logger.Info("extractor ready",
		zap.String("provider", provider.Name()),
		zap.String("validator", cfg.Extraction.Validator),
		zap.Int("max_retries", cfg.Extraction.MaxRetries),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("audit", cfg.Audit.Enabled),
	)
	ok = true
	return e, nil
}

// NewValidator returns the schema validator named by the extraction.validator
// setting.
func NewValidator(name string) (structured.SchemaValidator, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return structured.NewValidator(), nil
	case "openapi":
		return structured.NewOpenAPIValidator(), nil
	default:
		return nil, fmt.Errorf("unknown validator %q", name)
	}
}

// Extract runs one extraction with the configured retry budget.
func (e *Extractor) Extract(ctx context.Context, schema *structured.JSONSchema, prompt string, onChunk extraction.ProgressFunc) (extraction.Target, error) {
	return e.ExtractWithRetries(ctx, schema, prompt, e.cfg.Extraction.MaxRetries, onChunk)
}

// ExtractWithRetries is Extract with an explicit retry budget.
func (e *Extractor) ExtractWithRetries(ctx context.Context, schema *structured.JSONSchema, prompt string, maxRetries int, onChunk extraction.ProgressFunc) (extraction.Target, error) {
	return e.orchestrator.Run(ctx, extraction.DocumentFactory(schema, e.FormOptions()...), prompt, maxRetries, onChunk)
}

// ExtractForm extracts into a T whose schema is generated from its struct tags.
func ExtractForm[T any](ctx context.Context, e *Extractor, prompt string, onChunk extraction.ProgressFunc) (*structured.Form[T], error) {
	return extraction.SubmitForm[T](ctx, e.orchestrator, prompt, e.cfg.Extraction.MaxRetries, onChunk, e.FormOptions()...)
}

// FormOptions returns the target options carrying the configured validator.
func (e *Extractor) FormOptions() []structured.FormOption {
	return []structured.FormOption{structured.WithValidator(e.validator)}
}

// Client exposes the single-pass client.
func (e *Extractor) Client() *extraction.Client { return e.client }

// Orchestrator exposes the retry orchestrator.
func (e *Extractor) Orchestrator() *extraction.Orchestrator { return e.orchestrator }

// MetricsHandler serves the extraction metrics, or nil when metrics are off.
func (e *Extractor) MetricsHandler() http.Handler {
	if e.registry == nil {
		return nil
	}
	return metrics.Handler(e.registry)
}

// Close releases the cache, audit database and tracer provider.
func (e *Extractor) Close(ctx context.Context) error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
