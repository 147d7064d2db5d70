// Package telemetry wires OpenTelemetry traces and metrics for gormscope.
// New builds the providers from Config, describes the service through the
// resource and registers the session, transaction and migration instruments
// on the meter provider it creates.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/consts"
	"github.com/gormscope/gormscope/pkg/logger"
)

const (
	exporterTimeout       = 10 * time.Second
	metricsServerTimeout  = 10 * time.Second
	defaultPrometheusPort = 9090
	defaultMetricsPath    = "/metrics"
)

// Config holds the telemetry configuration
type Config struct {
	Enabled bool `yaml:"enabled"`
	// ServiceName, ServiceVersion and Environment describe the service on
	// every exported span and metric
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	// Attributes are extra resource attributes, e.g. region or team
	Attributes map[string]string `yaml:"attributes,omitempty"`
	OTLP       OTLPConfig        `yaml:"otlp"`
	Prometheus PrometheusConfig  `yaml:"prometheus"`
}

// OTLPConfig holds the OTLP trace exporter settings
type OTLPConfig struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the collector address, e.g. "localhost:4317"
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// PrometheusConfig holds the Prometheus exporter settings
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
	// Port of the standalone metrics server. 0 uses 9090; a negative port
	// starts no server and metrics are only served through Handler.
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// Option customizes New
type Option func(*options)

type options struct {
	readers []sdkmetric.Reader
}

// WithReader adds a metric reader to the meter provider
func WithReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.readers = append(o.readers, r) }
}

// Telemetry owns the providers and exporters built by New
type Telemetry struct {
	config         Config
	resource       *resource.Resource
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        *Metrics
	registry       *prom.Registry
	metricsServer  *http.Server
}

// New builds the tracer and meter providers, installs them globally and
// registers the gormscope instruments. A disabled config returns an inert
// Telemetry and leaves the global no-op providers in place.
func New(cfg Config, opts ...Option) (*Telemetry, error) {
	if !cfg.Enabled {
		logger.Info("Telemetry is disabled")
		return &Telemetry{config: cfg}, nil
	}
	cfg = cfg.withDefaults()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	t := &Telemetry{config: cfg, resource: res}

	if err := t.initTracerProvider(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer provider: %w", err)
	}
	if err := t.initMeterProvider(o.readers); err != nil {
		return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
	}

	t.metrics, err = newMetrics(t.meterProvider.Meter(MeterName))
	if err != nil {
		return nil, fmt.Errorf("failed to register instruments: %w", err)
	}
	setMetrics(t.metrics)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Prometheus.Enabled && cfg.Prometheus.Port > 0 {
		t.startMetricsServer()
	}

	logger.Info("Telemetry initialized",
		zap.String("service_name", cfg.ServiceName),
		zap.String("service_version", cfg.ServiceVersion),
		zap.String("environment", cfg.Environment),
		zap.Bool("otlp_enabled", cfg.OTLP.Enabled),
		zap.Bool("prometheus_enabled", cfg.Prometheus.Enabled),
	)
	return t, nil
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = consts.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = consts.Version
	}
	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = defaultPrometheusPort
	}
	if c.Prometheus.Path == "" {
		c.Prometheus.Path = defaultMetricsPath
	}
	return c
}

// newResource describes the service. resource.New keeps the attributes
// free of a schema URL, so it merges with any semconv version.
func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.New(context.Background(),
		resource.WithAttributes(attrs...),
		resource.WithTelemetrySDK(),
	)
}

func (t *Telemetry) initTracerProvider() error {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(t.resource)}

	if t.config.OTLP.Enabled && t.config.OTLP.Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), exporterTimeout)
		defer cancel()

		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(t.config.OTLP.Endpoint)}
		if t.config.OTLP.Insecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("OTLP trace exporter initialized", zap.String("endpoint", t.config.OTLP.Endpoint))
	}

	t.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(t.tracerProvider)
	return nil
}

// initMeterProvider exports through a private Prometheus registry, so
// several Telemetry values never collide on the default registerer
func (t *Telemetry) initMeterProvider(readers []sdkmetric.Reader) error {
	opts := []sdkmetric.Option{sdkmetric.WithResource(t.resource)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	if t.config.Prometheus.Enabled {
		t.registry = prom.NewRegistry()
		t.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(t.registry))
		if err != nil {
			return fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
	}

	t.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(t.meterProvider)
	return nil
}

func (t *Telemetry) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle(t.config.Prometheus.Path, t.Handler())
	t.metricsServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", t.config.Prometheus.Port),
		Handler:      mux,
		ReadTimeout:  metricsServerTimeout,
		WriteTimeout: metricsServerTimeout,
	}

	go func() {
		logger.Info("Starting Prometheus metrics server",
			zap.Int("port", t.config.Prometheus.Port),
			zap.String("path", t.config.Prometheus.Path),
		)
		if err := t.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Prometheus metrics server error", zap.Error(err))
		}
	}()
}

// Handler serves the Prometheus exposition of the registered metrics.
// It is nil unless the Prometheus exporter is enabled.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// Metrics returns the instruments registered by New, nil when disabled
func (t *Telemetry) Metrics() *Metrics { return t.metrics }

// Resource returns the service resource, nil when disabled
func (t *Telemetry) Resource() *resource.Resource { return t.resource }

// IsEnabled reports whether telemetry is enabled
func (t *Telemetry) IsEnabled() bool { return t.config.Enabled }

// Shutdown stops the metrics server and flushes both providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.config.Enabled {
		return nil
	}
	logger.Info("Shutting down telemetry")

	var errs []error
	if t.metricsServer != nil {
		if err := t.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
