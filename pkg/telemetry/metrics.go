// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/gormscope/gormscope"
)

// Metrics holds all application metrics
type Metrics struct {
	// Session metrics
	SessionsOpened metric.Int64Counter
	SessionsClosed metric.Int64Counter
	ActiveSessions metric.Int64UpDownCounter

	// Transaction scope metrics
	TransactionsTotal metric.Int64Counter

	// Migration metrics
	MigrationsApplied metric.Int64Counter

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

var (
	globalMetrics atomic.Pointer[Metrics]
	metricsOnce   sync.Once
)

// GetMetrics returns the instruments recorders report to. Before New runs
// they come from the global meter provider, which is a no-op until one is
// installed.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		if globalMetrics.Load() != nil {
			return
		}
		m, err := newMetrics(otel.Meter(MeterName))
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			// empty instruments keep every recorder nil-safe
			m = &Metrics{}
		}
		globalMetrics.CompareAndSwap(nil, m)
	})
	return globalMetrics.Load()
}

func setMetrics(m *Metrics) {
	globalMetrics.Store(m)
}

// newMetrics registers the gormscope instruments on meter
func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.SessionsOpened, err = meter.Int64Counter(
		"gormscope_sessions_opened_total",
		metric.WithDescription("Total number of database sessions opened"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.SessionsClosed, err = meter.Int64Counter(
		"gormscope_sessions_closed_total",
		metric.WithDescription("Total number of database sessions closed"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSessions, err = meter.Int64UpDownCounter(
		"gormscope_active_sessions",
		metric.WithDescription("Number of currently open database sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.TransactionsTotal, err = meter.Int64Counter(
		"gormscope_transactions_total",
		metric.WithDescription("Total number of transaction scopes by outcome"),
		metric.WithUnit("{transaction}"),
	)
	if err != nil {
		return nil, err
	}

	m.MigrationsApplied, err = meter.Int64Counter(
		"gormscope_migrations_applied_total",
		metric.WithDescription("Total number of migration scripts applied"),
		metric.WithUnit("{migration}"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"gormscope_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"gormscope_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("Metrics registered", zap.String("meter", MeterName))
	return m, nil
}

// RecordSessionOpened records that a session was opened against an engine
func (m *Metrics) RecordSessionOpened(ctx context.Context, engine string) {
	if m.SessionsOpened != nil {
		m.SessionsOpened.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
	}
	if m.ActiveSessions != nil {
		m.ActiveSessions.Add(ctx, 1)
	}
}

// RecordSessionClosed records that a session was closed
func (m *Metrics) RecordSessionClosed(ctx context.Context, engine string) {
	if m.SessionsClosed != nil {
		m.SessionsClosed.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
	}
	if m.ActiveSessions != nil {
		m.ActiveSessions.Add(ctx, -1)
	}
}

// RecordTransaction records the outcome of a transaction scope
// (outcome is "commit" or "rollback"; nested marks savepoint scopes).
func (m *Metrics) RecordTransaction(ctx context.Context, outcome string, nested bool) {
	if m.TransactionsTotal == nil {
		return
	}
	m.TransactionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.Bool("nested", nested),
		),
	)
}

// RecordMigrationApplied records an applied migration script
func (m *Metrics) RecordMigrationApplied(ctx context.Context, version int) {
	if m.MigrationsApplied == nil {
		return
	}
	m.MigrationsApplied.Add(ctx, 1, metric.WithAttributes(attribute.Int("version", version)))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m.HTTPRequestsTotal != nil {
		m.HTTPRequestsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.Int("status_code", statusCode),
			),
		)
	}
	if m.HTTPRequestDuration != nil {
		m.HTTPRequestDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			),
		)
	}
}
