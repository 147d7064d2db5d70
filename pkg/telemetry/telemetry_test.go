package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func shutdown(t *testing.T, tel *Telemetry) {
	t.Helper()
	t.Cleanup(func() { assert.NoError(t, tel.Shutdown(context.Background())) })
}

func metricNames(rm metricdata.ResourceMetrics) []string {
	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	return names
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(Config{ServiceName: "orders"})
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.Metrics())
	assert.Nil(t, tel.Resource())
	assert.Nil(t, tel.Handler())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_RegistersInstrumentsOnServiceResource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	tel, err := New(Config{
		Enabled:        true,
		ServiceName:    "orders-api",
		ServiceVersion: "1.4.0",
		Environment:    "staging",
		Attributes:     map[string]string{"team": "storage"},
	}, WithReader(reader))
	require.NoError(t, err)
	shutdown(t, tel)

	require.NotNil(t, tel.Metrics())
	assert.Same(t, tel.Metrics(), GetMetrics())

	ctx := context.Background()
	GetMetrics().RecordSessionOpened(ctx, "sqlite")
	GetMetrics().RecordTransaction(ctx, "rollback", true)
	GetMetrics().RecordMigrationApplied(ctx, 4)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := metricNames(rm)
	assert.Contains(t, names, "gormscope_sessions_opened_total")
	assert.Contains(t, names, "gormscope_active_sessions")
	assert.Contains(t, names, "gormscope_transactions_total")
	assert.Contains(t, names, "gormscope_migrations_applied_total")

	attrs := rm.Resource.Set()
	name, ok := attrs.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "orders-api", name.AsString())
	version, ok := attrs.Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	assert.Equal(t, "1.4.0", version.AsString())
	env, ok := attrs.Value("deployment.environment")
	require.True(t, ok)
	assert.Equal(t, "staging", env.AsString())
	team, ok := attrs.Value("team")
	require.True(t, ok)
	assert.Equal(t, "storage", team.AsString())
}

func TestNew_Defaults(t *testing.T) {
	tel, err := New(Config{Enabled: true, Prometheus: PrometheusConfig{Port: -1}})
	require.NoError(t, err)
	shutdown(t, tel)

	assert.Equal(t, "gormscope", tel.config.ServiceName)
	assert.Equal(t, defaultMetricsPath, tel.config.Prometheus.Path)
	assert.Equal(t, -1, tel.config.Prometheus.Port)

	name, ok := tel.Resource().Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "gormscope", name.AsString())

	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultPrometheusPort, cfg.Prometheus.Port)
}

func TestHandler_ServesPrometheusExposition(t *testing.T) {
	tel, err := New(Config{
		Enabled:     true,
		ServiceName: "orders-api",
		Prometheus:  PrometheusConfig{Enabled: true, Port: -1},
	})
	require.NoError(t, err)
	shutdown(t, tel)
	assert.Nil(t, tel.metricsServer)

	GetMetrics().RecordMigrationApplied(context.Background(), 2)

	handler := tel.Handler()
	require.NotNil(t, handler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "gormscope_migrations_applied_total")
	assert.Contains(t, string(body), `service_name="orders-api"`)
}
