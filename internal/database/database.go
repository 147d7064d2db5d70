// Package database binds GORM engines to the lifetime of a request or a
// command invocation. DB is the application's single entry point: it owns
// the engine registry and the model registry, opens and closes a session per
// scope, runs scoped transactions, and forwards the administrative schema
// operations to the migrate package.
package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/config"
	"github.com/gormscope/gormscope/internal/engine"
	"github.com/gormscope/gormscope/internal/model"
	"github.com/gormscope/gormscope/pkg/logger"
)

// DB is the database adapter
type DB struct {
	cfg     config.DatabaseConfig
	engines *engine.Registry
	models  *model.Registry
	log     *zap.Logger
	monitor *Monitor
}

// Option configures a DB
type Option func(*DB)

// WithLogger sets the logger used by the adapter and attached to every engine
func WithLogger(l *zap.Logger) Option {
	return func(d *DB) { d.log = l }
}

// New creates the default engine from cfg.URI and one engine per entry of
// cfg.Engines. sqlite engines default to fine_tune and foreign_keys.
// A nil models uses model.Default.
func New(cfg config.DatabaseConfig, models *model.Registry, opts ...Option) (*DB, error) {
	if models == nil {
		models = model.Default
	}
	d := &DB{
		cfg:     cfg,
		engines: engine.NewRegistry(),
		models:  models,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Named("database")
	}

	uri := cfg.URI
	if uri == "" {
		uri = config.DefaultURI
	}

	def, err := d.CreateEngine(uri, cfg.Options)
	if err != nil {
		return nil, err
	}
	if err := d.engines.Register(def, nil, engine.AsDefault()); err != nil {
		_ = def.Close()
		return nil, err
	}

	for i, ec := range cfg.Engines {
		e, err := d.CreateEngine(ec.URI, ec.Options)
		if err == nil {
			err = d.engines.Register(e, ec.Tags)
		}
		if err != nil {
			_ = d.engines.Close()
			return nil, fmt.Errorf("engines[%d]: %w", i, err)
		}
	}

	d.log.Info("Database initialized",
		zap.String("default", def.String()),
		zap.Int("engines", d.engines.Len()),
		zap.String("migrations", d.MigrationsPath()),
	)
	return d, nil
}

// CreateEngine opens an engine for uri with passthrough options, attaching
// the adapter's logger and the sqlite defaults.
func (d *DB) CreateEngine(uri string, options map[string]any) (*engine.Engine, error) {
	merged := make(map[string]any, len(options)+2)
	for k, v := range options {
		merged[k] = v
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(uri)), "sqlite") {
		setDefault(merged, "fine_tune", true)
		setDefault(merged, "foreign_keys", true)
	}
	if d.cfg.LogLevel != "" {
		setDefault(merged, "log_level", d.cfg.LogLevel)
	}

	opts, err := engine.OptionsFromMap(merged)
	if err != nil {
		return nil, err
	}
	opts.Logger = d.log
	return engine.FromURI(uri, opts)
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// Engines returns the engine registry
func (d *DB) Engines() *engine.Registry { return d.engines }

// Engine returns the default engine
func (d *DB) Engine() *engine.Engine { return d.engines.Default() }

// Models returns the model registry
func (d *DB) Models() *model.Registry { return d.models }

// MigrationsPath returns the migrations folder resolved against the root path
func (d *DB) MigrationsPath() string { return d.cfg.MigrationsPath() }

// HealthCheck pings every engine
func (d *DB) HealthCheck(ctx context.Context) error {
	var errs []error
	for _, e := range d.engines.Engines() {
		if err := e.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e, err))
		}
	}
	return stderrors.Join(errs...)
}

// Close stops the monitor and closes every engine
func (d *DB) Close() error {
	if d.monitor != nil {
		d.monitor.Stop()
		d.monitor = nil
	}
	d.log.Info("Closing database engines", zap.Int("engines", d.engines.Len()))
	return d.engines.Close()
}
