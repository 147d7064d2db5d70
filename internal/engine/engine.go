// Package engine provides configured connection targets (engines) built on
// GORM, the drivers that open them, and the tag-based registry that selects
// which engine serves a unit of work.
package engine

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gormscope/gormscope/internal/session"
	"github.com/gormscope/gormscope/pkg/errors"
	"github.com/gormscope/gormscope/pkg/logger"
)

// Engine is one configured connection target. It is immutable after
// construction and owns its connection pool.
type Engine struct {
	uri    string
	driver Driver
	opts   Options
	db     *gorm.DB

	closeOnce sync.Once
	closeErr  error
}

// FromURI opens an engine for uri. The scheme selects the driver.
func FromURI(uri string, opts Options) (*Engine, error) {
	driver, err := DriverFor(uri)
	if err != nil {
		return nil, err
	}

	dialector, err := driver.Open(uri, opts)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String(logger.FieldEngine, driver.Name()))

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(log, logger.ParseGormLevel(opts.LogLevel)),
	})
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err), zap.String("uri", Redact(uri)))
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to connect to database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to access connection pool", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := driver.Configure(db, opts); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to configure database", err)
	}

	log.Info("Engine opened", zap.String("uri", Redact(uri)))
	return &Engine{uri: uri, driver: driver, opts: opts, db: db}, nil
}

// URI returns the connection URI
func (e *Engine) URI() string { return e.uri }

// Name returns the driver name
func (e *Engine) Name() string { return e.driver.Name() }

// Options returns the options the engine was built with
func (e *Engine) Options() Options { return e.opts }

// DB returns the pooled GORM handle
func (e *Engine) DB() *gorm.DB { return e.db }

// SupportsSavepoints reports whether nested transaction scopes can use savepoints
func (e *Engine) SupportsSavepoints() bool {
	if e.opts.DisableSavepoints {
		return false
	}
	_, ok := e.db.Dialector.(gorm.SavePointerDialectorInterface)
	return ok
}

// InMemory reports whether the engine is a private in-memory database
func (e *Engine) InMemory() bool {
	return isMemoryDSN(e.db.Dialector)
}

// MakeSession creates a new session bound to ctx
func (e *Engine) MakeSession(ctx context.Context) *session.Session {
	return session.New(ctx, e)
}

// Ping verifies the database is reachable
func (e *Engine) Ping(ctx context.Context) error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to access connection pool", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "database ping failed", err)
	}
	return nil
}

// Close closes the connection pool. Later calls return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		sqlDB, err := e.db.DB()
		if err != nil {
			e.closeErr = err
			return
		}
		e.closeErr = sqlDB.Close()
	})
	return e.closeErr
}

// String returns the engine URI with any password masked
func (e *Engine) String() string {
	return Redact(e.uri)
}

// Redact returns uri with any password masked
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}
