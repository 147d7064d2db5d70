package migrate

import (
	"context"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gormscope/gormscope/pkg/errors"
	"github.com/gormscope/gormscope/pkg/logger"
	"github.com/gormscope/gormscope/pkg/telemetry"
)

// Options control a migration run
type Options struct {
	// Path is the migrations folder
	Path string
	// From is the lowest version to apply. nil derives it from the recorded
	// schema version when UseSchemaVersion is set, else starts at 0.
	From *int
	// To is the highest version to apply. nil applies through the last script.
	To *int
	// DryRun plans the run without touching the database
	DryRun bool
	// UseSchemaVersion reads and records the schema_version table
	UseSchemaVersion bool
	Logger           *zap.Logger
}

// Result describes a migration run
type Result struct {
	From    int
	To      int // -1 when unbounded
	Planned []Migration
	Applied []Migration
	DryRun  bool
}

// Migrate applies the scripts of opts.Path whose version lies within the
// bounds, in order, each statement executed on tx. The caller owns the
// transaction: a failing script leaves tx for the caller to roll back.
func Migrate(tx *gorm.DB, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := telemetry.StartSpan(ctx, "migrate.Migrate")
	defer span.End()

	migrations, err := Load(opts.Path)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	res := &Result{To: -1, DryRun: opts.DryRun}
	switch {
	case opts.From != nil:
		res.From = *opts.From
	case opts.UseSchemaVersion:
		current, ok, err := SchemaVersion(tx)
		if err != nil {
			telemetry.SetSpanError(span, err)
			return nil, err
		}
		if ok {
			res.From = current + 1
		}
	}
	if opts.To != nil {
		res.To = *opts.To
	}

	for _, m := range migrations {
		if m.Version < res.From || (res.To >= 0 && m.Version > res.To) {
			continue
		}
		res.Planned = append(res.Planned, m)
	}

	if opts.DryRun {
		for _, m := range res.Planned {
			log.Info("Would apply migration", zap.Int("version", m.Version), zap.String("file", m.Filename()))
		}
		return res, nil
	}

	for _, m := range res.Planned {
		if err := apply(tx.WithContext(ctx), m); err != nil {
			log.Error("Migration failed", zap.String("file", m.Filename()), zap.Error(err))
			telemetry.SetSpanError(span, err)
			return res, err
		}
		res.Applied = append(res.Applied, m)
		telemetry.GetMetrics().RecordMigrationApplied(ctx, m.Version)
		log.Info("Migration applied", zap.Int("version", m.Version), zap.String("file", m.Filename()))
	}

	if opts.UseSchemaVersion && len(res.Applied) > 0 {
		last := res.Applied[len(res.Applied)-1].Version
		if err := SetSchemaVersion(tx, last); err != nil {
			telemetry.SetSpanError(span, err)
			return res, err
		}
	}

	telemetry.SetSpanOK(span)
	return res, nil
}

func apply(tx *gorm.DB, m Migration) error {
	content, err := os.ReadFile(m.Path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to read "+m.Filename(), err)
	}
	// the whole script goes to the driver in one call, so trigger and
	// function bodies keep their inner semicolons
	if err := tx.Exec(string(content)).Error; err != nil {
		return errors.Wrap(errors.ErrCodeDBMigration, "migration "+m.Filename()+" failed", err)
	}
	return nil
}

// CreateAll creates or updates the tables of models
func CreateAll(tx *gorm.DB, models ...any) error {
	if len(models) == 0 {
		return nil
	}
	if err := tx.AutoMigrate(models...); err != nil {
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to create tables", err)
	}
	return nil
}

// InitDB creates the tables of models when dir holds no scripts, otherwise
// runs the pending scripts against the recorded schema version.
func InitDB(tx *gorm.DB, dir string, models []any, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = logger.Get()
	}
	migrations, err := Load(dir)
	if err != nil {
		return nil, err
	}
	if len(migrations) == 0 {
		log.Info("No migrations found, creating tables", zap.Int("models", len(models)))
		return &Result{To: -1}, CreateAll(tx, models...)
	}
	return Migrate(tx, Options{Path: dir, UseSchemaVersion: true, Logger: log})
}
