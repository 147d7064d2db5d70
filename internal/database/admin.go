package database

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/migrate"
	"github.com/gormscope/gormscope/internal/session"
	"github.com/gormscope/gormscope/pkg/errors"
)

// InitMigrationsOptions control InitMigrations
type InitMigrationsOptions struct {
	// Models restricts the migration to the named models. Empty means all.
	Models []string
	// Version is the version of the generated script. nil picks the next free one.
	Version *int
	// SetVersion records the generated version as the current schema version
	SetVersion bool
}

// MigrateOptions control Migrate
type MigrateOptions struct {
	From             *int
	To               *int
	DryRun           bool
	UseSchemaVersion bool
}

// InitDB creates the tables of every registered model when the migrations
// folder holds no scripts, otherwise applies the pending scripts.
func (d *DB) InitDB(ctx context.Context) (*migrate.Result, error) {
	var res *migrate.Result
	err := d.Transaction(ctx, func(ctx context.Context, s *session.Session) error {
		var err error
		res, err = migrate.InitDB(s.DB(), d.MigrationsPath(), d.models.Models(), d.log)
		return err
	})
	return res, err
}

// CreateAll creates the tables of every registered model
func (d *DB) CreateAll(ctx context.Context) error {
	return d.Transaction(ctx, func(ctx context.Context, s *session.Session) error {
		return migrate.CreateAll(s.DB(), d.models.Models()...)
	})
}

// InitMigrations scaffolds the initial migration script from the model
// registry and returns its header, version and name.
func (d *DB) InitMigrations(ctx context.Context, opts InitMigrationsOptions) (header string, version int, name string, err error) {
	dir := d.MigrationsPath()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, "", errors.Wrap(errors.ErrCodeDBMigration, "failed to create migrations folder", err)
	}

	header, version, name, err = migrate.CreateInitialMigration(d.Engine().DB().WithContext(ctx), dir, d.models, opts.Version, opts.Models)
	if err != nil {
		return "", 0, "", err
	}
	d.log.Info("Initial migration created",
		zap.Int("version", version),
		zap.String("name", name),
		zap.String("dir", dir),
	)

	if opts.SetVersion {
		err = d.Transaction(ctx, func(ctx context.Context, s *session.Session) error {
			return migrate.SetSchemaVersion(s.DB(), version)
		})
		if err != nil {
			return "", 0, "", err
		}
	}
	return header, version, name, nil
}

// Migrate applies the migration scripts within the bounds of opts. A failing
// script rolls back every script applied by the same run.
func (d *DB) Migrate(ctx context.Context, opts MigrateOptions) (*migrate.Result, error) {
	var res *migrate.Result
	err := d.Transaction(ctx, func(ctx context.Context, s *session.Session) error {
		var err error
		res, err = migrate.Migrate(s.DB(), migrate.Options{
			Path:             d.MigrationsPath(),
			From:             opts.From,
			To:               opts.To,
			DryRun:           opts.DryRun,
			UseSchemaVersion: opts.UseSchemaVersion,
			Logger:           d.log,
		})
		return err
	})
	return res, err
}

// NewMigration writes an empty migration script named after name.
// A nil version picks the next free one.
func (d *DB) NewMigration(name string, version *int) (migrate.Migration, error) {
	m, err := migrate.NewMigration(d.MigrationsPath(), name, version)
	if err != nil {
		return m, err
	}
	d.log.Info("Migration created", zap.String("file", m.Filename()))
	return m, nil
}
