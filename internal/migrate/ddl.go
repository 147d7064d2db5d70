package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gormscope/gormscope/internal/model"
	"github.com/gormscope/gormscope/pkg/errors"
)

// InitialMigrationName is the name of generated initial migrations
const InitialMigrationName = "initial"

// statementRecorder is a GORM logger that keeps the SQL of every traced
// statement. Combined with a dry-run session it captures DDL without
// executing it.
type statementRecorder struct {
	statements []string
	err        error
}

func (r *statementRecorder) LogMode(gormlogger.LogLevel) gormlogger.Interface { return r }
func (r *statementRecorder) Info(context.Context, string, ...interface{})     {}
func (r *statementRecorder) Warn(context.Context, string, ...interface{})     {}
func (r *statementRecorder) Error(context.Context, string, ...interface{})    {}

func (r *statementRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), err error) {
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return
	}
	sql, _ := fc()
	r.statements = append(r.statements, sql)
}

// CreateTableStatements returns the CREATE TABLE (and index) statements the
// dialect of db would run for models, in dependency order.
func CreateTableStatements(db *gorm.DB, models ...any) ([]string, error) {
	rec := &statementRecorder{}
	dry := db.Session(&gorm.Session{DryRun: true, Logger: rec, NewDB: true})
	if err := dry.Migrator().CreateTable(models...); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBMigration, "failed to generate DDL", err)
	}
	if rec.err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBMigration, "failed to generate DDL", rec.err)
	}
	return rec.statements, nil
}

// CreateInitialMigration writes a migration creating the tables of the
// models in registry (only the named ones when names is non-empty).
// A nil version picks the next free version. It returns the script header,
// its version and its name.
func CreateInitialMigration(db *gorm.DB, dir string, registry *model.Registry, version *int, names []string) (header string, v int, name string, err error) {
	subset, err := registry.Subset(names...)
	if err != nil {
		return "", 0, "", err
	}
	if subset.Len() == 0 {
		return "", 0, "", errors.ErrValidation("no models to include in the initial migration")
	}

	tables := make([]string, 0, subset.Len())
	for _, proto := range subset.Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(proto); err != nil {
			return "", 0, "", errors.Wrap(errors.ErrCodeDBMigration, "failed to parse model", err)
		}
		tables = append(tables, stmt.Schema.Table)
	}

	statements, err := CreateTableStatements(db, subset.Models()...)
	if err != nil {
		return "", 0, "", err
	}

	header = "initial migration: " + strings.Join(tables, ", ")
	content := fmt.Sprintf("-- %s\n\n%s;\n", header, strings.Join(statements, ";\n\n"))

	m, err := writeScript(dir, InitialMigrationName, version, content)
	if err != nil {
		return "", 0, "", err
	}
	return header, m.Version, m.Name, nil
}
