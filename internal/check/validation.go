package check

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/config"
	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/internal/engine"
	"github.com/gormscope/gormscope/internal/migrate"
	"github.com/gormscope/gormscope/internal/model"
)

// pingTimeout bounds the database check
const pingTimeout = 5 * time.Second

// ValidationResult represents the result of a config or database validation
type ValidationResult struct {
	Name     string
	Valid    bool
	Error    error
	Warnings []string
	// Details are printed after the status line
	Details []string
}

// validateConfig loads and validates the configuration file
func (c *Checker) validateConfig() (ValidationResult, *config.Config) {
	result := ValidationResult{Name: c.configPath}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		result.Error = fmt.Errorf("format error: %w", err)
		return result, nil
	}
	if err := config.Validate(cfg); err != nil {
		result.Error = err
		return result, nil
	}

	result.Valid = true
	result.Details = append(result.Details, "database: "+engine.Redact(cfg.Database.URI))
	if n := len(cfg.Database.Engines); n > 0 {
		result.Details = append(result.Details, fmt.Sprintf("%d tagged engine(s)", n))
	}
	return result, cfg
}

// checkDatabase opens every configured engine, pings each one and compares
// the migrations folder with the recorded schema version. Engine and schema
// results also go to the report.
func (c *Checker) checkDatabase(ctx context.Context, cfg *config.Config) ValidationResult {
	result := ValidationResult{Name: "database"}

	db, err := database.New(cfg.Database, model.Default, database.WithLogger(zap.NewNop()))
	if err != nil {
		result.Error = err
		return result
	}
	defer db.Close()

	reachable := 0
	for _, e := range db.Engines().Engines() {
		er := EngineResult{
			Engine:  e.String(),
			Tags:    db.Engines().Tags(e),
			Default: e == db.Engine(),
			Err:     pingEngine(ctx, e),
		}
		c.report.AddEngine(er)
		if er.Err != nil {
			if result.Error == nil {
				result.Error = fmt.Errorf("%s: %w", er.Engine, er.Err)
			}
			result.Details = append(result.Details, fmt.Sprintf("%s unreachable", er.Engine))
			continue
		}
		reachable++
	}
	result.Details = append(result.Details, fmt.Sprintf("%d engine(s) reachable", reachable))
	if result.Error != nil {
		return result
	}
	result.Valid = true

	state := inspectSchema(db)
	c.report.SetSchema(state)
	switch {
	case state.Err != nil:
		result.Warnings = append(result.Warnings, fmt.Sprintf("cannot inspect migrations: %v", state.Err))
	case state.Pending > 0:
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d pending migration(s) in %s", state.Pending, db.MigrationsPath()))
	}
	return result
}

func pingEngine(ctx context.Context, e *engine.Engine) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return e.Ping(ctx)
}

// inspectSchema counts the scripts after the recorded schema version
func inspectSchema(db *database.DB) SchemaState {
	state := SchemaState{Inspected: true}
	scripts, err := migrate.Load(db.MigrationsPath())
	if err != nil {
		state.Err = err
		return state
	}
	state.Scripts = len(scripts)

	state.Version, state.Recorded, err = migrate.SchemaVersion(db.Engine().DB())
	if err != nil {
		state.Err = err
		return state
	}
	for _, m := range scripts {
		if !state.Recorded || m.Version > state.Version {
			state.Pending++
		}
	}
	return state
}

// printValidationResult prints a single validation result
func (c *Checker) printValidationResult(result ValidationResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if result.Valid {
		green.Fprintf(c.out, "  ✓ %s\n", result.Name)
	} else {
		red.Fprintf(c.out, "  ✗ %s: %v\n", result.Name, result.Error)
	}
	for _, detail := range result.Details {
		fmt.Fprintf(c.out, "    └─ %s\n", detail)
	}
	for _, warning := range result.Warnings {
		yellow.Fprintf(c.out, "    ⚠ %s\n", warning)
	}
}
