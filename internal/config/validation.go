package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/gormscope/gormscope/pkg/errors"
)

var validLogLevels = map[string]bool{"silent": true, "error": true, "warn": true, "info": true, "debug": true}

// Validate checks the configuration and returns a ConfigInvalid AppError
// listing every problem found.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}

	db := cfg.Database
	if strings.TrimSpace(db.URI) == "" {
		problems = append(problems, "database.uri is required")
	}
	if db.LogLevel != "" && !validLogLevels[strings.ToLower(db.LogLevel)] {
		problems = append(problems, fmt.Sprintf("database.log_level %q is not one of silent, error, warn, info", db.LogLevel))
	}
	for i, e := range db.Engines {
		if strings.TrimSpace(e.URI) == "" {
			ref := fmt.Sprintf("[%d]", i)
			if e.Name != "" {
				ref = "." + e.Name
			}
			problems = append(problems, fmt.Sprintf("database.engines%s.uri is required", ref))
		}
	}
	if db.HealthCheckCron != "" {
		if _, err := cron.ParseStandard(db.HealthCheckCron); err != nil {
			problems = append(problems, fmt.Sprintf("database.health_check_cron: %v", err))
		}
	}

	if len(problems) > 0 {
		return errors.ErrConfiguration("invalid configuration: " + strings.Join(problems, "; ")).
			WithDetails(problems)
	}
	return nil
}
