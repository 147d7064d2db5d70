package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gormscope/gormscope/pkg/errors"
)

// Options are the keyword options of an engine.
type Options struct {
	// FineTune enables WAL journaling, synchronous=NORMAL and a single
	// connection on embedded sqlite databases.
	FineTune bool
	// ForeignKeys enforces foreign key constraints where the driver needs it switched on.
	ForeignKeys bool
	// Logger receives GORM query logs. nil uses the global logger.
	Logger *zap.Logger
	// LogLevel is the GORM log level: silent, error, warn or info.
	LogLevel string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// DisableSavepoints forces nested scopes to share the outer transaction.
	DisableSavepoints bool

	// Extra keeps unrecognised options for drivers.
	Extra map[string]any
}

// OptionsFromMap decodes passthrough configuration into Options.
// Unknown keys are kept in Extra.
func OptionsFromMap(m map[string]any) (Options, error) {
	var opts Options
	for key, value := range m {
		var err error
		switch strings.ToLower(key) {
		case "fine_tune":
			opts.FineTune, err = toBool(value)
		case "foreign_keys":
			opts.ForeignKeys, err = toBool(value)
		case "log_level":
			opts.LogLevel = fmt.Sprint(value)
		case "max_open_conns":
			opts.MaxOpenConns, err = toInt(value)
		case "max_idle_conns":
			opts.MaxIdleConns, err = toInt(value)
		case "conn_max_lifetime":
			opts.ConnMaxLifetime, err = toDuration(value)
		case "savepoints":
			var enabled bool
			enabled, err = toBool(value)
			opts.DisableSavepoints = !enabled
		default:
			if opts.Extra == nil {
				opts.Extra = make(map[string]any)
			}
			opts.Extra[key] = value
		}
		if err != nil {
			return Options{}, errors.ErrConfiguration(fmt.Sprintf("invalid engine option %s: %v", key, err))
		}
	}
	return opts, nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	case int:
		return b != 0, nil
	}
	return false, fmt.Errorf("expected a boolean, got %T", v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func toDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		return time.ParseDuration(d)
	case int:
		return time.Duration(d) * time.Second, nil
	}
	return 0, fmt.Errorf("expected a duration, got %T", v)
}
