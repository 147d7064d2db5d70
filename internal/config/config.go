// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gormscope/gormscope/consts"
	apperrors "github.com/gormscope/gormscope/pkg/errors"
	"github.com/gormscope/gormscope/pkg/logger"
	"github.com/gormscope/gormscope/pkg/telemetry"
)

// Default configuration values
const (
	DefaultURI              = "sqlite://:memory:"
	DefaultMigrationsFolder = "migrations"
	defaultHost             = "0.0.0.0"
	defaultPort             = 8091
	defaultOTLPEndpoint     = "localhost:4317"
	defaultPrometheusPort   = 9090
)

// ConfigPath is the default path for the configuration file
const ConfigPath = "config/gormscope.yaml"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Logging   logger.Config    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Debug       bool     `yaml:"debug"`
	CORSOrigins []string `yaml:"cors_origins"` // Allowed CORS origins whitelist
}

// DatabaseConfig holds the database namespace: the default engine URI,
// the migrations location, additional tagged engines and passthrough
// engine options.
type DatabaseConfig struct {
	URI              string         `yaml:"uri"`
	MigrationsFolder string         `yaml:"migrations_folder"`
	RootPath         string         `yaml:"root_path"`         // Application root, migrations_folder is resolved against it
	LogLevel         string         `yaml:"log_level"`         // GORM log level: silent, error, warn, info
	HealthCheckCron  string         `yaml:"health_check_cron"` // Optional cron spec for the engine monitor
	Options          map[string]any `yaml:"options,omitempty"` // Passthrough engine options
	Engines          EngineList     `yaml:"engines,omitempty"` // Additional tagged engines
}

// EngineConfig describes one additional engine
type EngineConfig struct {
	Name    string         `yaml:"name,omitempty"`
	URI     string         `yaml:"uri"`
	Tags    []string       `yaml:"tags"`
	Options map[string]any `yaml:"options,omitempty"`
}

// EngineList holds the additional engines. In YAML it is either a list of
// engine entries or a mapping from engine name to its entry, where the entry
// may be a bare URI. A mapped engine without tags is tagged with its name.
type EngineList []EngineConfig

// UnmarshalYAML accepts the list and mapping forms
func (l *EngineList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var engines []EngineConfig
		if err := value.Decode(&engines); err != nil {
			return err
		}
		*l = engines
		return nil
	case yaml.MappingNode:
		engines := make(EngineList, 0, len(value.Content)/2)
		// Content alternates key and value nodes in document order
		for i := 0; i+1 < len(value.Content); i += 2 {
			name := value.Content[i].Value
			var ec EngineConfig
			if node := value.Content[i+1]; node.Kind == yaml.ScalarNode {
				ec.URI = node.Value
			} else if err := node.Decode(&ec); err != nil {
				return fmt.Errorf("engines.%s: %w", name, err)
			}
			if ec.Name == "" {
				ec.Name = name
			}
			if len(ec.Tags) == 0 {
				ec.Tags = []string{ec.Name}
			}
			engines = append(engines, ec)
		}
		*l = engines
		return nil
	default:
		return fmt.Errorf("line %d: engines must be a list or a mapping", value.Line)
	}
}

// MigrationsPath returns the migrations folder resolved against the root path
func (d DatabaseConfig) MigrationsPath() string {
	folder := d.MigrationsFolder
	if folder == "" {
		folder = DefaultMigrationsFolder
	}
	if filepath.IsAbs(folder) || d.RootPath == "" {
		return folder
	}
	return filepath.Join(d.RootPath, folder)
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: defaultHost,
			Port: defaultPort,
		},
		Database: DatabaseConfig{
			URI:              DefaultURI,
			MigrationsFolder: DefaultMigrationsFolder,
			RootPath:         ".",
			LogLevel:         "warn",
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
		},
		Telemetry: telemetry.Config{
			ServiceName: consts.ServiceName,
			OTLP: telemetry.OTLPConfig{
				Endpoint: defaultOTLPEndpoint,
				Insecure: true,
			},
			Prometheus: telemetry.PrometheusConfig{
				Port: defaultPrometheusPort,
			},
		},
	}
}

// Load loads configuration from path with environment variable support.
// A missing file yields the defaults; environment overrides apply either way.
// Environment variables can override values using the GORMSCOPE_ prefix:
//   - GORMSCOPE_SERVER_HOST, GORMSCOPE_SERVER_PORT, GORMSCOPE_SERVER_DEBUG
//   - GORMSCOPE_DATABASE_URI, GORMSCOPE_DATABASE_MIGRATIONS_FOLDER, GORMSCOPE_DATABASE_ROOT_PATH
//   - GORMSCOPE_LOG_LEVEL, GORMSCOPE_LOG_FORMAT, GORMSCOPE_LOG_FILE
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Debug("Config file not found, using defaults")
		case err != nil:
			return nil, apperrors.Wrap(apperrors.ErrCodeConfigNotFound, "failed to read config", err)
		default:
			// Expand environment variables in the configuration
			expanded := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, apperrors.Wrap(apperrors.ErrCodeConfigParse, "failed to parse config", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Write writes configuration to file
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(configHeader+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

const configHeader = `# gormscope configuration
#
# Environment Variable Support:
#   - Use ${VAR_NAME} or ${VAR_NAME:-default} syntax in values
#   - Or use GORMSCOPE_* environment variables to override:
#     GORMSCOPE_DATABASE_URI, GORMSCOPE_DATABASE_MIGRATIONS_FOLDER
#     GORMSCOPE_SERVER_HOST, GORMSCOPE_SERVER_PORT
#     GORMSCOPE_LOG_LEVEL, GORMSCOPE_LOG_FORMAT
#

`

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Only the braced form is expanded so that DSN passwords containing '$' survive.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		// Support default values: ${VAR_NAME:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]

		if value := os.Getenv(varName); value != "" {
			return value
		}
		if len(parts) > 1 {
			return parts[1]
		}
		return ""
	})
}

func env(name string) string {
	return os.Getenv(consts.EnvPrefix + name)
}

// applyEnvOverrides applies environment variable overrides to cfg
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if v := env("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := env("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := env("SERVER_DEBUG"); v != "" {
		cfg.Server.Debug = parseBool(v)
	}

	// Database overrides
	if v := env("DATABASE_URI"); v != "" {
		cfg.Database.URI = v
	}
	if v := env("DATABASE_MIGRATIONS_FOLDER"); v != "" {
		cfg.Database.MigrationsFolder = v
	}
	if v := env("DATABASE_ROOT_PATH"); v != "" {
		cfg.Database.RootPath = v
	}
	if v := env("DATABASE_LOG_LEVEL"); v != "" {
		cfg.Database.LogLevel = v
	}

	// Logging overrides
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := env("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	// Telemetry overrides
	if v := env("TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = parseBool(v)
	}
	if v := env("TELEMETRY_ENVIRONMENT"); v != "" {
		cfg.Telemetry.Environment = v
	}
	if v := env("OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLP.Endpoint = v
		cfg.Telemetry.OTLP.Enabled = true
	}
	if v := env("PROMETHEUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.Prometheus.Port = port
		}
	}
}

// parseBool parses a boolean string value
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}
