package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gormscope/gormscope/pkg/errors"
)

// TestDefaultConfig tests the DefaultConfig function
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite://:memory:", cfg.Database.URI)
	assert.Equal(t, "migrations", cfg.Database.MigrationsFolder)
	assert.Equal(t, 8091, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.NoError(t, Validate(cfg))
}

// TestLoad tests loading configuration from file
func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "gormscope.yaml")

	content := `
server:
  port: 9000
database:
  uri: "sqlite://${GORMSCOPE_TEST_DB_DIR:-/tmp}/app.db"
  migrations_folder: db/migrations
  root_path: /srv/app
  options:
    fine_tune: false
  engines:
    - uri: "sqlite://replica.db"
      tags: [replica]
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite:///tmp/app.db", cfg.Database.URI)
	assert.Equal(t, "/srv/app/db/migrations", cfg.Database.MigrationsPath())
	assert.Equal(t, false, cfg.Database.Options["fine_tune"])
	require.Len(t, cfg.Database.Engines, 1)
	assert.Equal(t, []string{"replica"}, cfg.Database.Engines[0].Tags)
	// Defaults survive for keys absent from the file
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

// TestLoad_EngineMapping tests the mapping form of database.engines
func TestLoad_EngineMapping(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "gormscope.yaml")
	content := `
database:
  engines:
    reports:
      uri: "postgres://reports/app"
      tags: [readonly, reports]
      options:
        max_open_conns: 4
    archive: "sqlite://archive.db"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.Len(t, cfg.Database.Engines, 2)

	reports := cfg.Database.Engines[0]
	assert.Equal(t, "reports", reports.Name)
	assert.Equal(t, "postgres://reports/app", reports.URI)
	assert.Equal(t, []string{"readonly", "reports"}, reports.Tags)
	assert.Equal(t, 4, reports.Options["max_open_conns"])

	archive := cfg.Database.Engines[1]
	assert.Equal(t, "archive", archive.Name)
	assert.Equal(t, "sqlite://archive.db", archive.URI)
	assert.Equal(t, []string{"archive"}, archive.Tags)
	assert.NoError(t, Validate(cfg))
}

// TestLoad_EnginesScalar tests that engines must be a list or a mapping
func TestLoad_EnginesScalar(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "gormscope.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("database:\n  engines: sqlite://x.db\n"), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigParse))
}

// TestLoad_MissingFile tests that a missing file yields defaults
func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultURI, cfg.Database.URI)
}

// TestLoad_InvalidYAML tests that malformed YAML is reported as a parse error
func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("database: [unclosed"), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigParse))
}

// TestEnvOverrides tests GORMSCOPE_* environment overrides
func TestEnvOverrides(t *testing.T) {
	t.Setenv("GORMSCOPE_DATABASE_URI", "postgres://localhost/app")
	t.Setenv("GORMSCOPE_DATABASE_MIGRATIONS_FOLDER", "schema")
	t.Setenv("GORMSCOPE_SERVER_PORT", "7070")
	t.Setenv("GORMSCOPE_SERVER_DEBUG", "yes")
	t.Setenv("GORMSCOPE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/app", cfg.Database.URI)
	assert.Equal(t, "schema", cfg.Database.MigrationsFolder)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

// TestExpandEnvVars tests ${VAR} expansion
func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GORMSCOPE_TEST_HOST", "db.internal")

	tests := []struct {
		in   string
		want string
	}{
		{"${GORMSCOPE_TEST_HOST}", "db.internal"},
		{"${GORMSCOPE_TEST_UNSET:-fallback}", "fallback"},
		{"${GORMSCOPE_TEST_UNSET}", ""},
		{"pa$$word", "pa$$word"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVars(tt.in), tt.in)
	}
}

// TestMigrationsPath tests resolution against the root path
func TestMigrationsPath(t *testing.T) {
	assert.Equal(t, "migrations", DatabaseConfig{}.MigrationsPath())
	assert.Equal(t, filepath.Join("app", "migrations"), DatabaseConfig{RootPath: "app"}.MigrationsPath())
	assert.Equal(t, "/abs/m", DatabaseConfig{RootPath: "app", MigrationsFolder: "/abs/m"}.MigrationsPath())
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty uri", func(c *Config) { c.Database.URI = "" }, true},
		{"bad log level", func(c *Config) { c.Database.LogLevel = "loud" }, true},
		{"engine without uri", func(c *Config) {
			c.Database.Engines = []EngineConfig{{Tags: []string{"replica"}}}
		}, true},
		{"named engine without uri", func(c *Config) {
			c.Database.Engines = []EngineConfig{{Name: "reports"}}
		}, true},
		{"bad cron", func(c *Config) { c.Database.HealthCheckCron = "every minute" }, true},
		{"good cron", func(c *Config) { c.Database.HealthCheckCron = "*/5 * * * *" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
		})
	}
}

// TestLoadDotEnv tests .env loading
func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("GORMSCOPE_TEST_DOTENV=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("GORMSCOPE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(envPath))
	assert.Equal(t, "loaded", os.Getenv("GORMSCOPE_TEST_DOTENV"))
}

// TestWrite tests writing and re-reading a configuration
func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "gormscope.yaml")
	cfg := DefaultConfig()
	cfg.Database.URI = "sqlite://written.db"

	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://written.db", loaded.Database.URI)
}
