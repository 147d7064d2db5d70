package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/config"
	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/internal/migrate"
	"github.com/gormscope/gormscope/internal/model"
)

func init() {
	color.NoColor = true
}

// testEnv shares one file-backed sqlite database between command runs
type testEnv struct {
	cfg    config.DatabaseConfig
	opened int
}

func newTestEnv(t *testing.T) *testEnv {
	root := t.TempDir()
	return &testEnv{cfg: config.DatabaseConfig{
		URI:      "sqlite://" + filepath.Join(root, "app.db"),
		RootPath: root,
		LogLevel: "silent",
	}}
}

func (e *testEnv) factory() (Admin, error) {
	e.opened++
	return database.New(e.cfg, model.Default, database.WithLogger(zap.NewNop()))
}

func (e *testEnv) migrationsPath() string { return e.cfg.MigrationsPath() }

func (e *testEnv) run(t *testing.T, opts Options, args ...string) (string, error) {
	t.Helper()
	if opts.Interactive == nil {
		opts.Interactive = func() bool { return false }
	}
	cmd := NewDBCommand(e.factory, opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) schemaVersion(t *testing.T) (int, bool) {
	t.Helper()
	d, err := database.New(e.cfg, model.Default, database.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer d.Close()
	v, ok, err := migrate.SchemaVersion(d.Engine().DB())
	require.NoError(t, err)
	return v, ok
}

func writeScript(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestInitMigrations_PrintsCreatedFile(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, Options{}, "init-migrations", "Task")
	require.NoError(t, err)
	assert.Equal(t, "Created migration: 001_initial.sql (initial migration: tasks)\n", out)
	assert.FileExists(t, filepath.Join(env.migrationsPath(), "001_initial.sql"))
	assert.Equal(t, 1, env.opened)

	out, err = env.run(t, Options{}, "init-migrations", "--version", "5", "--set-version")
	require.NoError(t, err)
	assert.Equal(t, "Created migration: 005_initial.sql (initial migration: tasks)\n", out)

	v, ok := env.schemaVersion(t)
	assert.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestInitMigrations_UnknownModel(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, Options{}, "init-migrations", "Nope")
	assert.Error(t, err)
}

func TestInit_CreatesTablesThenMigrates(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, Options{}, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Database initialized")

	writeScript(t, env.migrationsPath(), "001_seed.sql", "INSERT INTO tasks (title, done) VALUES ('seed', false);")
	out, err = env.run(t, Options{}, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 001_seed.sql")

	v, ok := env.schemaVersion(t)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCreateAll(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, Options{}, "create-all")
	require.NoError(t, err)
	assert.Contains(t, out, "Tables created")
}

func TestMigrate_DryRunAndBounds(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, Options{}, "create-all")
	require.NoError(t, err)

	dir := env.migrationsPath()
	writeScript(t, dir, "001_a.sql", "INSERT INTO tasks (title, done) VALUES ('a', false);")
	writeScript(t, dir, "002_b.sql", "INSERT INTO tasks (title, done) VALUES ('b', false);")
	writeScript(t, dir, "003_c.sql", "INSERT INTO tasks (title, done) VALUES ('c', false);")

	out, err := env.run(t, Options{}, "migrate", "--dryrun", "--from", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Migration plan (from 2)")
	assert.Contains(t, out, "would apply 002_b.sql")
	assert.Contains(t, out, "would apply 003_c.sql")
	assert.NotContains(t, out, "001_a.sql")
	_, ok := env.schemaVersion(t)
	assert.False(t, ok, "dry run records nothing")

	out, err = env.run(t, Options{}, "migrate", "--to", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 migration(s) applied")

	out, err = env.run(t, Options{}, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 003_c.sql")
	assert.NotContains(t, out, "002_b.sql")

	out, err = env.run(t, Options{}, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestMigrate_IgnoreSchemaVersionConfirmation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, Options{}, "create-all")
	require.NoError(t, err)
	writeScript(t, env.migrationsPath(), "001_a.sql", "INSERT INTO tasks (title, done) VALUES ('a', false);")

	var asked int
	declined := Options{
		Interactive: func() bool { return true },
		Confirm: func(string) (bool, error) {
			asked++
			return false, nil
		},
	}
	out, err := env.run(t, declined, "migrate", "--ignore-schema-version")
	require.NoError(t, err)
	assert.Equal(t, 1, asked)
	assert.Contains(t, out, "Migration cancelled")

	out, err = env.run(t, declined, "migrate", "--ignore-schema-version", "--yes")
	require.NoError(t, err)
	assert.Equal(t, 1, asked)
	assert.Contains(t, out, "applied 001_a.sql")

	_, ok := env.schemaVersion(t)
	assert.False(t, ok, "ignored schema version is not recorded")

	failing := Options{
		Interactive: func() bool { return true },
		Confirm:     func(string) (bool, error) { return false, errors.New("no tty") },
	}
	_, err = env.run(t, failing, "migrate", "--ignore-schema-version")
	assert.EqualError(t, err, "no tty")
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, Options{}, "create-all")
	require.NoError(t, err)

	dir := env.migrationsPath()
	writeScript(t, dir, "001_ok.sql", "INSERT INTO tasks (title, done) VALUES ('ok', false);")
	writeScript(t, dir, "002_bad.sql", "INSERT INTO nowhere VALUES (1);")

	_, err = env.run(t, Options{}, "migrate")
	require.Error(t, err)

	_, ok := env.schemaVersion(t)
	assert.False(t, ok)
}

func TestNewMigration(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, Options{}, "new-migration", "Add due date")
	require.NoError(t, err)
	assert.Equal(t, "Created migration: 001_add_due_date.sql\n", out)

	_, err = env.run(t, Options{}, "new-migration")
	assert.Error(t, err)
}

func TestVersionFlag_ZeroIsExplicit(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, Options{}, "new-migration", "--version", "0", "Baseline")
	require.NoError(t, err)
	assert.Equal(t, "Created migration: 000_baseline.sql\n", out)

	_, err = env.run(t, Options{}, "init-migrations", "--version", "0")
	require.Error(t, err)

	out, err = env.run(t, Options{}, "init-migrations")
	require.NoError(t, err)
	assert.Contains(t, out, "001_initial.sql")
}

func TestFactoryError(t *testing.T) {
	boom := errors.New("cannot open")
	cmd := NewDBCommand(func() (Admin, error) { return nil, boom }, Options{Interactive: func() bool { return false }})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"create-all"})

	assert.ErrorIs(t, cmd.Execute(), boom)
}
