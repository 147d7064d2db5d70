package store

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/config"
	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/internal/model"
)

// SetupTestDB creates an in-memory SQLite adapter with every registered
// model migrated. The adapter is closed at test cleanup.
func SetupTestDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		URI:      config.DefaultURI,
		RootPath: t.TempDir(),
		LogLevel: "silent",
	}
	db, err := database.New(cfg, model.Default, database.WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.CreateAll(context.Background()); err != nil {
		t.Fatalf("Failed to migrate models: %v", err)
	}
	return db
}

// CreateTestTask creates a test Task with default values.
// Fields can be overridden by passing a function that modifies the task.
func CreateTestTask(t *testing.T, st Store, overrides ...func(*model.Task)) *model.Task {
	t.Helper()

	task := &model.Task{Title: "test task " + t.Name()}
	for _, override := range overrides {
		override(task)
	}

	if err := st.Tasks().Create(task); err != nil {
		t.Fatalf("Failed to create test task: %v", err)
	}
	return task
}
