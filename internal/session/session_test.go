package session

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gormscope/gormscope/pkg/errors"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

type fakeSource struct {
	db         *gorm.DB
	savepoints bool
}

func (f *fakeSource) Name() string             { return "sqlite" }
func (f *fakeSource) DB() *gorm.DB             { return f.db }
func (f *fakeSource) SupportsSavepoints() bool { return f.savepoints }

func newSource(t *testing.T, savepoints bool) *fakeSource {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&note{}))
	return &fakeSource{db: db, savepoints: savepoints}
}

func countNotes(t *testing.T, src *fakeSource) int64 {
	t.Helper()
	var n int64
	require.NoError(t, src.db.Model(&note{}).Count(&n).Error)
	return n
}

func TestSession_CommitPersists(t *testing.T) {
	src := newSource(t, true)
	s := New(context.Background(), src)

	require.NoError(t, s.Begin())
	assert.True(t, s.InTransaction())
	require.NoError(t, s.DB().Create(&note{Body: "a"}).Error)
	require.NoError(t, s.Commit())

	assert.False(t, s.InTransaction())
	assert.Equal(t, int64(1), countNotes(t, src))
	require.NoError(t, s.Close())
}

func TestSession_RollbackDiscards(t *testing.T) {
	src := newSource(t, true)
	s := New(context.Background(), src)

	require.NoError(t, s.Begin())
	require.NoError(t, s.DB().Create(&note{Body: "a"}).Error)
	require.NoError(t, s.Rollback())

	assert.Equal(t, int64(0), countNotes(t, src))
}

func TestSession_NestedSavepoint(t *testing.T) {
	src := newSource(t, true)
	s := New(context.Background(), src)

	require.NoError(t, s.Begin())
	require.NoError(t, s.DB().Create(&note{Body: "outer"}).Error)

	require.NoError(t, s.Begin())
	assert.Equal(t, 2, s.Depth())
	require.NoError(t, s.DB().Create(&note{Body: "inner"}).Error)
	require.NoError(t, s.Rollback())

	require.NoError(t, s.Commit())

	var bodies []string
	require.NoError(t, src.db.Model(&note{}).Pluck("body", &bodies).Error)
	assert.Equal(t, []string{"outer"}, bodies)
}

func TestSession_NestedWithoutSavepoints(t *testing.T) {
	src := newSource(t, false)
	s := New(context.Background(), src)

	require.NoError(t, s.Begin())
	require.NoError(t, s.DB().Create(&note{Body: "outer"}).Error)

	// Nested scope shares the outer transaction
	require.NoError(t, s.Begin())
	require.NoError(t, s.DB().Create(&note{Body: "inner"}).Error)

	t.Run("commit of shared scope keeps work", func(t *testing.T) {
		require.NoError(t, s.Commit())
		assert.Equal(t, 1, s.Depth())
	})

	require.NoError(t, s.Begin())
	require.NoError(t, s.Rollback())

	err := s.Commit()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeScopeIntegrity))
	assert.Equal(t, int64(0), countNotes(t, src))
}

func TestSession_CloseRollsBack(t *testing.T) {
	src := newSource(t, true)
	s := New(context.Background(), src)

	require.NoError(t, s.Begin())
	require.NoError(t, s.Begin())
	require.NoError(t, s.DB().Create(&note{Body: "never committed"}).Error)

	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	assert.Equal(t, 0, s.Depth())
	assert.Equal(t, int64(0), countNotes(t, src))

	// Second close is a no-op
	assert.NoError(t, s.Close())
}

func TestSession_ClosedRejectsWork(t *testing.T) {
	src := newSource(t, true)
	s := New(context.Background(), src)
	require.NoError(t, s.Close())

	err := s.Begin()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionClosed))
}

func TestSession_CommitWithoutScope(t *testing.T) {
	s := New(context.Background(), newSource(t, true))

	err := s.Commit()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeScopeIntegrity))

	err = s.Rollback()
	assert.True(t, errors.IsCode(err, errors.ErrCodeScopeIntegrity))
}

func TestSession_Identity(t *testing.T) {
	src := newSource(t, true)
	a := New(context.Background(), src)
	b := New(context.Background(), src)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Same(t, src, a.Engine())
}
