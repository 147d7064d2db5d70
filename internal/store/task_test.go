package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gormscope/gormscope/internal/model"
	"github.com/gormscope/gormscope/internal/session"
	"github.com/gormscope/gormscope/pkg/errors"
)

func newStore(t *testing.T) Store {
	t.Helper()
	db := SetupTestDB(t)
	return New(db.Engine().DB())
}

func TestTaskStore_CreateAndGet(t *testing.T) {
	st := newStore(t)

	task := CreateTestTask(t, st, func(task *model.Task) {
		task.Title = "  write docs  "
		task.Tags = model.StringArray{"docs"}
	})
	require.NotZero(t, task.ID)
	assert.Equal(t, "write docs", task.Title)

	got, err := st.Tasks().Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "write docs", got.Title)
	assert.False(t, got.Done)
	assert.Equal(t, model.StringArray{"docs"}, got.Tags)

	byTitle, err := st.Tasks().FindByTitle("write docs")
	require.NoError(t, err)
	assert.Equal(t, task.ID, byTitle.ID)
}

func TestTaskStore_CreateRequiresTitle(t *testing.T) {
	st := newStore(t)

	err := st.Tasks().Create(&model.Task{Title: "   "})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestTaskStore_NotFound(t *testing.T) {
	st := newStore(t)

	_, err := st.Tasks().Get(42)
	assert.True(t, errors.IsNotFound(err))

	_, err = st.Tasks().FindByTitle("missing")
	assert.True(t, errors.IsNotFound(err))

	_, err = st.Tasks().Toggle(42)
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsNotFound(st.Tasks().Delete(42)))
}

func TestTaskStore_Toggle(t *testing.T) {
	st := newStore(t)
	task := CreateTestTask(t, st)

	toggled, err := st.Tasks().Toggle(task.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Done)

	done, err := st.Tasks().CountDone()
	require.NoError(t, err)
	assert.Equal(t, int64(1), done)

	toggled, err = st.Tasks().Toggle(task.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Done)
}

func TestTaskStore_ListAndDelete(t *testing.T) {
	st := newStore(t)
	for _, title := range []string{"a", "b", "c"} {
		title := title
		CreateTestTask(t, st, func(task *model.Task) { task.Title = title })
	}

	tasks, total, err := st.Tasks().List(2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, tasks, 2)
	assert.Equal(t, "b", tasks[0].Title)
	assert.Equal(t, "c", tasks[1].Title)

	require.NoError(t, st.Tasks().Delete(tasks[0].ID))
	_, total, err = st.Tasks().List(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestFromContext(t *testing.T) {
	db := SetupTestDB(t)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	err := db.Transaction(context.Background(), func(ctx context.Context, s *session.Session) error {
		st, ok := FromContext(ctx)
		require.True(t, ok)
		CreateTestTask(t, st)
		return errors.ErrValidation("abort")
	})
	require.Error(t, err)

	_, total, err := New(db.Engine().DB()).Tasks().List(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}
