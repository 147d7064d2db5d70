package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gormscope/gormscope/internal/api/middleware"
	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/internal/model"
	"github.com/gormscope/gormscope/internal/store"
)

func setupTaskRouter(t *testing.T) (*gin.Engine, *database.DB) {
	t.Helper()
	r, db := SetupTestRouter(t)
	h := NewTaskHandler(db)
	r.GET("/tasks", h.ListTasks)
	r.POST("/tasks", h.CreateTask)
	r.GET("/tasks/:id", h.GetTask)
	r.POST("/tasks/:id/toggle", h.ToggleTask)
	r.DELETE("/tasks/:id", h.DeleteTask)
	return r, db
}

func seedTask(t *testing.T, db *database.DB, title string) *model.Task {
	t.Helper()
	return store.CreateTestTask(t, store.New(db.Engine().DB()), func(task *model.Task) {
		task.Title = title
	})
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateTask_JSON(t *testing.T) {
	r, db := setupTaskRouter(t)

	w := do(r, CreateTestRequest("POST", "/tasks", map[string]any{"title": "buy milk", "tags": []string{"home"}}))
	AssertJSONResponse(t, w, http.StatusCreated, map[string]any{"title": "buy milk", "done": false})

	got, err := store.New(db.Engine().DB()).Tasks().FindByTitle("buy milk")
	require.NoError(t, err)
	assert.Equal(t, model.StringArray{"home"}, got.Tags)
}

func TestCreateTask_Form(t *testing.T) {
	r, _ := setupTaskRouter(t)

	form := url.Values{"title": {"from a form"}}
	req, _ := http.NewRequest("POST", "/tasks", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := do(r, req)
	AssertJSONResponse(t, w, http.StatusCreated, map[string]any{"title": "from a form"})
}

func TestCreateTask_Validation(t *testing.T) {
	r, db := setupTaskRouter(t)

	w := do(r, CreateTestRequest("POST", "/tasks", map[string]any{}))
	AssertErrorResponse(t, w, http.StatusBadRequest)

	w = do(r, CreateTestRequest("POST", "/tasks", map[string]any{"title": "   "}))
	AssertErrorResponse(t, w, http.StatusBadRequest)

	_, total, err := store.New(db.Engine().DB()).Tasks().List(0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListTasks(t *testing.T) {
	r, db := setupTaskRouter(t)
	for _, title := range []string{"one", "two", "three"} {
		seedTask(t, db, title)
	}

	w := do(r, CreateTestRequest("GET", "/tasks?page=2&page_size=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data     []model.Task `json:"data"`
		Total    int64        `json:"total"`
		Page     int          `json:"page"`
		PageSize int          `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.PageSize)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "three", resp.Data[0].Title)
}

func TestGetTask(t *testing.T) {
	r, db := setupTaskRouter(t)
	task := seedTask(t, db, "findable")

	w := do(r, CreateTestRequest("GET", "/tasks/"+strconv.FormatUint(uint64(task.ID), 10), nil))
	AssertJSONResponse(t, w, http.StatusOK, map[string]any{"title": "findable"})

	w = do(r, CreateTestRequest("GET", "/tasks/999", nil))
	AssertErrorResponse(t, w, http.StatusNotFound)

	w = do(r, CreateTestRequest("GET", "/tasks/abc", nil))
	AssertErrorResponse(t, w, http.StatusBadRequest)
}

func TestToggleTask(t *testing.T) {
	r, db := setupTaskRouter(t)
	task := seedTask(t, db, "toggle me")

	w := do(r, CreateTestRequest("POST", "/tasks/"+strconv.FormatUint(uint64(task.ID), 10)+"/toggle", nil))
	AssertJSONResponse(t, w, http.StatusOK, map[string]any{"done": true})

	w = do(r, CreateTestRequest("POST", "/tasks/"+strconv.FormatUint(uint64(task.ID), 10)+"/toggle", nil))
	AssertJSONResponse(t, w, http.StatusOK, map[string]any{"done": false})

	w = do(r, CreateTestRequest("POST", "/tasks/999/toggle", nil))
	AssertErrorResponse(t, w, http.StatusNotFound)
}

func TestDeleteTask(t *testing.T) {
	r, db := setupTaskRouter(t)
	task := seedTask(t, db, "short lived")

	w := do(r, CreateTestRequest("DELETE", "/tasks/"+strconv.FormatUint(uint64(task.ID), 10), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, CreateTestRequest("DELETE", "/tasks/"+strconv.FormatUint(uint64(task.ID), 10), nil))
	AssertErrorResponse(t, w, http.StatusNotFound)
}

func TestTaskHandler_WithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	h := NewTaskHandler(store.SetupTestDB(t))
	r.GET("/tasks", h.ListTasks)

	w := do(r, CreateTestRequest("GET", "/tasks", nil))
	AssertErrorResponse(t, w, http.StatusInternalServerError)
}
