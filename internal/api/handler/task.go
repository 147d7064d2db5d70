package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/model"
	"github.com/gormscope/gormscope/internal/session"
	"github.com/gormscope/gormscope/internal/store"
	"github.com/gormscope/gormscope/pkg/errors"
	"github.com/gormscope/gormscope/pkg/logger"
)

// TaskHandler handles task-related HTTP requests. Reads go through the
// request session; writes run in a transaction scope nested in it.
type TaskHandler struct {
	tx Transactor
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tx Transactor) *TaskHandler {
	return &TaskHandler{tx: tx}
}

// CreateTaskRequest is the body of POST /tasks, as JSON or form fields
type CreateTaskRequest struct {
	Title string   `json:"title" form:"title" binding:"required"`
	Tags  []string `json:"tags" form:"tags"`
}

// ListTasks handles GET /tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	st, err := requestStore(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	page, pageSize, offset := parsePagination(c)
	tasks, total, err := st.Tasks().List(pageSize, offset)
	if err != nil {
		logger.Error("Database error", zap.Error(err))
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      tasks,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetTask handles GET /tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	st, err := requestStore(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	task, err := model.FindOneOr404[model.Task](st.DB(), "id = ?", id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// CreateTask handles POST /tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBind(&req); err != nil {
		_ = c.Error(errors.ErrValidation("title is required"))
		return
	}

	task := &model.Task{Title: req.Title, Tags: req.Tags}
	err := h.tx.Transaction(c.Request.Context(), func(ctx context.Context, s *session.Session) error {
		return store.FromSession(s).Tasks().Create(task)
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	logger.Info("Task created", zap.Uint("task_id", task.ID))
	c.JSON(http.StatusCreated, task)
}

// ToggleTask handles POST /tasks/:id/toggle
func (h *TaskHandler) ToggleTask(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var task *model.Task
	err = h.tx.Transaction(c.Request.Context(), func(ctx context.Context, s *session.Session) error {
		var err error
		task, err = store.FromSession(s).Tasks().Toggle(id)
		return err
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	err = h.tx.Transaction(c.Request.Context(), func(ctx context.Context, s *session.Session) error {
		return store.FromSession(s).Tasks().Delete(id)
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
