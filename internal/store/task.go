package store

import (
	"strings"

	"gorm.io/gorm"

	"github.com/gormscope/gormscope/internal/model"
	"github.com/gormscope/gormscope/pkg/errors"
)

// TaskStore defines operations for Task model.
type TaskStore interface {
	// CRUD operations
	Create(task *model.Task) error
	Get(id uint) (*model.Task, error)
	FindByTitle(title string) (*model.Task, error)
	Delete(id uint) error

	// Toggle flips the done flag of a task and returns the updated row.
	Toggle(id uint) (*model.Task, error)

	// Query operations
	List(limit, offset int) ([]model.Task, int64, error)
	CountDone() (int64, error)
}

// taskStore implements TaskStore using GORM.
type taskStore struct {
	db *gorm.DB
}

func newTaskStore(db *gorm.DB) TaskStore {
	return &taskStore{db: db}
}

func (s *taskStore) Create(task *model.Task) error {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return errors.ErrValidation("title is required")
	}
	if err := s.db.Create(task).Error; err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to create task", err)
	}
	return nil
}

func (s *taskStore) Get(id uint) (*model.Task, error) {
	return model.GetOr404[model.Task](s.db, id)
}

func (s *taskStore) FindByTitle(title string) (*model.Task, error) {
	return model.FindOneOr404[model.Task](s.db, "title = ?", title)
}

func (s *taskStore) Delete(id uint) error {
	res := s.db.Delete(&model.Task{}, id)
	if res.Error != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to delete task", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.ErrNotFound("task")
	}
	return nil
}

func (s *taskStore) Toggle(id uint) (*model.Task, error) {
	task, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	err = s.db.Model(task).Update("done", gorm.Expr("NOT done")).Error
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to toggle task", err)
	}
	return s.Get(id)
}

func (s *taskStore) List(limit, offset int) ([]model.Task, int64, error) {
	var tasks []model.Task
	var total int64

	query := s.db.Model(&model.Task{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(errors.ErrCodeDBQuery, "failed to count tasks", err)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, 0, errors.Wrap(errors.ErrCodeDBQuery, "failed to list tasks", err)
	}
	return tasks, total, nil
}

func (s *taskStore) CountDone() (int64, error) {
	var count int64
	err := s.db.Model(&model.Task{}).Where("done = ?", true).Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeDBQuery, "failed to count tasks", err)
	}
	return count, nil
}
