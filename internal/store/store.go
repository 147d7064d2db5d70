// Package store provides data access layer interfaces and implementations.
// A Store wraps the handle of the current session, so every store built
// inside a scope reads and writes through that scope's transaction.
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/gormscope/gormscope/internal/session"
)

// Store aggregates all data store interfaces.
type Store interface {
	Tasks() TaskStore

	// DB returns the handle the store issues queries on.
	DB() *gorm.DB
}

// gormStore implements Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	tasks TaskStore
}

// New creates a Store on db.
func New(db *gorm.DB) Store {
	return &gormStore{
		db:    db,
		tasks: newTaskStore(db),
	}
}

// FromSession creates a Store on the current handle of s. Build a new store
// after beginning or ending a transaction scope on s.
func FromSession(s *session.Session) Store {
	return New(s.DB())
}

// FromContext creates a Store on the current session of ctx. ok is false
// when ctx carries no session.
func FromContext(ctx context.Context) (st Store, ok bool) {
	s := session.Current(ctx)
	if s == nil {
		return nil, false
	}
	return FromSession(s), true
}

func (s *gormStore) Tasks() TaskStore {
	return s.tasks
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}
