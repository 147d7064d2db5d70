// Package session provides the unit-of-work handle bound to a request or
// command invocation, and the context-local stack that exposes the innermost
// active session to code running inside that context.
package session

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gormscope/gormscope/pkg/errors"
	"github.com/gormscope/gormscope/pkg/idgen"
	"github.com/gormscope/gormscope/pkg/logger"
	"github.com/gormscope/gormscope/pkg/telemetry"
)

// Source is the engine side of a session.
type Source interface {
	// Name identifies the engine in logs and metrics
	Name() string
	// DB returns the engine's pooled handle
	DB() *gorm.DB
	// SupportsSavepoints reports whether nested scopes can use savepoints
	SupportsSavepoints() bool
}

// scope is one entry of the transaction stack.
type scope struct {
	tx        *gorm.DB
	savepoint string // set for savepoint scopes
	noop      bool   // nested scope reusing the outer transaction
}

// Session is one logical unit of work against one engine: the engine handle
// plus a stack of open transaction scopes. A session holds no connection
// until its first transaction begins; plain reads go through the engine pool.
//
// A Session must not be shared between concurrently running requests.
type Session struct {
	id  string
	src Source
	ctx context.Context
	log *zap.Logger

	mu           sync.Mutex
	scopes       []*scope
	rollbackOnly bool
	closed       bool
}

// New creates a session on src. ctx is attached to every statement the
// session issues.
func New(ctx context.Context, src Source) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Session{
		id:  idgen.NewSessionID(),
		src: src,
		ctx: ctx,
	}
	s.log = logger.WithSession(s.id).With(zap.String(logger.FieldEngine, src.Name()))
	telemetry.GetMetrics().RecordSessionOpened(ctx, src.Name())
	s.log.Debug("Session opened")
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Engine returns the engine the session was made from
func (s *Session) Engine() Source { return s.src }

// DB returns the handle queries should be issued on: the innermost open
// transaction, or the engine handle when no transaction is open.
func (s *Session) DB() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.scopes); n > 0 {
		return s.scopes[n-1].tx
	}
	return s.src.DB().WithContext(s.ctx)
}

// Depth returns the number of open transaction scopes
func (s *Session) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scopes)
}

// InTransaction reports whether a transaction is open
func (s *Session) InTransaction() bool {
	return s.Depth() > 0
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Begin opens a transaction scope. The first scope starts a database
// transaction. Nested scopes use a savepoint when the engine supports them
// and otherwise reuse the outer transaction; rolling back such a reused
// scope marks the outer transaction rollback-only.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New(errors.ErrCodeSessionClosed, "session is closed")
	}

	depth := len(s.scopes)
	if depth == 0 {
		tx := s.src.DB().WithContext(s.ctx).Begin()
		if tx.Error != nil {
			return errors.Wrap(errors.ErrCodeDBConnection, "failed to begin transaction", tx.Error)
		}
		s.scopes = append(s.scopes, &scope{tx: tx})
		s.rollbackOnly = false
		return nil
	}

	outer := s.scopes[depth-1].tx
	if !s.src.SupportsSavepoints() {
		s.log.Warn("Engine has no savepoint support, nested scope shares the outer transaction",
			zap.Int("depth", depth+1))
		s.scopes = append(s.scopes, &scope{tx: outer, noop: true})
		return nil
	}

	name := fmt.Sprintf("sp_%d", depth)
	if err := outer.SavePoint(name).Error; err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to create savepoint", err)
	}
	s.scopes = append(s.scopes, &scope{tx: outer, savepoint: name})
	return nil
}

// Commit ends the innermost scope successfully. Committing the outermost
// scope commits the database transaction, unless a shared nested scope was
// rolled back, in which case the transaction is rolled back and an
// integrity error is returned.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.popLocked()
	if err != nil {
		return err
	}
	nested := len(s.scopes) > 0
	defer telemetry.GetMetrics().RecordTransaction(s.ctx, "commit", nested)

	if nested {
		// Savepoints are released with the enclosing transaction
		return nil
	}

	if s.rollbackOnly {
		s.rollbackOnly = false
		if err := sc.tx.Rollback().Error; err != nil && !stderrors.Is(err, sql.ErrTxDone) {
			s.log.Error("Failed to roll back rollback-only transaction", zap.Error(err))
		}
		return errors.ErrIntegrity("transaction was marked rollback-only by a nested scope")
	}

	if err := sc.tx.Commit().Error; err != nil {
		return errors.Wrap(errors.ErrCodeDBQuery, "failed to commit transaction", err)
	}
	return nil
}

// Rollback ends the innermost scope discarding its changes.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.popLocked()
	if err != nil {
		return err
	}
	nested := len(s.scopes) > 0
	defer telemetry.GetMetrics().RecordTransaction(s.ctx, "rollback", nested)

	switch {
	case sc.noop:
		s.rollbackOnly = true
		return nil
	case sc.savepoint != "":
		if err := sc.tx.RollbackTo(sc.savepoint).Error; err != nil {
			return errors.Wrap(errors.ErrCodeDBQuery, "failed to roll back to savepoint", err)
		}
		return nil
	default:
		s.rollbackOnly = false
		if err := sc.tx.Rollback().Error; err != nil && !stderrors.Is(err, sql.ErrTxDone) {
			return errors.Wrap(errors.ErrCodeDBQuery, "failed to roll back transaction", err)
		}
		return nil
	}
}

func (s *Session) popLocked() (*scope, error) {
	if s.closed {
		return nil, errors.New(errors.ErrCodeSessionClosed, "session is closed")
	}
	n := len(s.scopes)
	if n == 0 {
		return nil, errors.ErrIntegrity("no open transaction scope")
	}
	sc := s.scopes[n-1]
	s.scopes = s.scopes[:n-1]
	return sc, nil
}

// Close rolls back every open scope and marks the session closed. Open work
// is never committed. Closing an already closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if len(s.scopes) > 0 {
		s.log.Warn("Closing session with open transaction, rolling back",
			zap.Int("depth", len(s.scopes)))
		if rbErr := s.scopes[0].tx.Rollback().Error; rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Wrap(errors.ErrCodeDBQuery, "failed to roll back on close", rbErr)
		}
		s.scopes = nil
	}
	s.rollbackOnly = false

	telemetry.GetMetrics().RecordSessionClosed(s.ctx, s.src.Name())
	s.log.Debug("Session closed")
	return err
}
