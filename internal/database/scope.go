package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/engine"
	"github.com/gormscope/gormscope/internal/session"
	"github.com/gormscope/gormscope/pkg/errors"
	"github.com/gormscope/gormscope/pkg/telemetry"
)

// TxFunc is the body of a scoped transaction. ctx carries the session as
// the current one, so nested Transaction calls inside fn reuse it.
type TxFunc func(ctx context.Context, s *session.Session) error

// BeginScope opens a session on the default engine and pushes it on the
// session stack of ctx, creating the stack when ctx has none. Every
// successful BeginScope must be paired with one EndScope on the returned
// context.
func (d *DB) BeginScope(ctx context.Context) (context.Context, error) {
	e, err := d.engines.Select()
	if err != nil {
		return ctx, err
	}

	st := session.StackFrom(ctx)
	if st == nil {
		st = session.NewStack()
		ctx = session.WithStack(ctx, st)
	}
	st.Push(e.MakeSession(ctx))
	return ctx, nil
}

// EndScope pops the current session and closes it, rolling back any
// transaction it left open. An empty stack means EndScope ran without a
// matching BeginScope; the integrity error is logged and returned.
func (d *DB) EndScope(ctx context.Context) error {
	st := session.StackFrom(ctx)
	if st == nil {
		err := errors.ErrIntegrity("scope ended without a session stack")
		d.log.Error("Session teardown without matching start", zap.Error(err))
		return err
	}
	s, err := st.Pop()
	if err != nil {
		d.log.Error("Session teardown without matching start", zap.Error(err))
		return err
	}
	return s.Close()
}

// Transaction runs fn in a transaction scope on the default engine.
//
// Inside a bound context the current session is reused and fn runs in a
// nested scope; the session stays open for its owner. Outside any context a
// new session is opened, made current for fn, and closed when fn returns.
// An error from fn rolls the scope back and is returned unchanged.
func (d *DB) Transaction(ctx context.Context, fn TxFunc) error {
	if s := session.Current(ctx); s != nil {
		return d.nested(ctx, s, fn)
	}
	e, err := d.engines.Select()
	if err != nil {
		return err
	}
	return d.owned(ctx, e, fn)
}

// TransactionWith is Transaction on the first engine carrying tags. The
// current session is reused only when it belongs to that engine.
func (d *DB) TransactionWith(ctx context.Context, tags []string, fn TxFunc) error {
	e, err := d.engines.Select(tags...)
	if err != nil {
		return err
	}
	if s := session.Current(ctx); s != nil && s.Engine() == session.Source(e) {
		return d.nested(ctx, s, fn)
	}
	return d.owned(ctx, e, fn)
}

func (d *DB) nested(ctx context.Context, s *session.Session, fn TxFunc) error {
	if err := s.Begin(); err != nil {
		return err
	}
	return d.run(ctx, s, fn)
}

func (d *DB) owned(ctx context.Context, e *engine.Engine, fn TxFunc) (err error) {
	st := session.StackFrom(ctx)
	if st == nil {
		st = session.NewStack()
		ctx = session.WithStack(ctx, st)
	}
	s := e.MakeSession(ctx)
	st.Push(s)

	defer func() {
		popped, popErr := st.Pop()
		if popErr == nil && popped != s {
			popErr = errors.ErrIntegrity("session stack modified inside transaction scope")
		}
		if popErr != nil {
			d.log.Error("Unbalanced session stack", zap.Error(popErr))
		}
		closeErr := s.Close()
		if err == nil {
			if popErr != nil {
				err = popErr
			} else {
				err = closeErr
			}
		}
	}()

	if err := s.Begin(); err != nil {
		return err
	}
	return d.run(ctx, s, fn)
}

// run executes fn in the scope just opened on s and ends that scope exactly once
func (d *DB) run(ctx context.Context, s *session.Session, fn TxFunc) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "database.Transaction",
		telemetry.WithSessionAttributes(s.ID(), s.Engine().Name(), s.Depth() > 1))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			if rbErr := s.Rollback(); rbErr != nil {
				d.log.Error("Rollback after panic failed", zap.Error(rbErr))
			}
			panic(r)
		}
	}()

	if err = fn(ctx, s); err != nil {
		telemetry.SetSpanError(span, err)
		if rbErr := s.Rollback(); rbErr != nil {
			d.log.Error("Rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return err
	}

	if err = s.Commit(); err != nil {
		telemetry.SetSpanError(span, err)
		return err
	}
	telemetry.SetSpanOK(span)
	return nil
}
