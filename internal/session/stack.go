package session

import (
	"context"
	"sync"

	"github.com/gormscope/gormscope/pkg/errors"
)

// Stack is the context-local stack of active sessions. The innermost
// (most recently pushed) session is the current one.
type Stack struct {
	mu    sync.Mutex
	items []*Session
}

// NewStack creates an empty stack
func NewStack() *Stack {
	return &Stack{}
}

// Push makes s the current session
func (st *Stack) Push(s *Session) {
	st.mu.Lock()
	st.items = append(st.items, s)
	st.mu.Unlock()
}

// Pop removes and returns the current session. Popping an empty stack is an
// integrity error: a teardown ran without a matching start.
func (st *Stack) Pop() (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := len(st.items)
	if n == 0 {
		return nil, errors.ErrIntegrity("session stack is empty")
	}
	s := st.items[n-1]
	st.items[n-1] = nil
	st.items = st.items[:n-1]
	return s, nil
}

// Top returns the current session, or nil
func (st *Stack) Top() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if n := len(st.items); n > 0 {
		return st.items[n-1]
	}
	return nil
}

// Len returns the number of sessions on the stack
func (st *Stack) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.items)
}

type stackKey struct{}

// WithStack returns a copy of ctx carrying st
func WithStack(ctx context.Context, st *Stack) context.Context {
	return context.WithValue(ctx, stackKey{}, st)
}

// StackFrom returns the stack carried by ctx, or nil
func StackFrom(ctx context.Context) *Stack {
	if ctx == nil {
		return nil
	}
	st, _ := ctx.Value(stackKey{}).(*Stack)
	return st
}

// Current returns the innermost session active in ctx, or nil
func Current(ctx context.Context) *Session {
	if st := StackFrom(ctx); st != nil {
		return st.Top()
	}
	return nil
}
