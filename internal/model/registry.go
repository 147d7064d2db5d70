package model

import (
	"fmt"
	"sync"

	"github.com/gormscope/gormscope/pkg/errors"
)

// Registry is an ordered set of named model prototypes. Schema tooling
// (table creation, initial migrations) works from a registry.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	models map[string]any
}

// Default is the registry of the example application
var Default = NewRegistry()

func init() {
	Default.MustRegister("Task", &Task{})
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]any)}
}

// Register adds a model prototype (a pointer to a zero struct) under name
func (r *Registry) Register(name string, proto any) error {
	if name == "" || proto == nil {
		return errors.ErrConfiguration("model name and prototype are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[name]; ok {
		return errors.ErrConfiguration(fmt.Sprintf("model %s is already registered", name))
	}
	r.names = append(r.names, name)
	r.models[name] = proto
	return nil
}

// MustRegister is Register that panics on error
func (r *Registry) MustRegister(name string, proto any) {
	if err := r.Register(name, proto); err != nil {
		panic(err)
	}
}

// Get returns the prototype registered under name
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Names returns model names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Models returns model prototypes in registration order
func (r *Registry) Models() []any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]any, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.models[name])
	}
	return out
}

// Len returns the number of registered models
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Subset returns a registry holding only the named models, in the order
// given. No names returns a copy of the whole registry.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	sub := NewRegistry()
	for _, name := range names {
		proto, ok := r.Get(name)
		if !ok {
			return nil, errors.ErrLookup(fmt.Sprintf("unknown model %s", name))
		}
		if err := sub.Register(name, proto); err != nil {
			return nil, err
		}
	}
	return sub, nil
}
