package engine

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gormscope/gormscope/pkg/errors"
)

type entry struct {
	engine *Engine
	tags   map[string]struct{}
}

// Registry maps engines to tag sets and tracks the default engine.
// Registration happens at startup; selection is a read and safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entries  []entry
	def      *Engine
	explicit bool
}

// RegisterOption adjusts a registration
type RegisterOption func(*registerOptions)

type registerOptions struct {
	asDefault bool
	replace   bool
}

// AsDefault marks the engine as the default
func AsDefault() RegisterOption {
	return func(o *registerOptions) { o.asDefault = true }
}

// ReplaceDefault allows AsDefault to replace an explicitly registered default
func ReplaceDefault() RegisterOption {
	return func(o *registerOptions) { o.replace = true }
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds e with its tags. The first engine registered becomes the
// default. Registering a second explicit default without ReplaceDefault is
// a configuration error.
func (r *Registry) Register(e *Engine, tags []string, opts ...RegisterOption) error {
	if e == nil {
		return errors.ErrConfiguration("cannot register a nil engine")
	}
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if existing.engine == e {
			return errors.ErrConfiguration(fmt.Sprintf("engine %s is already registered", e))
		}
	}
	if o.asDefault && r.explicit && !o.replace {
		return errors.ErrConfiguration(fmt.Sprintf("default engine already registered (%s)", r.def))
	}

	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	r.entries = append(r.entries, entry{engine: e, tags: set})

	if o.asDefault || r.def == nil {
		r.def = e
		r.explicit = r.explicit || o.asDefault
	}
	return nil
}

// Select returns the default engine when no tags are given, otherwise the
// first registered engine whose tags include every requested tag.
func (r *Registry) Select(tags ...string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(tags) == 0 {
		if r.def == nil {
			return nil, errors.ErrLookup("no engine registered")
		}
		return r.def, nil
	}

	for _, en := range r.entries {
		if en.hasAll(tags) {
			return en.engine, nil
		}
	}
	return nil, errors.ErrLookup(fmt.Sprintf("no engine tagged %s", strings.Join(tags, ", ")))
}

func (en entry) hasAll(tags []string) bool {
	for _, t := range tags {
		if _, ok := en.tags[t]; !ok {
			return false
		}
	}
	return true
}

// Default returns the default engine, or nil when the registry is empty
func (r *Registry) Default() *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Tags returns the tags e was registered with
func (r *Registry) Tags(e *Engine) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, en := range r.entries {
		if en.engine == e {
			tags := make([]string, 0, len(en.tags))
			for t := range en.tags {
				tags = append(tags, t)
			}
			return tags
		}
	}
	return nil
}

// Engines returns the registered engines in registration order
func (r *Registry) Engines() []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Engine, len(r.entries))
	for i, en := range r.entries {
		out[i] = en.engine
	}
	return out
}

// Len returns the number of registered engines
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close closes every registered engine and joins their errors
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.Engines() {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e, err))
		}
	}
	return stderrors.Join(errs...)
}
