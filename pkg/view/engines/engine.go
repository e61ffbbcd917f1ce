// Package engines holds the rendering engines and the resolver that maps
// engine names to lazily built engine instances.
package engines

import (
	"sort"
	"sync"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
)

// Engine renders the file at path with data.
type Engine interface {
	Get(path string, data map[string]any) (string, error)
}

// ViewLoader lets engines reach back into the view factory for layouts and
// includes.
type ViewLoader interface {
	FindView(name string) (string, error)
	RenderView(name string, data map[string]any) (string, error)
}

// Resolver maps engine names to engines. Each engine is built on first use
// and reused afterwards.
type Resolver struct {
	mu        sync.Mutex
	resolvers map[string]func() Engine
	resolved  map[string]Engine
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		resolvers: make(map[string]func() Engine),
		resolved:  make(map[string]Engine),
	}
}

// Register sets the constructor for engine, discarding any instance built
// by a previous constructor.
func (r *Resolver) Register(engine string, resolver func() Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.resolved, engine)
	r.resolvers[engine] = resolver
}

// Resolve returns the engine registered under name.
func (r *Resolver) Resolve(engine string) (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if instance, ok := r.resolved[engine]; ok {
		return instance, nil
	}

	resolver, ok := r.resolvers[engine]
	if !ok || resolver == nil {
		return nil, viewerrors.ErrEngineNotFound(engine)
	}

	instance := resolver()
	r.resolved[engine] = instance
	return instance, nil
}

// Forget drops the built instance of engine so the next Resolve rebuilds it.
func (r *Resolver) Forget(engine string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resolved, engine)
}

// Names lists registered engine names.
func (r *Resolver) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.resolvers))
	for name := range r.resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
