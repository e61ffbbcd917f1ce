package view

import (
	"context"
	"errors"
	"sync"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/view/engines"
)

// View is a named template bound to an engine and a set of data.
type View struct {
	factory *Factory
	engine  engines.Engine
	name    string
	path    string

	mu   sync.RWMutex
	data map[string]any
}

func newView(factory *Factory, engine engines.Engine, name, path string, data map[string]any) *View {
	v := &View{
		factory: factory,
		engine:  engine,
		name:    name,
		path:    path,
		data:    make(map[string]any, len(data)),
	}
	for k, value := range data {
		v.data[k] = value
	}
	return v
}

// Name returns the view's logical name.
func (v *View) Name() string { return v.name }

// Path returns the file the view renders.
func (v *View) Path() string { return v.path }

// Engine returns the engine that renders the view.
func (v *View) Engine() engines.Engine { return v.engine }

// Factory returns the factory that created the view.
func (v *View) Factory() *Factory { return v.factory }

// Data returns a copy of the view's own data, excluding shared data.
func (v *View) Data() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]any, len(v.data))
	for k, value := range v.data {
		out[k] = value
	}
	return out
}

// With sets a single data key.
func (v *View) With(key string, value any) *View {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data[key] = value
	return v
}

// WithData merges data into the view's data.
func (v *View) WithData(data map[string]any) *View {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, value := range data {
		v.data[k] = value
	}
	return v
}

// Render fires the composing event and renders the view with the shared
// data overlaid by the view's own data.
func (v *View) Render() (string, error) {
	if err := v.factory.events.Dispatch("composing: "+v.name, v); err != nil {
		return "", err
	}

	out, err := v.engine.Get(v.path, v.gatherData())
	if err != nil {
		var ve *viewerrors.ViewError
		if errors.As(err, &ve) && ve.View == "" {
			ve.WithView(v.name)
		}
		v.factory.Logger().Debug(context.Background(), "View render failed", "view", v.name, "error", err)
		return "", err
	}
	return out, nil
}

func (v *View) gatherData() map[string]any {
	data := v.factory.GetShared()

	v.mu.RLock()
	defer v.mu.RUnlock()
	for k, value := range v.data {
		data[k] = value
	}
	return data
}
