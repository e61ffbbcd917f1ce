// Package view provides the view factory: it resolves view names to files,
// picks an engine by file extension, keeps shared data and fires the
// creating and composing events around every view.
package view

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/conneroisu/bladekit/internal/logging"
	"github.com/conneroisu/bladekit/pkg/di"
	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/events"
	"github.com/conneroisu/bladekit/pkg/view/engines"
)

// Engine names registered by default.
const (
	EnginePlain    = "plain"
	EngineCompiled = "compiled"
	EngineFile     = "file"
	EngineDjango   = "django"
)

// BladeExtension is the extension of directive templates.
const BladeExtension = "blade.html"

// ComposerFunc prepares a view before it is rendered or after it is created.
type ComposerFunc func(v *View) error

// Composer is implemented by services registered in the container and
// attached with ComposerFromContainer.
type Composer interface {
	Compose(v *View) error
}

// MacroFunc is a user-defined factory method invoked through Call.
type MacroFunc func(f *Factory, args ...any) (any, error)

type extensionEngine struct {
	extension string
	engine    string
}

// Factory creates views.
type Factory struct {
	engines *engines.Resolver
	finder  Finder
	events  *events.Dispatcher

	mu         sync.RWMutex
	container  *di.ServiceContainer
	logger     logging.Logger
	shared     map[string]any
	extensions []extensionEngine
	macros     map[string]MacroFunc
}

var _ engines.ViewLoader = (*Factory)(nil)

// NewFactory creates a factory over resolver, finder and dispatcher.
func NewFactory(resolver *engines.Resolver, finder Finder, dispatcher *events.Dispatcher) *Factory {
	f := &Factory{
		engines: resolver,
		finder:  finder,
		events:  dispatcher,
		logger:  logging.Nop(),
		shared:  make(map[string]any),
		macros:  make(map[string]MacroFunc),
	}

	// Later entries win, so the most specific extension is added last.
	for _, ext := range []extensionEngine{
		{"txt", EngineFile},
		{"css", EngineFile},
		{"tmpl", EnginePlain},
		{"html", EnginePlain},
		{BladeExtension, EngineCompiled},
	} {
		f.prependExtension(ext.extension, ext.engine)
	}
	return f
}

// Make creates the named view and fires its creating event.
func (f *Factory) Make(name string, data map[string]any) (*View, error) {
	name = normalizeName(name)

	path, err := f.finder.Find(name)
	if err != nil {
		return nil, err
	}
	return f.viewInstance(name, path, data)
}

// File creates a view for a file path, bypassing the finder.
func (f *Factory) File(path string, data map[string]any) (*View, error) {
	return f.viewInstance(path, path, data)
}

// Render makes the named view and renders it.
func (f *Factory) Render(name string, data map[string]any) (string, error) {
	v, err := f.Make(name, data)
	if err != nil {
		return "", err
	}
	return v.Render()
}

// Exists reports whether the finder can locate the named view.
func (f *Factory) Exists(name string) bool {
	_, err := f.finder.Find(normalizeName(name))
	return err == nil
}

// FindView resolves name to a file path.
func (f *Factory) FindView(name string) (string, error) {
	return f.finder.Find(normalizeName(name))
}

// RenderView renders the named view; engines call it for includes.
func (f *Factory) RenderView(name string, data map[string]any) (string, error) {
	return f.Render(name, data)
}

func (f *Factory) viewInstance(name, path string, data map[string]any) (*View, error) {
	engine, err := f.GetEngineFromPath(path)
	if err != nil {
		return nil, err
	}

	v := newView(f, engine, name, path, data)
	f.Logger().Debug(context.Background(), "Created view", "view", name, "path", path)

	if err := f.events.Dispatch("creating: "+name, v); err != nil {
		return nil, err
	}
	return v, nil
}

// GetEngineFromPath returns the engine registered for the extension of path.
func (f *Factory) GetEngineFromPath(path string) (engines.Engine, error) {
	engine, ok := f.EngineName(path)
	if !ok {
		return nil, viewerrors.NewNotFoundError(viewerrors.ErrCodeExtensionUnknown,
			"unrecognized extension in file: "+path)
	}
	return f.engines.Resolve(engine)
}

// EngineName returns the name of the engine mapped to the extension of path.
func (f *Factory) EngineName(path string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ext := range f.extensions {
		if strings.HasSuffix(path, "."+ext.extension) {
			return ext.engine, true
		}
	}
	return "", false
}

// AddExtension maps ext to engine, ahead of every existing mapping. A non-nil
// resolver registers (or replaces) the engine itself.
func (f *Factory) AddExtension(extension, engine string, resolver func() engines.Engine) {
	extension = strings.TrimPrefix(extension, ".")
	f.finder.AddExtension(extension)

	if resolver != nil {
		f.engines.Register(engine, resolver)
	}
	f.prependExtension(extension, engine)
}

func (f *Factory) prependExtension(extension, engine string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := []extensionEngine{{extension: extension, engine: engine}}
	for _, ext := range f.extensions {
		if ext.extension != extension {
			kept = append(kept, ext)
		}
	}
	f.extensions = kept
}

// GetExtensions returns extension to engine mappings in match order.
func (f *Factory) GetExtensions() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]string, len(f.extensions))
	for _, ext := range f.extensions {
		out[ext.extension] = ext.engine
	}
	return out
}

// Share makes value available to every view under key.
func (f *Factory) Share(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shared[key] = value
}

// Shared returns the shared value for key, or fallback when unset.
func (f *Factory) Shared(key string, fallback any) any {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if value, ok := f.shared[key]; ok {
		return value
	}
	return fallback
}

// GetShared returns a copy of all shared data.
func (f *Factory) GetShared() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]any, len(f.shared))
	for k, v := range f.shared {
		out[k] = v
	}
	return out
}

// Composer runs fn before every view matching pattern is rendered.
// Patterns may use '*' wildcards.
func (f *Factory) Composer(pattern string, fn ComposerFunc) {
	f.addViewEvent("composing: ", pattern, fn)
}

// Creator runs fn whenever a view matching pattern is created.
func (f *Factory) Creator(pattern string, fn ComposerFunc) {
	f.addViewEvent("creating: ", pattern, fn)
}

// ComposerFromContainer composes views matching pattern with the service
// registered in the container under service. The service must be a
// Composer or a ComposerFunc and is resolved on every composition, so a
// service added with Register gets a fresh instance per view.
func (f *Factory) ComposerFromContainer(pattern, service string) {
	f.Composer(pattern, func(v *View) error {
		container := f.GetContainer()
		if container == nil {
			return viewerrors.NewInternalError(viewerrors.ErrCodeListenerFailed,
				"no container set for composer "+service, nil)
		}

		if !container.Has(service) {
			return viewerrors.NewInternalError(viewerrors.ErrCodeListenerFailed,
				"composer service "+service+" is not registered", nil)
		}

		instance, err := container.Get(service)
		if err != nil {
			return err
		}

		switch c := instance.(type) {
		case Composer:
			return c.Compose(v)
		case ComposerFunc:
			return c(v)
		case func(*View) error:
			return c(v)
		default:
			return viewerrors.NewInternalError(viewerrors.ErrCodeListenerFailed,
				fmt.Sprintf("service %s is not a view composer (%T)", service, instance), nil)
		}
	})
}

func (f *Factory) addViewEvent(prefix, pattern string, fn ComposerFunc) {
	f.events.Listen(func(_ string, payload interface{}) error {
		v, ok := payload.(*View)
		if !ok {
			return nil
		}
		return fn(v)
	}, prefix+normalizeName(pattern))
}

// AddLocation appends a search directory to the finder.
func (f *Factory) AddLocation(location string) {
	f.finder.AddLocation(location)
}

// PrependLocation puts a search directory ahead of the others.
func (f *Factory) PrependLocation(location string) {
	f.finder.PrependLocation(location)
}

// AddNamespace appends hint paths for namespace.
func (f *Factory) AddNamespace(namespace string, hints ...string) {
	f.finder.AddNamespace(namespace, hints...)
}

// PrependNamespace puts hint paths ahead of existing ones for namespace.
func (f *Factory) PrependNamespace(namespace string, hints ...string) {
	f.finder.PrependNamespace(namespace, hints...)
}

// ReplaceNamespace sets the hint paths for namespace.
func (f *Factory) ReplaceNamespace(namespace string, hints ...string) {
	f.finder.ReplaceNamespace(namespace, hints...)
}

// FlushFinderCache drops every cached view lookup.
func (f *Factory) FlushFinderCache() {
	f.finder.Flush()
}

// Macro registers a method callable through Call.
func (f *Factory) Macro(name string, fn MacroFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.macros[name] = fn
}

// HasMacro reports whether a macro named name exists.
func (f *Factory) HasMacro(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.macros[name]
	return ok
}

// Call invokes method by name: a macro if one is registered, otherwise the
// exported factory method. Methods returning several values yield them as a
// []any; a trailing error result is returned as the error.
func (f *Factory) Call(method string, args ...any) (any, error) {
	f.mu.RLock()
	macro, ok := f.macros[method]
	f.mu.RUnlock()
	if ok {
		return macro(f, args...)
	}

	fn := reflect.ValueOf(f).MethodByName(method)
	if !fn.IsValid() || method == "Call" {
		return nil, viewerrors.ErrBadMethod(method)
	}

	in, err := callArgs(method, fn.Type(), args)
	if err != nil {
		return nil, err
	}

	var out []reflect.Value
	if fn.Type().IsVariadic() {
		out = fn.CallSlice(in)
	} else {
		out = fn.Call(in)
	}
	return callResults(out)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callArgs(method string, fnType reflect.Type, args []any) ([]reflect.Value, error) {
	badArgs := func(format string, a ...any) error {
		return &viewerrors.ViewError{
			Type:    viewerrors.ErrorTypeBadMethod,
			Code:    viewerrors.ErrCodeBadArguments,
			Message: method + ": " + fmt.Sprintf(format, a...),
		}
	}

	fixed := fnType.NumIn()
	if fnType.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, badArgs("expected at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, badArgs("expected %d arguments, got %d", fixed, len(args))
	}

	in := make([]reflect.Value, 0, fnType.NumIn())
	for i := 0; i < fixed; i++ {
		value, err := convertArg(args[i], fnType.In(i))
		if err != nil {
			return nil, badArgs("argument %d: %v", i, err)
		}
		in = append(in, value)
	}

	if fnType.IsVariadic() {
		sliceType := fnType.In(fixed)
		rest := reflect.MakeSlice(sliceType, 0, len(args)-fixed)
		for i := fixed; i < len(args); i++ {
			value, err := convertArg(args[i], sliceType.Elem())
			if err != nil {
				return nil, badArgs("argument %d: %v", i, err)
			}
			rest = reflect.Append(rest, value)
		}
		in = append(in, rest)
	}
	return in, nil
}

func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Interface, reflect.Map, reflect.Slice, reflect.Pointer, reflect.Func:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not a %s", want)
	}

	value := reflect.ValueOf(arg)
	switch {
	case value.Type().AssignableTo(want):
		return value, nil
	case value.Type().ConvertibleTo(want) && value.Kind() == want.Kind():
		return value.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("%T is not a %s", arg, want)
}

func callResults(out []reflect.Value) (any, error) {
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		var err error
		if !out[n-1].IsNil() {
			err = out[n-1].Interface().(error)
		}
		out = out[:n-1]
		if err != nil {
			return nil, err
		}
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, nil
}

// SetContainer sets the container used to resolve composer services.
func (f *Factory) SetContainer(container *di.ServiceContainer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.container = container
}

// GetContainer returns the container, if any.
func (f *Factory) GetContainer() *di.ServiceContainer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.container
}

// SetLogger replaces the factory's logger.
func (f *Factory) SetLogger(logger logging.Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = logger.WithComponent("view")
}

// Logger returns the factory's logger.
func (f *Factory) Logger() logging.Logger {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.logger
}

// GetFinder returns the view finder.
func (f *Factory) GetFinder() Finder {
	return f.finder
}

// GetEngineResolver returns the engine resolver.
func (f *Factory) GetEngineResolver() *engines.Resolver {
	return f.engines
}

// GetDispatcher returns the event dispatcher.
func (f *Factory) GetDispatcher() *events.Dispatcher {
	return f.events
}

// normalizeName turns path separators in the view part of name into dots.
func normalizeName(name string) string {
	if !strings.Contains(name, HintPathDelimiter) {
		return strings.ReplaceAll(name, "/", ".")
	}
	namespace, view, _ := strings.Cut(name, HintPathDelimiter)
	return namespace + HintPathDelimiter + strings.ReplaceAll(view, "/", ".")
}
