// Package blade bootstraps a ready-to-use view factory from a list of view
// directories and a cache directory.
//
//	views := blade.New([]string{"./views"}, "./cache")
//	html, err := views.Render("users.index", map[string]any{"Users": users})
package blade

import (
	"sync"

	"github.com/spf13/afero"

	"github.com/conneroisu/bladekit/internal/logging"
	"github.com/conneroisu/bladekit/pkg/di"
	"github.com/conneroisu/bladekit/pkg/events"
	"github.com/conneroisu/bladekit/pkg/filesystem"
	"github.com/conneroisu/bladekit/pkg/view"
	"github.com/conneroisu/bladekit/pkg/view/compiler"
	"github.com/conneroisu/bladekit/pkg/view/engines"
)

// Names under which services are published in the container.
const (
	FilesystemService = "filesystem"
	EventsService     = "events"
	ResolverService   = "view.engine.resolver"
	FinderService     = "view.finder"
	CompilerService   = "view.compiler"
	FactoryService    = "view"
)

// DjangoExtension is the file extension mapped to the django engine by
// WithDjangoEngine.
const DjangoExtension = "django.html"

// View holds the services behind a view factory. Every factory method is
// available on View directly.
type View struct {
	*view.Factory

	paths     []string
	cachePath string
	container *di.ServiceContainer
	files     *filesystem.Filesystem
	events    *events.Dispatcher
	resolver  *engines.Resolver
	finder    *view.FileViewFinder

	compilerOnce sync.Once
	compiler     *compiler.Compiler
}

type options struct {
	dispatcher *events.Dispatcher
	container  *di.ServiceContainer
	fs         afero.Fs
	logger     logging.Logger
	extensions []string
	django     bool
}

// Option configures New.
type Option func(*options)

// WithDispatcher uses d instead of a new dispatcher.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithContainer publishes services into c instead of a new container.
func WithContainer(c *di.ServiceContainer) Option {
	return func(o *options) { o.container = c }
}

// WithFilesystem reads views and writes compiled artifacts through fs.
func WithFilesystem(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithLogger sets the logger used by the factory.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExtensions replaces the finder's default extension list.
func WithExtensions(extensions ...string) Option {
	return func(o *options) { o.extensions = extensions }
}

// WithDjangoEngine registers the pongo2 engine for .django.html files.
func WithDjangoEngine() Option {
	return func(o *options) { o.django = true }
}

// New builds a view factory for the given view directories and cache
// directory. Directories are not checked; missing ones surface when a view
// is looked up.
func New(paths []string, cachePath string, opts ...Option) *View {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	v := &View{
		paths:     append([]string(nil), paths...),
		cachePath: cachePath,
		container: o.container,
	}
	if v.container == nil {
		v.container = di.NewServiceContainer()
	}

	v.registerFilesystem(o.fs)
	v.registerEvents(o.dispatcher)
	v.registerEngineResolver()
	v.registerViewFinder(o.extensions)
	v.createFactory(o.logger)

	if o.django {
		v.registerDjangoEngine()
	}
	return v
}

func (v *View) registerFilesystem(fs afero.Fs) {
	v.files = filesystem.New(fs)
	v.container.RegisterInstance(FilesystemService, v.files)
}

func (v *View) registerEvents(dispatcher *events.Dispatcher) {
	if dispatcher == nil {
		dispatcher = events.NewDispatcher()
	}
	v.events = dispatcher
	v.container.RegisterInstance(EventsService, v.events)
}

// registerEngineResolver registers the plain, compiled and file engines.
// None of them is built until a view needs it.
func (v *View) registerEngineResolver() {
	v.resolver = engines.NewResolver()

	v.resolver.Register(view.EnginePlain, func() engines.Engine {
		return engines.NewPlainEngine(v.files, v.Factory)
	})
	v.registerCompiledEngine()
	v.resolver.Register(view.EngineFile, func() engines.Engine {
		return engines.NewFileEngine(v.files)
	})

	v.container.RegisterInstance(ResolverService, v.resolver)
}

func (v *View) registerCompiledEngine() {
	v.container.RegisterSingleton(CompilerService, func(di.DependencyResolver) (interface{}, error) {
		return v.Compiler(), nil
	}).DependsOn(FilesystemService)

	v.resolver.Register(view.EngineCompiled, func() engines.Engine {
		return engines.NewCompilerEngine(v.Compiler(), v.files, v.Factory)
	})
}

func (v *View) registerDjangoEngine() {
	v.AddExtension(DjangoExtension, view.EngineDjango, func() engines.Engine {
		return engines.NewDjangoEngine(v.files, v.Factory)
	})
}

func (v *View) registerViewFinder(extensions []string) {
	v.finder = view.NewFileViewFinder(v.files, v.paths, extensions)
	v.container.RegisterInstance(FinderService, v.finder)
}

func (v *View) createFactory(logger logging.Logger) {
	v.Factory = view.NewFactory(v.resolver, v.finder, v.events)
	v.Factory.SetContainer(v.container)
	if logger != nil {
		v.Factory.SetLogger(logger)
	}
	v.container.RegisterInstance(FactoryService, v.Factory)
}

// Compiler returns the compiler bound to the cache directory. It is built on
// first use and the same instance is returned afterwards.
func (v *View) Compiler() *compiler.Compiler {
	v.compilerOnce.Do(func() {
		v.compiler = compiler.New(v.files, v.cachePath)
	})
	return v.compiler
}

// Container returns the container the services are published in.
func (v *View) Container() *di.ServiceContainer {
	return v.container
}

// Paths returns the view directories passed to New.
func (v *View) Paths() []string {
	return append([]string(nil), v.paths...)
}

// CachePath returns the directory compiled views are written to.
func (v *View) CachePath() string {
	return v.cachePath
}

// Filesystem returns the filesystem views are read through.
func (v *View) Filesystem() *filesystem.Filesystem {
	return v.files
}

// Finder returns the file view finder.
func (v *View) Finder() *view.FileViewFinder {
	return v.finder
}
