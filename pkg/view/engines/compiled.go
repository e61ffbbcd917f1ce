package engines

import (
	"bytes"
	"fmt"
	"html/template"
	"sync"
	"time"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/filesystem"
	"github.com/conneroisu/bladekit/pkg/view/compiler"
)

// CompilerEngine renders directive templates. Sources are compiled into
// the cache directory when stale and the parsed result is kept in memory
// until any file in its layout chain changes.
type CompilerEngine struct {
	compiler *compiler.Compiler
	files    *filesystem.Filesystem
	loader   ViewLoader
	funcs    template.FuncMap

	mu    sync.Mutex
	cache map[string]*compiledEntry
}

type compiledEntry struct {
	tmpl    *template.Template
	sources []string
	stamps  []time.Time
}

type chainLink struct {
	source   string
	compiled string
	stamp    time.Time
}

var _ Engine = (*CompilerEngine)(nil)

// NewCompilerEngine creates an engine backed by c.
func NewCompilerEngine(c *compiler.Compiler, files *filesystem.Filesystem, loader ViewLoader) *CompilerEngine {
	return &CompilerEngine{
		compiler: c,
		files:    files,
		loader:   loader,
		funcs:    Funcs(loader),
		cache:    make(map[string]*compiledEntry),
	}
}

// Compiler returns the compiler the engine compiles with.
func (e *CompilerEngine) Compiler() *compiler.Compiler {
	return e.compiler
}

// Get renders the directive template at path, following @extends to the
// outermost layout.
func (e *CompilerEngine) Get(path string, data map[string]any) (string, error) {
	tmpl, err := e.template(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", viewerrors.NewRenderError(viewerrors.ErrCodeExecute, "cannot render template", err).
			WithLocation(path, 0)
	}
	return buf.String(), nil
}

func (e *CompilerEngine) template(path string) (*template.Template, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.cache[path]; ok && e.fresh(entry) {
		return entry.tmpl, nil
	}

	chain, err := e.chain(path)
	if err != nil {
		return nil, err
	}

	// Layouts are parsed outermost first so that sections defined by
	// descendants replace the blocks declared by @yield.
	root := chain[len(chain)-1]
	tmpl := template.New(root.source).Funcs(e.funcs)
	entry := &compiledEntry{tmpl: tmpl}
	for i := len(chain) - 1; i >= 0; i-- {
		link := chain[i]
		target := tmpl
		if i != len(chain)-1 {
			target = tmpl.New(link.source)
		}
		if _, err := target.Parse(link.compiled); err != nil {
			return nil, viewerrors.NewCompileError(viewerrors.ErrCodeSyntax, "invalid compiled template", err).
				WithLocation(link.source, 0)
		}
		entry.sources = append(entry.sources, link.source)
		entry.stamps = append(entry.stamps, link.stamp)
	}

	e.cache[path] = entry
	return tmpl, nil
}

func (e *CompilerEngine) chain(path string) ([]chainLink, error) {
	var chain []chainLink
	seen := make(map[string]bool)

	for current := path; ; {
		if seen[current] {
			return nil, viewerrors.NewCompileError(viewerrors.ErrCodeSyntax,
				fmt.Sprintf("circular @extends through %s", current), nil).WithLocation(path, 0)
		}
		seen[current] = true

		if e.compiler.IsExpired(current) {
			if err := e.compiler.Compile(current); err != nil {
				return nil, err
			}
		}

		compiledPath := e.compiler.CompiledPath(current)
		contents, err := e.files.Get(compiledPath)
		if err != nil {
			return nil, viewerrors.NewIOError(viewerrors.ErrCodeFileRead, "cannot read compiled template", err).
				WithLocation(current, 0)
		}
		stamp, _ := e.files.LastModified(compiledPath)
		chain = append(chain, chainLink{source: current, compiled: string(contents), stamp: stamp})

		parent, ok := compiler.ExtendsOf(string(contents))
		if !ok {
			return chain, nil
		}
		if e.loader == nil {
			return nil, viewerrors.NewInternalError(viewerrors.ErrCodeViewNotFound,
				"cannot resolve layout "+parent+" without a view loader", nil)
		}
		current, err = e.loader.FindView(parent)
		if err != nil {
			return nil, err
		}
	}
}

func (e *CompilerEngine) fresh(entry *compiledEntry) bool {
	for i, source := range entry.sources {
		if e.compiler.IsExpired(source) {
			return false
		}
		stamp, err := e.files.LastModified(e.compiler.CompiledPath(source))
		if err != nil || !stamp.Equal(entry.stamps[i]) {
			return false
		}
	}
	return true
}

// Flush drops every parsed template so the next render rereads the cache.
func (e *CompilerEngine) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*compiledEntry)
}
