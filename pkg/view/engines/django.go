package engines

import (
	"bytes"
	"io"
	"path/filepath"
	"sync"

	"github.com/flosch/pongo2/v6"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/filesystem"
)

// DjangoEngine renders Django-syntax templates with pongo2.
type DjangoEngine struct {
	files *filesystem.Filesystem

	// pongo2 template sets are not safe for concurrent parsing.
	mu  sync.Mutex
	set *pongo2.TemplateSet
}

var _ Engine = (*DjangoEngine)(nil)

// NewDjangoEngine creates a pongo2-backed engine. {% include %},
// {% extends %} and {% import %} read through files and accept view names
// ("partials.nav") when views is non-nil, or paths relative to the including
// template.
func NewDjangoEngine(files *filesystem.Filesystem, views ViewLoader) *DjangoEngine {
	return &DjangoEngine{
		files: files,
		set:   pongo2.NewSet("bladekit", &djangoLoader{files: files, views: views}),
	}
}

// Get parses and executes the pongo2 template at path.
func (e *DjangoEngine) Get(path string, data map[string]any) (string, error) {
	if !e.files.IsFile(path) {
		return "", viewerrors.NewIOError(viewerrors.ErrCodeFileRead, "cannot read template", nil).
			WithLocation(path, 0)
	}

	e.mu.Lock()
	tpl, err := e.set.FromFile(path)
	e.mu.Unlock()
	if err != nil {
		return "", viewerrors.NewCompileError(viewerrors.ErrCodeSyntax, "invalid template", err).
			WithLocation(path, 0)
	}

	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", viewerrors.NewRenderError(viewerrors.ErrCodeExecute, "cannot render template", err).
			WithLocation(path, 0)
	}
	return out, nil
}

// djangoLoader is a pongo2.TemplateLoader over the view filesystem.
type djangoLoader struct {
	files *filesystem.Filesystem
	views ViewLoader
}

var _ pongo2.TemplateLoader = (*djangoLoader)(nil)

// Abs resolves name, in order, as an absolute path, a view name, or a path
// relative to the including template base.
func (l *djangoLoader) Abs(base, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	if l.views != nil {
		if path, err := l.views.FindView(name); err == nil {
			return path
		}
	}
	if base == "" {
		return name
	}
	return filepath.Join(filepath.Dir(base), name)
}

func (l *djangoLoader) Get(path string) (io.Reader, error) {
	contents, err := l.files.Get(path)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(contents), nil
}
