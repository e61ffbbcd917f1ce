package engines

import (
	"bytes"
	"html/template"
	"path/filepath"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/filesystem"
)

// PlainEngine renders html/template files straight from source.
type PlainEngine struct {
	files *filesystem.Filesystem
	funcs template.FuncMap
}

var _ Engine = (*PlainEngine)(nil)

// NewPlainEngine creates a plain engine.
func NewPlainEngine(files *filesystem.Filesystem, loader ViewLoader) *PlainEngine {
	return &PlainEngine{
		files: files,
		funcs: Funcs(loader),
	}
}

// Get parses and executes the template at path.
func (e *PlainEngine) Get(path string, data map[string]any) (string, error) {
	source, err := e.files.Get(path)
	if err != nil {
		return "", viewerrors.NewIOError(viewerrors.ErrCodeFileRead, "cannot read template", err).
			WithLocation(path, 0)
	}

	tmpl, err := template.New(filepath.Base(path)).Funcs(e.funcs).Parse(string(source))
	if err != nil {
		return "", viewerrors.NewCompileError(viewerrors.ErrCodeSyntax, "invalid template", err).
			WithLocation(path, 0)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", viewerrors.NewRenderError(viewerrors.ErrCodeExecute, "cannot render template", err).
			WithLocation(path, 0)
	}
	return buf.String(), nil
}
