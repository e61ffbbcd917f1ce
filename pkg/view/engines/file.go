package engines

import (
	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/filesystem"
)

// FileEngine returns file contents untouched.
type FileEngine struct {
	files *filesystem.Filesystem
}

var _ Engine = (*FileEngine)(nil)

// NewFileEngine creates a file engine.
func NewFileEngine(files *filesystem.Filesystem) *FileEngine {
	return &FileEngine{files: files}
}

// Get returns the contents of path; data is ignored.
func (e *FileEngine) Get(path string, _ map[string]any) (string, error) {
	contents, err := e.files.Get(path)
	if err != nil {
		return "", viewerrors.NewIOError(viewerrors.ErrCodeFileRead, "cannot read file", err).
			WithLocation(path, 0)
	}
	return string(contents), nil
}
