package view

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/filesystem"
)

// HintPathDelimiter separates a namespace from the view name, as in
// "mail::welcome".
const HintPathDelimiter = "::"

// DefaultExtensions are searched in order when resolving a view name.
var DefaultExtensions = []string{"blade.html", "html", "tmpl", "css", "txt"}

// Finder locates view files by logical name.
type Finder interface {
	Find(name string) (string, error)
	AddLocation(location string)
	PrependLocation(location string)
	AddNamespace(namespace string, hints ...string)
	PrependNamespace(namespace string, hints ...string)
	ReplaceNamespace(namespace string, hints ...string)
	AddExtension(extension string)
	Flush()
}

// FileViewFinder resolves dotted view names against an ordered list of
// directories and namespace hint paths.
type FileViewFinder struct {
	files *filesystem.Filesystem

	mu         sync.RWMutex
	paths      []string
	hints      map[string][]string
	extensions []string
	views      map[string]string
}

var _ Finder = (*FileViewFinder)(nil)

// NewFileViewFinder creates a finder over paths. A nil extensions slice
// selects DefaultExtensions.
func NewFileViewFinder(files *filesystem.Filesystem, paths []string, extensions []string) *FileViewFinder {
	if extensions == nil {
		extensions = DefaultExtensions
	}

	f := &FileViewFinder{
		files:      files,
		hints:      make(map[string][]string),
		extensions: append([]string(nil), extensions...),
		views:      make(map[string]string),
	}
	for _, path := range paths {
		f.paths = append(f.paths, resolvePath(path))
	}
	return f
}

// Find returns the file path of the named view.
func (f *FileViewFinder) Find(name string) (string, error) {
	f.mu.RLock()
	path, ok := f.views[name]
	f.mu.RUnlock()
	if ok {
		return path, nil
	}

	var err error
	if hasHintInformation(name) {
		path, err = f.findNamespaced(name)
	} else {
		path, err = f.findInPaths(name, f.Paths())
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.views[name] = path
	f.mu.Unlock()
	return path, nil
}

// Exists reports whether name resolves to a file.
func (f *FileViewFinder) Exists(name string) bool {
	_, err := f.Find(name)
	return err == nil
}

func (f *FileViewFinder) findNamespaced(name string) (string, error) {
	namespace, view, err := parseNamespaceSegments(name)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	hints, ok := f.hints[namespace]
	hints = append([]string(nil), hints...)
	f.mu.RUnlock()
	if !ok {
		return "", viewerrors.NewNotFoundError(viewerrors.ErrCodeNamespaceMissing,
			"no hint path defined for namespace "+namespace).WithView(name)
	}

	path, err := f.findInPaths(view, hints)
	if err != nil {
		return "", viewerrors.ErrViewNotFound(name)
	}
	return path, nil
}

func (f *FileViewFinder) findInPaths(name string, paths []string) (string, error) {
	if !validName(name) {
		return "", viewerrors.NewNotFoundError(viewerrors.ErrCodeInvalidName,
			"invalid view name").WithView(name)
	}

	candidates := f.possibleViewFiles(name)
	for _, dir := range paths {
		for _, candidate := range candidates {
			path := filepath.Join(dir, candidate)
			if f.files.IsFile(path) {
				return path, nil
			}
		}
	}
	return "", viewerrors.ErrViewNotFound(name)
}

func (f *FileViewFinder) possibleViewFiles(name string) []string {
	base := strings.ReplaceAll(name, ".", "/")

	f.mu.RLock()
	defer f.mu.RUnlock()

	files := make([]string, 0, len(f.extensions))
	for _, ext := range f.extensions {
		files = append(files, base+"."+ext)
	}
	return files
}

// AddLocation appends a search directory.
func (f *FileViewFinder) AddLocation(location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, resolvePath(location))
}

// PrependLocation puts a search directory ahead of the others.
func (f *FileViewFinder) PrependLocation(location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append([]string{resolvePath(location)}, f.paths...)
}

// AddNamespace appends hint paths to namespace.
func (f *FileViewFinder) AddNamespace(namespace string, hints ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints[namespace] = append(f.hints[namespace], hints...)
}

// PrependNamespace puts hint paths ahead of the existing ones for namespace.
func (f *FileViewFinder) PrependNamespace(namespace string, hints ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints[namespace] = append(append([]string(nil), hints...), f.hints[namespace]...)
}

// ReplaceNamespace sets the hint paths for namespace and drops cached
// lookups made through it.
func (f *FileViewFinder) ReplaceNamespace(namespace string, hints ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints[namespace] = append([]string(nil), hints...)

	prefix := namespace + HintPathDelimiter
	for name := range f.views {
		if strings.HasPrefix(name, prefix) {
			delete(f.views, name)
		}
	}
}

// AddExtension registers ext ahead of the existing extensions. Adding a
// known extension moves it to the front.
func (f *FileViewFinder) AddExtension(extension string) {
	extension = strings.TrimPrefix(extension, ".")

	f.mu.Lock()
	defer f.mu.Unlock()

	kept := make([]string, 0, len(f.extensions)+1)
	kept = append(kept, extension)
	for _, ext := range f.extensions {
		if ext != extension {
			kept = append(kept, ext)
		}
	}
	f.extensions = kept
}

// Flush drops the lookup cache.
func (f *FileViewFinder) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = make(map[string]string)
}

// Paths returns the search directories.
func (f *FileViewFinder) Paths() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.paths...)
}

// Hints returns a copy of the namespace hint paths.
func (f *FileViewFinder) Hints() map[string][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	hints := make(map[string][]string, len(f.hints))
	for namespace, paths := range f.hints {
		hints[namespace] = append([]string(nil), paths...)
	}
	return hints
}

// Extensions returns the extensions in search order.
func (f *FileViewFinder) Extensions() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.extensions...)
}

// Views lists the names of every view the finder can resolve, sorted.
// Namespaced views are listed as "namespace::name".
func (f *FileViewFinder) Views() ([]string, error) {
	seen := make(map[string]bool)

	collect := func(prefix string, dirs []string) error {
		for _, dir := range dirs {
			if !f.files.IsDirectory(dir) {
				continue
			}
			files, err := f.files.AllFiles(dir)
			if err != nil {
				return err
			}
			for _, file := range files {
				if name, ok := f.viewName(dir, file); ok {
					seen[prefix+name] = true
				}
			}
		}
		return nil
	}

	if err := collect("", f.Paths()); err != nil {
		return nil, err
	}
	hints := f.Hints()
	for namespace, dirs := range hints {
		if err := collect(namespace+HintPathDelimiter, dirs); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FileViewFinder) viewName(dir, file string) (string, bool) {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	for _, ext := range f.Extensions() {
		if !strings.HasSuffix(rel, "."+ext) {
			continue
		}
		base := strings.TrimSuffix(rel, "."+ext)
		// Names containing dots cannot be addressed with dot notation.
		if strings.Contains(base, ".") {
			continue
		}
		return strings.ReplaceAll(base, "/", "."), true
	}
	return "", false
}

// Filesystem returns the filesystem views are read from.
func (f *FileViewFinder) Filesystem() *filesystem.Filesystem {
	return f.files
}

func hasHintInformation(name string) bool {
	return strings.Contains(name, HintPathDelimiter)
}

func parseNamespaceSegments(name string) (string, string, error) {
	segments := strings.Split(name, HintPathDelimiter)
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", viewerrors.NewNotFoundError(viewerrors.ErrCodeInvalidName,
			"view name has an invalid namespace").WithView(name)
	}
	return segments[0], segments[1], nil
}

// validName rejects names that would escape the search directories.
func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	for _, segment := range strings.Split(strings.ReplaceAll(name, ".", "/"), "/") {
		if segment == "" {
			return false
		}
	}
	return true
}

func resolvePath(path string) string {
	return filepath.Clean(path)
}
