// Package compiler translates directive templates into Go html/template
// source and persists the result in a cache directory.
//
// The directive language is a superset of html/template: ordinary actions
// such as {{ .Title }} pass through untouched and are escaped by
// html/template at execution time. On top of that the compiler understands
// comments ({{-- --}}), raw echoes ({!! !!}), literal braces (@{{ }}) and
// the block directives listed in compileDirective.
package compiler

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/filesystem"
)

// CompiledExtension is the file extension of compiled artifacts.
const CompiledExtension = ".tmpl"

const extendsPrefix = "{{/* extends:"
const extendsSuffix = " */}}\n"

// DirectiveHandler turns the argument text of a custom directive (without
// the surrounding parentheses) into template source.
type DirectiveHandler func(expression string) string

// Compiler compiles directive templates into the cache directory.
type Compiler struct {
	files     *filesystem.Filesystem
	cachePath string

	mu         sync.RWMutex
	extensions []func(string) string
	directives map[string]DirectiveHandler
}

// New creates a compiler that stores artifacts under cachePath.
func New(files *filesystem.Filesystem, cachePath string) *Compiler {
	return &Compiler{
		files:      files,
		cachePath:  cachePath,
		directives: make(map[string]DirectiveHandler),
	}
}

// CachePath returns the directory compiled artifacts are written to.
func (c *Compiler) CachePath() string {
	return c.cachePath
}

// CompiledPath returns where the artifact for the source at path lives.
func (c *Compiler) CompiledPath(path string) string {
	sum := sha1.Sum([]byte(path))
	return filepath.Join(c.cachePath, hex.EncodeToString(sum[:])+CompiledExtension)
}

// IsExpired reports whether path needs compiling: the artifact is missing
// or older than the source.
func (c *Compiler) IsExpired(path string) bool {
	compiled := c.CompiledPath(path)
	if !c.files.Exists(compiled) {
		return true
	}

	sourceTime, err := c.files.LastModified(path)
	if err != nil {
		return true
	}
	compiledTime, err := c.files.LastModified(compiled)
	if err != nil {
		return true
	}
	return sourceTime.After(compiledTime)
}

// Compile reads the source at path and writes its compiled artifact.
func (c *Compiler) Compile(path string) error {
	source, err := c.files.Get(path)
	if err != nil {
		return viewerrors.NewIOError(viewerrors.ErrCodeFileRead, "cannot read template", err).
			WithLocation(path, 0)
	}

	compiled, err := c.compile(path, string(source))
	if err != nil {
		return err
	}

	if err := c.files.Put(c.CompiledPath(path), []byte(compiled)); err != nil {
		return viewerrors.NewIOError(viewerrors.ErrCodeCacheWrite, "cannot write compiled template", err).
			WithLocation(path, 0)
	}
	return nil
}

// CompileString translates directive source without touching the cache.
func (c *Compiler) CompileString(source string) (string, error) {
	return c.compile("", source)
}

// Extend registers a pre-compiler that rewrites raw source before directives
// are translated. Pre-compilers run in registration order.
func (c *Compiler) Extend(fn func(string) string) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extensions = append(c.extensions, fn)
}

// Directive registers a custom @name directive. Built-in directives cannot
// be replaced.
func (c *Compiler) Directive(name string, handler DirectiveHandler) error {
	if !directiveName.MatchString(name) {
		return fmt.Errorf("compiler: invalid directive name %q", name)
	}
	if _, builtin := builtinDirectives[name]; builtin {
		return fmt.Errorf("compiler: directive %q is built in", name)
	}
	if handler == nil {
		return fmt.Errorf("compiler: directive %q has no handler", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.directives[name] = handler
	return nil
}

// Clear deletes every compiled artifact and returns how many were removed.
func (c *Compiler) Clear() (int, error) {
	if !c.files.IsDirectory(c.cachePath) {
		return 0, nil
	}

	files, err := c.files.Files(c.cachePath)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, file := range files {
		if filepath.Ext(file) != CompiledExtension {
			continue
		}
		if err := c.files.Delete(file); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ExtendsOf returns the parent layout named by compiled source, if any.
func ExtendsOf(compiled string) (string, bool) {
	if !strings.HasPrefix(compiled, extendsPrefix) {
		return "", false
	}
	end := strings.Index(compiled, extendsSuffix)
	if end < 0 {
		return "", false
	}
	name, err := strconv.Unquote(compiled[len(extendsPrefix):end])
	if err != nil {
		return "", false
	}
	return name, true
}

func (c *Compiler) compile(path, source string) (string, error) {
	c.mu.RLock()
	extensions := append([]func(string) string(nil), c.extensions...)
	directives := make(map[string]DirectiveHandler, len(c.directives))
	for name, handler := range c.directives {
		directives[name] = handler
	}
	c.mu.RUnlock()

	for _, extension := range extensions {
		source = extension(source)
	}

	s := &scanner{
		path:       path,
		src:        source,
		line:       1,
		directives: directives,
	}
	return s.run()
}

var directiveName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
