// Package filesystem is the file access service shared by the view finder,
// the compiler and the engines.
package filesystem

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/afero"
)

// Filesystem wraps an afero.Fs with the handful of helpers views need.
type Filesystem struct {
	fs afero.Fs
}

// New wraps fs; a nil fs selects the operating system filesystem.
func New(fs afero.Fs) *Filesystem {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Filesystem{fs: fs}
}

// Fs returns the underlying afero filesystem.
func (f *Filesystem) Fs() afero.Fs {
	return f.fs
}

// Exists reports whether path exists.
func (f *Filesystem) Exists(path string) bool {
	ok, err := afero.Exists(f.fs, path)
	return err == nil && ok
}

// IsFile reports whether path exists and is not a directory.
func (f *Filesystem) IsFile(path string) bool {
	info, err := f.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// IsDirectory reports whether path is a directory.
func (f *Filesystem) IsDirectory(path string) bool {
	ok, err := afero.IsDir(f.fs, path)
	return err == nil && ok
}

// Get reads the whole file.
func (f *Filesystem) Get(path string) ([]byte, error) {
	return afero.ReadFile(f.fs, path)
}

// Put writes contents to path, creating parent directories. Writes to the
// OS filesystem go through a temp file and rename so readers never see a
// partially written file.
func (f *Filesystem) Put(path string, contents []byte) error {
	if err := f.MakeDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	if _, ok := f.fs.(*afero.OsFs); ok {
		return atomic.WriteFile(path, bytes.NewReader(contents))
	}
	return afero.WriteFile(f.fs, path, contents, 0o644)
}

// LastModified returns the modification time of path.
func (f *Filesystem) LastModified(path string) (time.Time, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// MakeDirectory creates path and any missing parents.
func (f *Filesystem) MakeDirectory(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return f.fs.MkdirAll(path, 0o755)
}

// Delete removes the given files, ignoring ones that do not exist.
func (f *Filesystem) Delete(paths ...string) error {
	for _, path := range paths {
		if err := f.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Files lists the regular files directly inside dir, sorted.
func (f *Filesystem) Files(dir string) ([]string, error) {
	entries, err := afero.ReadDir(f.fs, dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// AllFiles lists every regular file below dir, sorted.
func (f *Filesystem) AllFiles(dir string) ([]string, error) {
	var files []string
	err := afero.Walk(f.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
