package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/bladekit/internal/logging"
	"github.com/conneroisu/bladekit/internal/watcher"
	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
)

// setupViews writes files below a temporary views directory and points the
// global viper instance at it.
func setupViews(t *testing.T, files map[string]string) (viewsDir, cacheDir string) {
	t.Helper()

	root := t.TempDir()
	viewsDir = filepath.Join(root, "views")
	cacheDir = filepath.Join(root, "cache")
	for name, contents := range files {
		path := filepath.Join(viewsDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("views.paths", []string{viewsDir})
	viper.Set("views.cache_dir", cacheDir)
	viper.Set("log.level", "error")
	return viewsDir, cacheDir
}

func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderCommand(t *testing.T) {
	viewsDir, _ := setupViews(t, map[string]string{
		"hello.html":               "<p>{{ .name }}</p>",
		"users/list.blade.html":    "@foreach(.users as $u)<li>{{ $u }}</li>@endforeach",
		"users/profile.blade.html": "{{ .user.name }} ({{ .user.role }})",
		"plain.txt":                "{{ not parsed }}",
	})

	t.Run("set values", func(t *testing.T) {
		out, err := execute(t, newRenderCmd(), "", "hello", "--set", "name=Ada")
		require.NoError(t, err)
		assert.Equal(t, "<p>Ada</p>", out)
	})

	t.Run("nested set values", func(t *testing.T) {
		out, err := execute(t, newRenderCmd(), "", "users.profile", "--set", "user.name=Ada", "--set", "user.role=admin")
		require.NoError(t, err)
		assert.Equal(t, "Ada (admin)", out)
	})

	t.Run("yaml data", func(t *testing.T) {
		dataFile := filepath.Join(viewsDir, "..", "data.yaml")
		require.NoError(t, os.WriteFile(dataFile, []byte("users:\n  - ada\n  - grace\n"), 0o644))

		out, err := execute(t, newRenderCmd(), "", "users.list", "--data", dataFile)
		require.NoError(t, err)
		assert.Equal(t, "<li>ada</li><li>grace</li>", out)
	})

	t.Run("toml data", func(t *testing.T) {
		dataFile := filepath.Join(viewsDir, "..", "data.toml")
		require.NoError(t, os.WriteFile(dataFile, []byte("name = \"Grace\"\n"), 0o644))

		out, err := execute(t, newRenderCmd(), "", "hello", "--data", dataFile)
		require.NoError(t, err)
		assert.Equal(t, "<p>Grace</p>", out)
	})

	t.Run("json on stdin", func(t *testing.T) {
		out, err := execute(t, newRenderCmd(), `{"users":["x","y"]}`, "users/list", "--data", "-")
		require.NoError(t, err)
		assert.Equal(t, "<li>x</li><li>y</li>", out)
	})

	t.Run("file engine", func(t *testing.T) {
		out, err := execute(t, newRenderCmd(), "", "plain")
		require.NoError(t, err)
		assert.Equal(t, "{{ not parsed }}", out)
	})

	t.Run("missing view", func(t *testing.T) {
		_, err := execute(t, newRenderCmd(), "", "nope")
		require.Error(t, err)
		assert.True(t, viewerrors.IsNotFound(err))
	})

	t.Run("bad set", func(t *testing.T) {
		_, err := execute(t, newRenderCmd(), "", "hello", "--set", "novalue")
		assert.ErrorContains(t, err, "expected key=value")
	})

	t.Run("requires a view", func(t *testing.T) {
		_, err := execute(t, newRenderCmd(), "")
		assert.Error(t, err)
	})
}

func TestLoadData(t *testing.T) {
	dir := t.TempDir()
	write := func(name, contents string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
		return path
	}

	tests := []struct {
		name    string
		path    string
		want    map[string]any
		wantErr string
	}{
		{name: "empty path", path: "", want: map[string]any{}},
		{name: "json", path: write("d.json", `{"a":"b"}`), want: map[string]any{"a": "b"}},
		{name: "yml", path: write("d.yml", "a: b\n"), want: map[string]any{"a": "b"}},
		{name: "toml", path: write("d.toml", "a = \"b\"\n"), want: map[string]any{"a": "b"}},
		{name: "unsupported", path: write("d.ini", "a=b"), wantErr: "unsupported data file format"},
		{name: "invalid json", path: write("bad.json", "{"), wantErr: "failed to parse data file"},
		{name: "missing", path: filepath.Join(dir, "missing.json"), wantErr: "failed to read data file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadData(tt.path, strings.NewReader(""))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplySets(t *testing.T) {
	data := map[string]any{"user": "flat"}
	require.NoError(t, applySets(data, []string{"a=1", "user.name=Ada", "b=x=y"}))

	assert.Equal(t, map[string]any{
		"a":    "1",
		"b":    "x=y",
		"user": map[string]any{"name": "Ada"},
	}, data)

	assert.Error(t, applySets(data, []string{"=v"}))
}

func TestCompileAndClearCommands(t *testing.T) {
	_, cacheDir := setupViews(t, map[string]string{
		"home.blade.html":         "@if(.ok)yes@endif",
		"partials/nav.blade.html": "<nav></nav>",
		"static.html":             "not compiled",
	})

	out, err := execute(t, newCompileCmd(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "Compiled 2 templates (0 up to date)")

	compiled, err := filepath.Glob(filepath.Join(cacheDir, "*.tmpl"))
	require.NoError(t, err)
	assert.Len(t, compiled, 2)

	out, err = execute(t, newCompileCmd(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "Compiled 0 templates (2 up to date)")

	out, err = execute(t, newCompileCmd(), "", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Compiled 2 templates (0 up to date)")

	out, err = execute(t, newClearCmd(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 compiled templates")

	compiled, err = filepath.Glob(filepath.Join(cacheDir, "*.tmpl"))
	require.NoError(t, err)
	assert.Empty(t, compiled)
}

func TestCompileCommand_ReportsErrors(t *testing.T) {
	setupViews(t, map[string]string{"broken.blade.html": "@if(.x)never closed"})

	_, err := execute(t, newCompileCmd(), "")
	require.Error(t, err)
	assert.True(t, viewerrors.IsCompileError(err))
}

func TestListCommand(t *testing.T) {
	viewsDir, _ := setupViews(t, map[string]string{
		"home.blade.html":  "home",
		"users/index.html": "users",
		"site.css":         "body{}",
	})

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, newListCmd(), "")
		require.NoError(t, err)
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "users.index")
		assert.Contains(t, out, "Total views: 3")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, newListCmd(), "", "--format", "json")
		require.NoError(t, err)

		var entries []viewEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		assert.Equal(t, []viewEntry{
			{Name: "home", Path: filepath.Join(viewsDir, "home.blade.html"), Engine: "compiled"},
			{Name: "site", Path: filepath.Join(viewsDir, "site.css"), Engine: "file"},
			{Name: "users.index", Path: filepath.Join(viewsDir, "users", "index.html"), Engine: "plain"},
		}, entries)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, newListCmd(), "", "--format", "yaml")
		require.NoError(t, err)

		var entries []viewEntry
		require.NoError(t, yaml.Unmarshal([]byte(out), &entries))
		assert.Len(t, entries, 3)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := execute(t, newListCmd(), "", "--format", "xml")
		assert.ErrorContains(t, err, "invalid format")
	})
}

func TestListCommand_Empty(t *testing.T) {
	setupViews(t, nil)

	out, err := execute(t, newListCmd(), "")
	require.NoError(t, err)
	assert.Equal(t, "No views found\n", out)
}

func TestRecompile(t *testing.T) {
	viewsDir, _ := setupViews(t, map[string]string{
		"ok.blade.html":     "fine",
		"broken.blade.html": "@if(.x)",
		"plain.html":        "plain",
	})

	cfg, _, err := loadConfig(&cobra.Command{})
	require.NoError(t, err)
	views := newViews(cfg, logging.Nop())

	var out bytes.Buffer
	err = recompile(context.Background(), views, logging.Nop(), &out, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: filepath.Join(viewsDir, "ok.blade.html")},
		{Type: watcher.EventTypeModified, Path: filepath.Join(viewsDir, "broken.blade.html")},
		{Type: watcher.EventTypeModified, Path: filepath.Join(viewsDir, "plain.html")},
		{Type: watcher.EventTypeDeleted, Path: filepath.Join(viewsDir, "gone.blade.html")},
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "compiled "+filepath.Join(viewsDir, "ok.blade.html"))
	assert.Contains(t, out.String(), "error "+filepath.Join(viewsDir, "broken.blade.html"))
	assert.NotContains(t, out.String(), "plain.html")
	assert.NotContains(t, out.String(), "gone")
	assert.False(t, views.Compiler().IsExpired(filepath.Join(viewsDir, "ok.blade.html")))
}

func TestRecompile_FlushesFinderOnCreate(t *testing.T) {
	viewsDir, _ := setupViews(t, nil)

	cfg, _, err := loadConfig(&cobra.Command{})
	require.NoError(t, err)
	views := newViews(cfg, logging.Nop())

	assert.False(t, views.Exists("late"))

	path := filepath.Join(viewsDir, "late.html")
	require.NoError(t, os.WriteFile(path, []byte("late"), 0o644))
	require.NoError(t, recompile(context.Background(), views, logging.Nop(), io.Discard, []watcher.ChangeEvent{
		{Type: watcher.EventTypeCreated, Path: path},
	}))

	assert.True(t, views.Exists("late"))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, newVersionCmd(), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "bladekit "))

	out, err = execute(t, newVersionCmd(), "", "--format", "json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	_, err = execute(t, newVersionCmd(), "", "--format", "xml")
	assert.Error(t, err)
}

func TestFlagValidators(t *testing.T) {
	assert.NoError(t, ValidatePort("8080"))
	assert.NoError(t, ValidatePort("0"))
	assert.Error(t, ValidatePort("65536"))
	assert.Error(t, ValidatePort("http"))

	assert.NoError(t, ValidateFormat("json", []string{"text", "json"}))
	assert.ErrorContains(t, ValidateFormat("xml", []string{"text", "json"}), "text, json")
}

func TestServeCommand_RejectsBadPort(t *testing.T) {
	setupViews(t, nil)

	_, err := execute(t, newServeCmd(), "", "--port", "70000")
	assert.ErrorContains(t, err, "port must be between")
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	var names []string
	for _, sub := range rootCmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"render", "compile", "clear", "list", "watch", "serve", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestLoadConfig_LogsWarnings(t *testing.T) {
	viewsDir, _ := setupViews(t, map[string]string{"home.html": "home"})
	missing := filepath.Join(viewsDir, "..", "absent")
	viper.Set("views.paths", []string{viewsDir, missing})
	viper.Set("log.level", "warn")

	var stderr bytes.Buffer
	cmd := newListCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(&stderr)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stderr.String(), "does not exist")
	assert.Contains(t, stderr.String(), "views.paths")
}

func TestLoadConfig_RejectsInvalidConfig(t *testing.T) {
	setupViews(t, nil)
	viper.Set("log.format", "xml")

	_, _, err := loadConfig(&cobra.Command{})
	assert.ErrorContains(t, err, "log")
}

func TestReportError(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("log.level", "error")

	var out bytes.Buffer
	reportError(context.Background(), &out, viewerrors.ErrViewNotFound("missing.page"))
	assert.Contains(t, out.String(), "Lookup failed")
	assert.Contains(t, out.String(), viewerrors.ErrCodeViewNotFound)

	out.Reset()
	reportError(context.Background(), &out, errors.New("boom"))
	assert.Contains(t, out.String(), "Unhandled error occurred")
	assert.Contains(t, out.String(), "boom")
}

func TestCompileAll_TimesOperation(t *testing.T) {
	setupViews(t, map[string]string{"home.blade.html": "home"})

	cfg, _, err := loadConfig(&cobra.Command{})
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := newLogger("debug", "text", &logs)
	compiled, skipped, err := compileAll(context.Background(), newViews(cfg, logging.Nop()), logger, false)
	require.NoError(t, err)
	assert.Equal(t, 1, compiled)
	assert.Equal(t, 0, skipped)

	assert.Contains(t, logs.String(), "Operation completed")
	assert.Contains(t, logs.String(), "operation=compile")
}

type stopRecorder struct {
	stopped bool
}

func (s *stopRecorder) Shutdown(context.Context) error {
	s.stopped = true
	return nil
}

func TestShutdownViews_StopsPublishedServices(t *testing.T) {
	setupViews(t, nil)

	cfg, _, err := loadConfig(&cobra.Command{})
	require.NoError(t, err)
	views := newViews(cfg, logging.Nop())

	recorder := &stopRecorder{}
	views.Container().RegisterInstance(PreviewServerService, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shutdownViews(ctx, views, logging.Nop())

	assert.True(t, recorder.stopped)
	assert.False(t, views.Container().Resolved(PreviewServerService))
}
