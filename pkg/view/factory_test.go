package view

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bladekit/pkg/di"
	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
	"github.com/conneroisu/bladekit/pkg/events"
	"github.com/conneroisu/bladekit/pkg/filesystem"
	"github.com/conneroisu/bladekit/pkg/view/compiler"
	"github.com/conneroisu/bladekit/pkg/view/engines"
)

func newTestFactory(t *testing.T, files map[string]string) *Factory {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, contents := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0o644))
	}
	store := filesystem.New(fs)

	resolver := engines.NewResolver()
	factory := NewFactory(resolver, NewFileViewFinder(store, []string{"/views"}, nil), events.NewDispatcher())
	resolver.Register(EnginePlain, func() engines.Engine { return engines.NewPlainEngine(store, factory) })
	resolver.Register(EngineFile, func() engines.Engine { return engines.NewFileEngine(store) })
	resolver.Register(EngineCompiled, func() engines.Engine {
		return engines.NewCompilerEngine(compiler.New(store, "/cache"), store, factory)
	})
	return factory
}

func TestFactory_MakeAndRender(t *testing.T) {
	factory := newTestFactory(t, map[string]string{
		"/views/users/show.blade.html": "@if(.Admin)Admin @endif{{ .Name }}",
		"/views/style.css":             "a{}",
	})

	v, err := factory.Make("users/show", map[string]any{"Name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "users.show", v.Name())
	assert.Equal(t, "/views/users/show.blade.html", v.Path())

	out, err := v.With("Admin", true).Render()
	require.NoError(t, err)
	assert.Equal(t, "Admin Ada", out)

	out, err = factory.Render("style", nil)
	require.NoError(t, err)
	assert.Equal(t, "a{}", out)

	assert.True(t, factory.Exists("users.show"))
	assert.False(t, factory.Exists("users.edit"))
}

func TestFactory_MissingView(t *testing.T) {
	factory := newTestFactory(t, nil)

	_, err := factory.Make("nope", nil)
	assert.True(t, viewerrors.IsNotFound(err))
}

func TestFactory_File(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/elsewhere/page.html": "<p>{{ .X }}</p>"})

	v, err := factory.File("/elsewhere/page.html", map[string]any{"X": 1})
	require.NoError(t, err)
	out, err := v.Render()
	require.NoError(t, err)
	assert.Equal(t, "<p>1</p>", out)

	_, err = factory.File("/elsewhere/page.haml", nil)
	var ve *viewerrors.ViewError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, viewerrors.ErrCodeExtensionUnknown, ve.Code)
}

func TestFactory_SharedData(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/views/greet.html": "{{ .Greeting }} {{ .Name }}"})

	factory.Share("Greeting", "Hello")
	factory.Share("Name", "World")

	out, err := factory.Render("greet", map[string]any{"Name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", out)

	assert.Equal(t, "Hello", factory.Shared("Greeting", nil))
	assert.Equal(t, "fallback", factory.Shared("Missing", "fallback"))
	assert.Equal(t, map[string]any{"Greeting": "Hello", "Name": "World"}, factory.GetShared())
}

func TestFactory_ComposersAndCreators(t *testing.T) {
	factory := newTestFactory(t, map[string]string{
		"/views/admin/dash.html":  "{{ .Title }}|{{ .Created }}",
		"/views/admin/users.html": "{{ .Title }}",
	})

	var order []string
	factory.Creator("admin.dash", func(v *View) error {
		order = append(order, "create:"+v.Name())
		v.With("Created", true)
		return nil
	})
	factory.Composer("admin.*", func(v *View) error {
		order = append(order, "compose:"+v.Name())
		v.With("Title", "Admin")
		return nil
	})

	v, err := factory.Make("admin.dash", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"create:admin.dash"}, order)

	out, err := v.Render()
	require.NoError(t, err)
	assert.Equal(t, "Admin|true", out)
	assert.Equal(t, []string{"create:admin.dash", "compose:admin.dash"}, order)

	out, err = factory.Render("admin.users", nil)
	require.NoError(t, err)
	assert.Equal(t, "Admin", out)
}

func TestFactory_ComposerErrorStopsRender(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/views/home.html": "home"})
	boom := errors.New("boom")
	factory.Composer("home", func(*View) error { return boom })

	_, err := factory.Render("home", nil)
	assert.ErrorIs(t, err, boom)
}

type titleComposer struct{ title string }

func (c titleComposer) Compose(v *View) error {
	v.With("Title", c.title)
	return nil
}

func TestFactory_ComposerFromContainer(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/views/page.html": "{{ .Title }}"})
	factory.ComposerFromContainer("page", "composers.title")

	_, err := factory.Render("page", nil)
	require.Error(t, err, "no container set")

	container := di.NewServiceContainer()
	container.RegisterInstance("composers.title", titleComposer{title: "From container"})
	factory.SetContainer(container)
	assert.Same(t, container, factory.GetContainer())

	out, err := factory.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "From container", out)
}

func TestFactory_ComposerFromContainerTransient(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/views/page.html": "{{ .Title }}"})
	container := di.NewServiceContainer()
	factory.SetContainer(container)
	factory.ComposerFromContainer("page", "composers.counter")

	_, err := factory.Render("page", nil)
	assert.ErrorContains(t, err, "composers.counter is not registered")

	builds := 0
	container.Register("composers.counter", func(di.DependencyResolver) (interface{}, error) {
		builds++
		n := builds
		return ComposerFunc(func(v *View) error {
			v.With("Title", fmt.Sprintf("build %d", n))
			return nil
		}), nil
	})

	first, err := factory.Render("page", nil)
	require.NoError(t, err)
	second, err := factory.Render("page", nil)
	require.NoError(t, err)

	assert.Equal(t, "build 1", first)
	assert.Equal(t, "build 2", second)
}

func TestFactory_AddExtension(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/views/notes.md": "# {{ .X }}"})
	store := factory.GetFinder().(*FileViewFinder).Filesystem()

	factory.AddExtension("md", "markdown", func() engines.Engine { return engines.NewFileEngine(store) })
	assert.Equal(t, "markdown", factory.GetExtensions()["md"])

	out, err := factory.Render("notes", nil)
	require.NoError(t, err)
	assert.Equal(t, "# {{ .X }}", out)

	engine, err := factory.GetEngineFromPath("/views/notes.md")
	require.NoError(t, err)
	again, err := factory.GetEngineFromPath("/x/other.md")
	require.NoError(t, err)
	assert.Same(t, engine, again)
}

func TestFactory_GetEngineFromPathPrefersLongestDefault(t *testing.T) {
	factory := newTestFactory(t, nil)

	compiled, err := factory.GetEngineFromPath("/views/a.blade.html")
	require.NoError(t, err)
	assert.IsType(t, &engines.CompilerEngine{}, compiled)

	plain, err := factory.GetEngineFromPath("/views/a.html")
	require.NoError(t, err)
	assert.IsType(t, &engines.PlainEngine{}, plain)

	file, err := factory.GetEngineFromPath("/views/a.txt")
	require.NoError(t, err)
	assert.IsType(t, &engines.FileEngine{}, file)
}

func TestFactory_NamespacesAndLocations(t *testing.T) {
	factory := newTestFactory(t, map[string]string{
		"/mail/welcome.html": "welcome {{ .Name }}",
		"/more/extra.txt":    "extra",
	})

	factory.AddNamespace("mail", "/mail")
	out, err := factory.Render("mail::welcome", map[string]any{"Name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "welcome Ada", out)

	assert.False(t, factory.Exists("extra"))
	factory.AddLocation("/more")
	factory.FlushFinderCache()
	assert.True(t, factory.Exists("extra"))
}

func TestFactory_IncludesAndLayouts(t *testing.T) {
	factory := newTestFactory(t, map[string]string{
		"/views/layouts/app.blade.html": "<body>@yield('content')</body>",
		"/views/partials/item.html":     "<li>{{ .item }}</li>",
		"/views/list.blade.html": "@extends('layouts.app')\n@section('content')" +
			"@foreach(.Items as $i)@include('partials.item', dict \"item\" $i)@endforeach\n@endsection",
	})

	out, err := factory.Render("list", map[string]any{"Items": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "<body><li>a</li><li>b</li>\n</body>", out)
}

func TestFactory_Macros(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/views/home.html": "home"})

	assert.False(t, factory.HasMacro("shout"))
	factory.Macro("shout", func(f *Factory, args ...any) (any, error) {
		out, err := f.Render(args[0].(string), nil)
		return out + "!", err
	})
	assert.True(t, factory.HasMacro("shout"))

	result, err := factory.Call("shout", "home")
	require.NoError(t, err)
	assert.Equal(t, "home!", result)
}

func TestFactory_CallForwardsToMethods(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/views/home.html": "hi {{ .N }}"})

	_, err := factory.Call("Share", "N", 3)
	require.NoError(t, err)

	exists, err := factory.Call("Exists", "home")
	require.NoError(t, err)
	assert.Equal(t, true, exists)

	out, err := factory.Call("Render", "home", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi 3", out)

	_, err = factory.Call("Render", "missing", nil)
	assert.True(t, viewerrors.IsNotFound(err))

	_, err = factory.Call("AddNamespace", "mail", "/a", "/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, factory.GetFinder().(*FileViewFinder).Hints()["mail"])
}

func TestFactory_CallUnknownMethod(t *testing.T) {
	factory := newTestFactory(t, nil)

	result, err := factory.Call("doesNotExist", 1)
	assert.Nil(t, result)
	assert.True(t, viewerrors.IsBadMethod(err))
	assert.ErrorIs(t, err, viewerrors.ErrBadMethod("doesNotExist"))

	_, err = factory.Call("Exists")
	var ve *viewerrors.ViewError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, viewerrors.ErrCodeBadArguments, ve.Code)

	_, err = factory.Call("Exists", 42)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, viewerrors.ErrCodeBadArguments, ve.Code)
}

func TestView_DataIsCopied(t *testing.T) {
	factory := newTestFactory(t, map[string]string{"/views/home.html": "home"})
	input := map[string]any{"a": 1}

	v, err := factory.Make("home", input)
	require.NoError(t, err)
	v.WithData(map[string]any{"b": 2})
	input["c"] = 3

	assert.Equal(t, map[string]any{"a": 1, "b": 2}, v.Data())
	assert.Same(t, factory, v.Factory())
}
