// Package docs is the overview documentation for bladekit, a view rendering
// toolkit built on Go's html/template.
//
// bladekit resolves view names to files, picks an engine by file extension
// and renders the result. Directive templates (.blade.html) are compiled to
// html/template source once and cached on disk.
//
// # Quick Start
//
//	// List every view under ./views
//	bladekit list
//
//	// Render a view with data from a YAML file
//	bladekit render users.profile --data user.yaml
//
//	// Precompile directive templates
//	bladekit compile
//
//	// Preview views in the browser with live reload
//	bladekit serve
//
// # Library use
//
//	views := blade.New([]string{"./views"}, ".bladekit/cache")
//	views.Share("app", "Acme")
//	views.Composer("users.*", func(v *view.View) error {
//		v.With("now", time.Now())
//		return nil
//	})
//	html, err := views.Render("users.index", map[string]any{"users": users})
//
// # Architecture
//
//   - Bootstrap (pkg/blade): wires the services below and exposes the factory
//   - View factory (pkg/view): names, shared data, composers, macros
//   - Finder (pkg/view): dot notation, namespaces, extension search order
//   - Engines (pkg/view/engines): plain, compiled, file and django
//   - Compiler (pkg/view/compiler): directive translation and disk cache
//   - Events (pkg/events): creating/composing events with wildcards
//   - Container (pkg/di): named services the bootstrap publishes
//
// # Directives
//
//	{{ .Name }}              escaped echo
//	{!! .Body !!}            raw echo
//	{{-- note --}}           comment
//	@if(.X) @elseif(.Y) @else @endif
//	@unless(.X) @endunless
//	@foreach(.Items as $i => $item) @empty @endforeach
//	@extends('layouts.main') @section('body') @endsection @yield('body')
//	@include('partials.nav', dict "active" "home")
//
// # Configuration
//
// The CLI reads .bladekit.yml, BLADEKIT_* environment variables and flags:
//
//	views:
//	  paths:
//	    - ./views
//	  cache_dir: .bladekit/cache
//	  django: false
//	server:
//	  host: localhost
//	  port: 8080
//	watch:
//	  debounce: 300ms
//	log:
//	  level: info
//	  format: text
package docs
