// Package internal holds the bladekit command-line plumbing that is not part
// of the public view API.
//
// # Package Organization
//
//   - config: Viper-backed settings with validation
//   - logging: slog-based structured logger
//   - server: preview server with websocket live reload
//   - watcher: debounced fsnotify watcher
//   - version: build information
//
// Of these, pkg/ imports only logging; the cmd package wires the rest
// together.
package internal
