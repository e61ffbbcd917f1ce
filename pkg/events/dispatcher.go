// Package events provides the named-event dispatcher the view factory uses
// to announce view creation and composition.
package events

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
)

// Listener handles a dispatched event. The event argument is the concrete
// event name, which matters for wildcard listeners.
type Listener func(event string, payload interface{}) error

type wildcardListener struct {
	pattern  string
	matcher  *regexp.Regexp
	listener Listener
}

// Dispatcher routes events to listeners registered by exact name or by a
// pattern containing '*'.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	wildcards []wildcardListener
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[string][]Listener),
	}
}

// Listen registers listener for one or more event names or patterns.
func (d *Dispatcher) Listen(listener Listener, events ...string) {
	if listener == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, event := range events {
		if strings.Contains(event, "*") {
			d.wildcards = append(d.wildcards, wildcardListener{
				pattern:  event,
				matcher:  compileWildcard(event),
				listener: listener,
			})
			continue
		}
		d.listeners[event] = append(d.listeners[event], listener)
	}
}

// HasListeners reports whether anything would receive event.
func (d *Dispatcher) HasListeners(event string) bool {
	return len(d.GetListeners(event)) > 0
}

// GetListeners returns the exact listeners for event followed by matching
// wildcard listeners.
func (d *Dispatcher) GetListeners(event string) []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()

	listeners := make([]Listener, 0, len(d.listeners[event]))
	listeners = append(listeners, d.listeners[event]...)
	for _, wildcard := range d.wildcards {
		if wildcard.matcher.MatchString(event) {
			listeners = append(listeners, wildcard.listener)
		}
	}
	return listeners
}

// Dispatch calls every listener for event in order and stops at the first
// error.
func (d *Dispatcher) Dispatch(event string, payload interface{}) error {
	for _, listener := range d.GetListeners(event) {
		if err := listener(event, payload); err != nil {
			return viewerrors.NewInternalError(
				viewerrors.ErrCodeListenerFailed,
				fmt.Sprintf("listener for %q failed", event),
				err,
			)
		}
	}
	return nil
}

// Forget removes every listener registered under the exact name or pattern.
func (d *Dispatcher) Forget(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.listeners, event)

	kept := d.wildcards[:0]
	for _, wildcard := range d.wildcards {
		if wildcard.pattern != event {
			kept = append(kept, wildcard)
		}
	}
	d.wildcards = kept
}

func compileWildcard(pattern string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(pattern)
	return regexp.MustCompile("^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$")
}
