package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
)

func TestDispatcher_ExactAndWildcardOrder(t *testing.T) {
	d := NewDispatcher()

	var calls []string
	d.Listen(func(event string, payload interface{}) error {
		calls = append(calls, "wildcard:"+event)
		return nil
	}, "composing: users.*")
	d.Listen(func(event string, payload interface{}) error {
		calls = append(calls, "exact:"+event)
		return nil
	}, "composing: users.index")

	require.NoError(t, d.Dispatch("composing: users.index", nil))
	assert.Equal(t, []string{
		"exact:composing: users.index",
		"wildcard:composing: users.index",
	}, calls)
}

func TestDispatcher_WildcardDoesNotOvermatch(t *testing.T) {
	d := NewDispatcher()
	d.Listen(func(string, interface{}) error { return nil }, "creating: admin.*")

	assert.True(t, d.HasListeners("creating: admin.dashboard"))
	assert.False(t, d.HasListeners("creating: users.admin.x"))
	assert.False(t, d.HasListeners("composing: admin.dashboard"))
}

func TestDispatcher_MultipleEventsOneListener(t *testing.T) {
	d := NewDispatcher()
	count := 0
	d.Listen(func(string, interface{}) error {
		count++
		return nil
	}, "a", "b")

	require.NoError(t, d.Dispatch("a", nil))
	require.NoError(t, d.Dispatch("b", nil))
	require.NoError(t, d.Dispatch("c", nil))
	assert.Equal(t, 2, count)
}

func TestDispatcher_StopsOnError(t *testing.T) {
	d := NewDispatcher()
	cause := errors.New("denied")
	secondCalled := false

	d.Listen(func(string, interface{}) error { return cause }, "creating: home")
	d.Listen(func(string, interface{}) error {
		secondCalled = true
		return nil
	}, "creating: home")

	err := d.Dispatch("creating: home", "payload")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	var ve *viewerrors.ViewError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, viewerrors.ErrCodeListenerFailed, ve.Code)
	assert.False(t, secondCalled)
}

func TestDispatcher_PayloadPassedThrough(t *testing.T) {
	d := NewDispatcher()
	var got interface{}
	d.Listen(func(_ string, payload interface{}) error {
		got = payload
		return nil
	}, "saved")

	require.NoError(t, d.Dispatch("saved", 42))
	assert.Equal(t, 42, got)
}

func TestDispatcher_Forget(t *testing.T) {
	d := NewDispatcher()
	noop := func(string, interface{}) error { return nil }
	d.Listen(noop, "composing: home", "composing: *")

	d.Forget("composing: home")
	assert.True(t, d.HasListeners("composing: home"))

	d.Forget("composing: *")
	assert.False(t, d.HasListeners("composing: home"))
}

func TestDispatcher_NilListenerIgnored(t *testing.T) {
	d := NewDispatcher()
	d.Listen(nil, "x")
	assert.False(t, d.HasListeners("x"))
}
