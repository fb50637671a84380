package callback

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/protocol"
)

type fakeSubscriber struct {
	registrations map[protocol.CallbackID]int
	handlers      map[protocol.CallbackID]protocol.CallbackHandler
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		registrations: make(map[protocol.CallbackID]int),
		handlers:      make(map[protocol.CallbackID]protocol.CallbackHandler),
	}
}

func (f *fakeSubscriber) RegisterCallback(id protocol.CallbackID, fn protocol.CallbackHandler) {
	f.registrations[id]++
	f.handlers[id] = fn
}

func newTestRegistry() (*Registry, *fakeSubscriber) {
	sub := newFakeSubscriber()
	return NewRegistry(sub, zerolog.Nop()), sub
}

func TestRegistryFansOutToAllListeners(t *testing.T) {
	r, sub := newTestRegistry()

	var first, second []interface{}
	r.Add(protocol.CallbackAsyncFileRead, NewToken(), func(args ...interface{}) { first = args })
	r.Add(protocol.CallbackAsyncFileRead, NewToken(), func(args ...interface{}) { second = args })

	sub.handlers[protocol.CallbackAsyncFileRead](protocol.ObjectID(7), uint8(3))

	require.Len(t, first, 2)
	assert.Equal(t, protocol.ObjectID(7), first[0])
	assert.Equal(t, first, second)
}

func TestRegistryRegistersTrampolineOnce(t *testing.T) {
	r, sub := newTestRegistry()

	r.Add(protocol.CallbackAsyncFileWrite, NewToken(), func(...interface{}) {})
	r.Add(protocol.CallbackAsyncFileWrite, NewToken(), func(...interface{}) {})
	r.Add(protocol.CallbackAsyncFileRead, NewToken(), func(...interface{}) {})

	assert.Equal(t, 1, sub.registrations[protocol.CallbackAsyncFileWrite])
	assert.Equal(t, 1, sub.registrations[protocol.CallbackAsyncFileRead])
}

func TestRegistrySkipsAndPrunesRevokedListeners(t *testing.T) {
	r, _ := newTestRegistry()

	calls := 0
	token := NewToken()
	r.Add(protocol.CallbackProcessStateChanged, token, func(...interface{}) { calls++ })

	r.Dispatch(protocol.CallbackProcessStateChanged)
	require.Equal(t, 1, calls)

	token.Revoke()

	r.Dispatch(protocol.CallbackProcessStateChanged)
	r.Dispatch(protocol.CallbackProcessStateChanged)
	assert.Equal(t, 1, calls)
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry()

	calls := 0
	cookie := r.Add(protocol.CallbackProcessStateChanged, NewToken(), func(...interface{}) { calls++ })

	r.Remove(protocol.CallbackProcessStateChanged, cookie)
	r.Remove(protocol.CallbackProcessStateChanged, cookie)
	r.Remove(protocol.CallbackAsyncFileRead, cookie)

	r.Dispatch(protocol.CallbackProcessStateChanged)
	assert.Zero(t, calls)
}

func TestRegistryListenerMayRemoveItselfDuringDispatch(t *testing.T) {
	r, _ := newTestRegistry()

	calls := 0
	var cookie Cookie
	cookie = r.Add(protocol.CallbackProcessStateChanged, NewToken(), func(...interface{}) {
		calls++
		r.Remove(protocol.CallbackProcessStateChanged, cookie)
	})

	r.Dispatch(protocol.CallbackProcessStateChanged)
	r.Dispatch(protocol.CallbackProcessStateChanged)

	assert.Equal(t, 1, calls)
}

func TestRegistryIsolatesPanickingListener(t *testing.T) {
	r, _ := newTestRegistry()

	calls := 0
	r.Add(protocol.CallbackProcessStateChanged, NewToken(), func(...interface{}) { panic("listener failure") })
	r.Add(protocol.CallbackProcessStateChanged, NewToken(), func(...interface{}) { calls++ })

	require.NotPanics(t, func() {
		r.Dispatch(protocol.CallbackProcessStateChanged)
	})
	assert.Equal(t, 1, calls)
}

func TestRegistryRemoveAllClearsEveryEventKind(t *testing.T) {
	r, _ := newTestRegistry()

	calls := 0
	r.Add(protocol.CallbackAsyncFileRead, NewToken(), func(...interface{}) { calls++ })
	r.Add(protocol.CallbackProcessStateChanged, NewToken(), func(...interface{}) { calls++ })

	r.RemoveAll()

	r.Dispatch(protocol.CallbackAsyncFileRead)
	r.Dispatch(protocol.CallbackProcessStateChanged)
	assert.Zero(t, calls)
}
