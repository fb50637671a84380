// Package callback multiplexes transport push-events to per-object listeners.
//
// The transport delivers each push-event kind (identified by a CallbackID) to
// at most one registered handler. Many handles want to observe the same event
// kind though: every open file listens for async read/write completions, every
// process for state changes. The Registry sits in between: it registers one
// trampoline per event kind at the transport and fans each delivery out to all
// listeners added for that kind.
//
// Listeners are weak: each is paired with a liveness Token owned by the
// listener's handle. Detaching the handle revokes the token, so a dispatch
// after teardown finds the listener dead and prunes it instead of invoking a
// dangling callback. Removal by cookie is idempotent, matching the idempotent
// teardown everywhere else in the runtime.
package callback

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tfchina/brickv/protocol"
)

// Cookie identifies one listener registration. Cookies are unique for the
// lifetime of a Registry and are never reused.
type Cookie uint64

// Token is the liveness marker of a listener. The owning handle revokes it
// during teardown; a revoked listener is skipped and lazily pruned on the next
// dispatch of its event kind.
type Token struct {
	revoked atomic.Bool
}

// NewToken returns a live token.
func NewToken() *Token {
	return &Token{}
}

// Revoke marks the token dead. Safe to call more than once and from any
// goroutine.
func (t *Token) Revoke() {
	t.revoked.Store(true)
}

// Alive reports whether the token has not been revoked.
func (t *Token) Alive() bool {
	return !t.revoked.Load()
}

// Subscriber is the slice of the transport the Registry needs.
type Subscriber interface {
	RegisterCallback(id protocol.CallbackID, fn protocol.CallbackHandler)
}

type entry struct {
	token *Token
	fn    protocol.CallbackHandler
}

// Registry is the per-connection listener table. All methods are safe for
// concurrent use; Dispatch typically runs on the transport's event goroutine
// while Add/Remove run on application goroutines.
type Registry struct {
	mu         sync.Mutex
	transport  Subscriber
	log        zerolog.Logger
	nextCookie Cookie
	active     map[protocol.CallbackID]map[Cookie]entry
}

// NewRegistry creates an empty registry bound to the given transport.
func NewRegistry(transport Subscriber, log zerolog.Logger) *Registry {
	return &Registry{
		transport:  transport,
		log:        log,
		nextCookie: 1,
		active:     make(map[protocol.CallbackID]map[Cookie]entry),
	}
}

// Add registers a listener for the given event kind and returns its cookie.
// The first listener for an event kind registers the dispatch trampoline at
// the transport; later listeners reuse it.
func (r *Registry) Add(id protocol.CallbackID, token *Token, fn protocol.CallbackHandler) Cookie {
	r.mu.Lock()
	defer r.mu.Unlock()

	cookie := r.nextCookie
	r.nextCookie++

	listeners, ok := r.active[id]
	if !ok {
		listeners = make(map[Cookie]entry)
		r.active[id] = listeners

		// Subscribe once per event kind. Removing the last listener does
		// not undo this; the trampoline then dispatches into an empty
		// table, which is a no-op.
		r.transport.RegisterCallback(id, func(args ...interface{}) {
			r.Dispatch(id, args...)
		})
	}

	listeners[cookie] = entry{token: token, fn: fn}

	return cookie
}

// Remove drops the listener registered under cookie. Removing an unknown or
// already-pruned cookie is a no-op.
func (r *Registry) Remove(id protocol.CallbackID, cookie Cookie) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if listeners, ok := r.active[id]; ok {
		delete(listeners, cookie)
	}
}

// RemoveAll clears every listener for every event kind. Used on session
// expiry so no handle retains a dangling subscription across session death.
// Transport-level registrations stay in place.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = make(map[protocol.CallbackID]map[Cookie]entry)
}

// Dispatch delivers one push-event to every live listener of the event kind.
// A listener failure is logged and never blocks delivery to the others. Dead
// listeners are pruned afterwards. Listeners may add or remove listeners
// (including themselves) during dispatch; the iteration walks a snapshot.
func (r *Registry) Dispatch(id protocol.CallbackID, args ...interface{}) {
	r.mu.Lock()
	listeners := r.active[id]
	snapshot := make(map[Cookie]entry, len(listeners))
	for cookie, e := range listeners {
		snapshot[cookie] = e
	}
	r.mu.Unlock()

	var dead []Cookie

	for cookie, e := range snapshot {
		if !e.token.Alive() {
			dead = append(dead, cookie)
			continue
		}

		r.invoke(id, cookie, e.fn, args)
	}

	if len(dead) == 0 {
		return
	}

	r.mu.Lock()
	if listeners, ok := r.active[id]; ok {
		for _, cookie := range dead {
			delete(listeners, cookie)
		}
	}
	r.mu.Unlock()
}

// invoke runs one listener, isolating panics so one failing listener cannot
// take down the transport's event goroutine or starve other listeners.
func (r *Registry) invoke(id protocol.CallbackID, cookie Cookie, fn protocol.CallbackHandler, args []interface{}) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error().
				Uint8("callback_id", uint8(id)).
				Uint64("cookie", uint64(cookie)).
				Err(fmt.Errorf("listener panic: %v", v)).
				Msg("callback listener failed")
		}
	}()

	fn(args...)
}
