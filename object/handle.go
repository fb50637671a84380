package object

import (
	"errors"
	"fmt"

	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

var (
	// ErrNotAttached is returned when an operation requires an attached
	// handle. This is a programmer error, not a recoverable condition.
	ErrNotAttached = errors.New("object not attached")
	// ErrSessionExpired is returned when an allocating or opening call is
	// attempted on an expired session.
	ErrSessionExpired = errors.New("session expired")
	// ErrWriteInProgress is returned when a second asynchronous write is
	// started while one is still active on the same handle.
	ErrWriteInProgress = errors.New("asynchronous write already in progress")
	// ErrReadInProgress is returned when a second asynchronous read is
	// started while one is still active on the same handle.
	ErrReadInProgress = errors.New("asynchronous read already in progress")
)

// Object is the common surface of every typed handle.
type Object interface {
	// Session returns the session the handle belongs to.
	Session() *session.Session
	// ObjectID returns the bound object ID and whether the handle is
	// attached.
	ObjectID() (protocol.ObjectID, bool)
	// Attach binds the handle to an object ID. See Handle.Attach.
	Attach(id protocol.ObjectID, refresh bool) error
	// Detach unbinds the handle and returns the object ID.
	Detach() (protocol.ObjectID, error)
	// Release detaches and frees the server-side object, best effort.
	Release()
	// Close implements io.Closer as an idempotent Release.
	Close() error
	// Update refreshes all fields of the concrete type from the server.
	Update() error
}

// hooks is the per-type slice of the lifecycle: resetting fields, wiring and
// unwiring push-event subscriptions, and the full field refresh.
type hooks interface {
	initialize()
	attachCallbacks()
	detachCallbacks()
	Update() error
}

// releaser is the armed guard that frees the server-side reference of an
// attached handle. Detach disarms it; Release fires it. It fires at most
// once, and only while the owning session is still alive.
type releaser struct {
	session  *session.Session
	objectID protocol.ObjectID
	armed    bool
}

func (r *releaser) disarm() {
	r.armed = false
}

func (r *releaser) fire() {
	if !r.armed {
		return
	}
	r.armed = false
	releaseUnchecked(r.session, r.objectID)
}

// releaseUnchecked frees a server-side object reference best effort. A dead
// session means the server already dropped the reference; a transport failure
// is logged and swallowed.
func releaseUnchecked(s *session.Session, id protocol.ObjectID) {
	sid, ok := s.ID()
	if !ok {
		return
	}
	if err := s.Transport().ReleaseObjectUnchecked(id, sid); err != nil {
		s.Logger().Debug().Err(err).Uint16("object_id", uint16(id)).Msg("release object failed")
	}
}

// Handle is the generic object lifecycle, embedded by every typed object.
type Handle struct {
	session  *session.Session
	hooks    hooks
	id       protocol.ObjectID
	attached bool
	guard    *releaser
}

// newHandle binds a Handle to its session and the concrete type's hooks.
func newHandle(s *session.Session, h hooks) Handle {
	return Handle{session: s, hooks: h}
}

// Session returns the session the handle belongs to.
func (h *Handle) Session() *session.Session {
	return h.session
}

// ObjectID returns the bound object ID and whether the handle is attached.
func (h *Handle) ObjectID() (protocol.ObjectID, bool) {
	return h.id, h.attached
}

// sessionID returns the live session ID or ErrSessionExpired.
func (h *Handle) sessionID() (protocol.SessionID, error) {
	sid, ok := h.session.ID()
	if !ok {
		return 0, ErrSessionExpired
	}
	return sid, nil
}

// Attach binds the handle to an object ID. Any previously attached object is
// released first, so a handle can never dangle two server references. With
// refresh, all fields of the concrete type are fetched; skip it when the
// caller already knows the fresh values, i.e. right after a successful
// allocate.
//
// A failed refresh leaves the handle fully unattached and releases the
// object ID best effort; the caller never receives a half-attached handle.
func (h *Handle) Attach(id protocol.ObjectID, refresh bool) error {
	h.Release()

	h.guard = &releaser{session: h.session, objectID: id, armed: true}
	h.id = id
	h.attached = true

	h.hooks.attachCallbacks()

	if refresh {
		if err := h.hooks.Update(); err != nil {
			guard := h.guard
			h.guard = nil
			h.clear()
			guard.fire()
			return err
		}
	}

	return nil
}

// Detach unbinds the handle without touching the server and returns the
// object ID for reuse, e.g. re-typing it into a more specific handle.
// Detaching an unattached handle is a programmer error.
func (h *Handle) Detach() (protocol.ObjectID, error) {
	if !h.attached {
		return 0, fmt.Errorf("detach: %w", ErrNotAttached)
	}

	h.guard.disarm()
	h.guard = nil

	return h.clear(), nil
}

// Release detaches the handle and frees the server-side object best effort.
// Releasing an unattached handle is a no-op; a second Release never issues a
// second server call.
func (h *Handle) Release() {
	if !h.attached {
		return
	}

	guard := h.guard
	h.guard = nil
	h.clear()
	guard.fire()
}

// Close implements io.Closer as an idempotent Release.
func (h *Handle) Close() error {
	h.Release()
	return nil
}

// clear tears down subscriptions and resets the handle and the concrete
// type's fields to their unattached state. Returns the old object ID.
func (h *Handle) clear() protocol.ObjectID {
	h.hooks.detachCallbacks()

	id := h.id
	h.id = 0
	h.attached = false

	h.hooks.initialize()

	return id
}
