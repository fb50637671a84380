package object

import (
	"fmt"

	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

// List is the handle of a remote list object. A remote list holds references
// to other objects; the client-side handle owns a typed handle per decoded
// item and releases them when the list is detached, released or refreshed.
type List struct {
	Handle

	items []Object
}

// NewList creates an unattached list handle.
func NewList(s *session.Session) *List {
	l := &List{}
	l.Handle = newHandle(s, l)
	return l
}

// attachList wraps an already allocated list object ID. On failure the object
// ID and any extra sibling IDs obtained from the same fetch are released.
func attachList(s *session.Session, id protocol.ObjectID, extras ...protocol.ObjectID) (*List, error) {
	l := NewList(s)
	if err := l.Attach(id, true); err != nil {
		for _, extra := range extras {
			releaseUnchecked(s, extra)
		}
		return nil, err
	}
	return l, nil
}

func (l *List) initialize() {
	for _, item := range l.items {
		item.Release()
	}
	l.items = nil
}

func (l *List) attachCallbacks() {}

func (l *List) detachCallbacks() {}

// Update fetches every item of the remote list and decodes it into its typed
// handle. A partial decode never leaks: items already decoded are released
// before the error is returned.
func (l *List) Update() error {
	if !l.attached {
		return fmt.Errorf("update list: %w", ErrNotAttached)
	}

	sid, err := l.sessionID()
	if err != nil {
		return fmt.Errorf("update list: %w", err)
	}

	length, code, err := l.session.Transport().GetListLength(l.id)
	if err != nil {
		return fmt.Errorf("get list length: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get length of list object", code)
	}

	release := func(items []Object) {
		for _, item := range items {
			item.Release()
		}
	}

	items := make([]Object, 0, length)
	for i := uint16(0); i < length; i++ {
		itemID, itemType, code, err := l.session.Transport().GetListItem(l.id, i, sid)
		if err != nil {
			release(items)
			return fmt.Errorf("get list item %d: %w", i, err)
		}
		if code != protocol.ESuccess {
			release(items)
			return protocol.NewError(fmt.Sprintf("could not get item %d of list object", i), code)
		}

		item, err := attachByType(l.session, itemID, itemType)
		if err != nil {
			release(items)
			return fmt.Errorf("decode list item %d: %w", i, err)
		}

		items = append(items, item)
	}

	release(l.items)
	l.items = items

	return nil
}

// Allocate creates a remote list and appends the given items. Plain strings
// are allocated as remote strings first; Object items are appended as-is and
// become owned by the list. A previously attached list is released first; a
// failed append releases the fresh list and everything appended so far.
func (l *List) Allocate(items ...interface{}) error {
	l.Release()

	sid, err := l.sessionID()
	if err != nil {
		return fmt.Errorf("allocate list: %w", err)
	}

	id, code, err := l.session.Transport().AllocateList(uint16(len(items)), sid)
	if err != nil {
		return fmt.Errorf("allocate list: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not allocate list object", code)
	}

	if err := l.Attach(id, false); err != nil {
		return err
	}

	for i, raw := range items {
		var item Object

		switch v := raw.(type) {
		case string:
			str := NewString(l.session)
			if err := str.Allocate(v); err != nil {
				l.Release()
				return fmt.Errorf("allocate list item %d: %w", i, err)
			}
			item = str
		case Object:
			item = v
		default:
			l.Release()
			return fmt.Errorf("list item %d has unsupported type %T", i, raw)
		}

		itemID, ok := item.ObjectID()
		if !ok {
			l.Release()
			return fmt.Errorf("append list item %d: %w", i, ErrNotAttached)
		}

		// Owned from here on: a failed append rolls the item back too.
		l.items = append(l.items, item)

		code, err := l.session.Transport().AppendToList(l.id, itemID)
		if err != nil {
			l.Release()
			return fmt.Errorf("append list item %d: %w", i, err)
		}
		if code != protocol.ESuccess {
			l.Release()
			return protocol.NewError(fmt.Sprintf("could not append item %d to list object", i), code)
		}
	}

	return nil
}

// Items returns the decoded item handles. The list retains ownership; the
// slice is valid until the next Update, Detach or Release.
func (l *List) Items() []Object {
	return l.items
}
