package object

import (
	"fmt"

	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

// String is the handle of a remote string object. Remote strings hold the
// names, arguments and option values referenced by every other object type;
// they move over the wire in fixed-width chunks.
type String struct {
	Handle

	data string
}

// NewString creates an unattached string handle.
func NewString(s *session.Session) *String {
	str := &String{}
	str.Handle = newHandle(s, str)
	return str
}

// attachString wraps an already allocated string object ID. On failure the
// object ID and any extra sibling IDs obtained from the same fetch are
// released.
func attachString(s *session.Session, id protocol.ObjectID, extras ...protocol.ObjectID) (*String, error) {
	str := NewString(s)
	if err := str.Attach(id, true); err != nil {
		for _, extra := range extras {
			releaseUnchecked(s, extra)
		}
		return nil, err
	}
	return str, nil
}

func (s *String) initialize() {
	s.data = ""
}

func (s *String) attachCallbacks() {}

func (s *String) detachCallbacks() {}

// Update fetches the remote string contents chunk by chunk.
func (s *String) Update() error {
	if !s.attached {
		return fmt.Errorf("update string: %w", ErrNotAttached)
	}

	length, code, err := s.session.Transport().GetStringLength(s.id)
	if err != nil {
		return fmt.Errorf("get string length: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get length of string object", code)
	}

	data := make([]byte, 0, length)
	for offset := uint32(0); offset < length; offset += protocol.StringMaxGetChunk {
		chunk, code, err := s.session.Transport().GetStringChunk(s.id, offset)
		if err != nil {
			return fmt.Errorf("get string chunk at offset %d: %w", offset, err)
		}
		if code != protocol.ESuccess {
			return protocol.NewError("could not get chunk of string object", code)
		}
		data = append(data, chunk...)
	}

	s.data = string(data[:min(len(data), int(length))])

	return nil
}

// Allocate creates a remote string holding data. A previously attached string
// is released first. The first chunk rides along with the allocation; the
// rest is pushed in follow-up chunks. A failed push releases the fresh object
// so no half-written string leaks.
func (s *String) Allocate(data string) error {
	s.Release()

	sid, err := s.sessionID()
	if err != nil {
		return fmt.Errorf("allocate string: %w", err)
	}

	first := data
	if len(first) > protocol.StringMaxAllocateChunk {
		first = first[:protocol.StringMaxAllocateChunk]
	}

	id, code, err := s.session.Transport().AllocateString(uint32(len(data)), first, sid)
	if err != nil {
		return fmt.Errorf("allocate string: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not allocate string object", code)
	}

	if err := s.Attach(id, false); err != nil {
		return err
	}

	for offset := protocol.StringMaxAllocateChunk; offset < len(data); offset += protocol.StringMaxSetChunk {
		chunk := data[offset:min(len(data), offset+protocol.StringMaxSetChunk)]

		code, err := s.session.Transport().SetStringChunk(s.id, uint32(offset), chunk)
		if err != nil {
			s.Release()
			return fmt.Errorf("set string chunk at offset %d: %w", offset, err)
		}
		if code != protocol.ESuccess {
			s.Release()
			return protocol.NewError("could not set chunk of string object", code)
		}
	}

	s.data = data

	return nil
}

// Data returns the last known contents of the remote string.
func (s *String) Data() string {
	return s.data
}
