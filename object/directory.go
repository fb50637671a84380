package object

import (
	"fmt"

	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

// Entry is one directory entry. The directory handle owns the name string.
type Entry struct {
	Name *String
	Type protocol.DirectoryEntryType
}

// Directory is the handle of a remote directory object. Updating it walks the
// full entry listing; the server streams one entry per call until it reports
// the end of the directory.
type Directory struct {
	Handle

	name    *String
	entries []Entry
}

// NewDirectory creates an unattached directory handle.
func NewDirectory(s *session.Session) *Directory {
	d := &Directory{}
	d.Handle = newHandle(s, d)
	return d
}

// attachDirectory wraps an already opened directory object ID. On failure the
// object ID and any extra sibling IDs obtained from the same fetch are
// released.
func attachDirectory(s *session.Session, id protocol.ObjectID, extras ...protocol.ObjectID) (*Directory, error) {
	d := NewDirectory(s)
	if err := d.Attach(id, true); err != nil {
		for _, extra := range extras {
			releaseUnchecked(s, extra)
		}
		return nil, err
	}
	return d, nil
}

func (d *Directory) initialize() {
	if d.name != nil {
		d.name.Release()
	}
	for _, entry := range d.entries {
		entry.Name.Release()
	}

	d.name = nil
	d.entries = nil
}

func (d *Directory) attachCallbacks() {}

func (d *Directory) detachCallbacks() {}

// Update fetches the directory name and the full entry listing. A partial
// listing never leaks: entries already fetched are released before the error
// is returned.
func (d *Directory) Update() error {
	if !d.attached {
		return fmt.Errorf("update directory: %w", ErrNotAttached)
	}

	sid, err := d.sessionID()
	if err != nil {
		return fmt.Errorf("update directory: %w", err)
	}

	nameID, code, err := d.session.Transport().GetDirectoryName(d.id, sid)
	if err != nil {
		return fmt.Errorf("get directory name: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get name of directory object", code)
	}

	name, err := attachString(d.session, nameID)
	if err != nil {
		return fmt.Errorf("attach directory name: %w", err)
	}

	release := func(entries []Entry) {
		name.Release()
		for _, entry := range entries {
			entry.Name.Release()
		}
	}

	code, err = d.session.Transport().RewindDirectory(d.id)
	if err != nil {
		release(nil)
		return fmt.Errorf("rewind directory: %w", err)
	}
	if code != protocol.ESuccess {
		release(nil)
		return protocol.NewError("could not rewind directory object", code)
	}

	var entries []Entry
	for {
		entryID, entryType, code, err := d.session.Transport().GetNextDirectoryEntry(d.id, sid)
		if err != nil {
			release(entries)
			return fmt.Errorf("get next directory entry: %w", err)
		}
		if code == protocol.ENoMoreData {
			break
		}
		if code != protocol.ESuccess {
			release(entries)
			return protocol.NewError("could not get next entry of directory object", code)
		}

		entryName, err := attachString(d.session, entryID)
		if err != nil {
			release(entries)
			return fmt.Errorf("attach directory entry name: %w", err)
		}

		entries = append(entries, Entry{Name: entryName, Type: entryType})
	}

	if d.name != nil {
		d.name.Release()
	}
	for _, entry := range d.entries {
		entry.Name.Release()
	}

	d.name = name
	d.entries = entries

	return nil
}

// Open opens the named remote directory. The name travels as a temporary
// remote string that is released again once the directory is open.
func (d *Directory) Open(name string) error {
	d.Release()

	sid, err := d.sessionID()
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}

	nameString := NewString(d.session)
	if err := nameString.Allocate(name); err != nil {
		return fmt.Errorf("open directory: allocate name: %w", err)
	}
	defer nameString.Release()

	nameID, _ := nameString.ObjectID()

	id, code, err := d.session.Transport().OpenDirectory(nameID, sid)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not open directory object", code)
	}

	return d.Attach(id, true)
}

// Name returns the directory name string handle. The handle owns it.
func (d *Directory) Name() *String {
	return d.name
}

// Entries returns the entries fetched by the last Update. The directory
// retains ownership of the entry names.
func (d *Directory) Entries() []Entry {
	return d.entries
}

// CreateDirectory creates a directory on the remote system.
func CreateDirectory(s *session.Session, name string, flags protocol.DirectoryFlag, permissions uint16, uid, gid uint32) error {
	nameString := NewString(s)
	if err := nameString.Allocate(name); err != nil {
		return fmt.Errorf("create directory: allocate name: %w", err)
	}
	defer nameString.Release()

	nameID, _ := nameString.ObjectID()

	code, err := s.Transport().CreateDirectory(nameID, flags, permissions, uid, gid)
	if err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not create directory", code)
	}

	return nil
}

// LookupFileInfo stats the named path without opening it.
func LookupFileInfo(s *session.Session, name string, followSymlink bool) (protocol.FileStat, error) {
	sid, ok := s.ID()
	if !ok {
		return protocol.FileStat{}, fmt.Errorf("lookup file info: %w", ErrSessionExpired)
	}

	nameString := NewString(s)
	if err := nameString.Allocate(name); err != nil {
		return protocol.FileStat{}, fmt.Errorf("lookup file info: allocate name: %w", err)
	}
	defer nameString.Release()

	nameID, _ := nameString.ObjectID()

	stat, code, err := s.Transport().LookupFileInfo(nameID, followSymlink, sid)
	if err != nil {
		return protocol.FileStat{}, fmt.Errorf("lookup file info: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.FileStat{}, protocol.NewError("could not lookup file information", code)
	}

	return stat, nil
}

// LookupSymlinkTarget resolves the named symlink and returns its target as an
// attached string handle owned by the caller.
func LookupSymlinkTarget(s *session.Session, name string, canonicalize bool) (*String, error) {
	sid, ok := s.ID()
	if !ok {
		return nil, fmt.Errorf("lookup symlink target: %w", ErrSessionExpired)
	}

	nameString := NewString(s)
	if err := nameString.Allocate(name); err != nil {
		return nil, fmt.Errorf("lookup symlink target: allocate name: %w", err)
	}
	defer nameString.Release()

	nameID, _ := nameString.ObjectID()

	targetID, code, err := s.Transport().LookupSymlinkTarget(nameID, canonicalize, sid)
	if err != nil {
		return nil, fmt.Errorf("lookup symlink target: %w", err)
	}
	if code != protocol.ESuccess {
		return nil, protocol.NewError("could not lookup symlink target", code)
	}

	return attachString(s, targetID)
}
