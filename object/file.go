package object

import (
	"fmt"
	"sync"

	"github.com/tfchina/brickv/callback"
	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

// asyncWrite tracks one in-flight asynchronous write transfer. written counts
// bytes handed to the transport; the tail chunk of every burst is acknowledged
// by a push event before the next burst starts.
type asyncWrite struct {
	fileID protocol.ObjectID
	data   []byte

	written int

	status func(written, total int)
	done   func(err error)
}

// asyncRead tracks one in-flight asynchronous read transfer. The server
// streams chunks until maxLength bytes arrived or a zero-length chunk signals
// the end of the data.
type asyncRead struct {
	fileID    protocol.ObjectID
	data      []byte
	maxLength uint64

	status func(read, total uint64)
	done   func(data []byte, err error)
}

// fileBase is the shared core of File and Pipe: the metadata fields reported
// by the server plus the asynchronous transfer machinery. At most one async
// write and one async read can be in flight per handle.
type fileBase struct {
	Handle

	fileType         protocol.FileType
	name             *String
	flags            protocol.FileFlag
	permissions      uint16
	uid              uint32
	gid              uint32
	length           uint64
	accessTime       uint64
	modificationTime uint64
	statusChangeTime uint64

	token       *callback.Token
	writeCookie callback.Cookie
	readCookie  callback.Cookie

	// asyncMu guards the transfer slots against the transport's event
	// goroutine. status and done callbacks run outside the lock.
	asyncMu sync.Mutex
	write   *asyncWrite
	read    *asyncRead
}

func (f *fileBase) initialize() {
	if f.name != nil {
		f.name.Release()
	}

	f.fileType = protocol.FileTypeUnknown
	f.name = nil
	f.flags = 0
	f.permissions = 0
	f.uid = 0
	f.gid = 0
	f.length = 0
	f.accessTime = 0
	f.modificationTime = 0
	f.statusChangeTime = 0
}

func (f *fileBase) attachCallbacks() {
	f.token = callback.NewToken()
	f.writeCookie = f.session.Callbacks().Add(protocol.CallbackAsyncFileWrite, f.token, f.onAsyncWrite)
	f.readCookie = f.session.Callbacks().Add(protocol.CallbackAsyncFileRead, f.token, f.onAsyncRead)
}

func (f *fileBase) detachCallbacks() {
	if f.token == nil {
		return
	}

	f.token.Revoke()
	f.session.Callbacks().Remove(protocol.CallbackAsyncFileWrite, f.writeCookie)
	f.session.Callbacks().Remove(protocol.CallbackAsyncFileRead, f.readCookie)
	f.token = nil

	f.abortTransfers()
}

// abortTransfers fails the in-flight async transfers of a handle that is
// going away, so their completion callbacks never silently starve.
func (f *fileBase) abortTransfers() {
	f.asyncMu.Lock()
	w := f.write
	r := f.read
	f.write = nil
	f.read = nil
	f.asyncMu.Unlock()

	if w != nil && w.done != nil {
		w.done(fmt.Errorf("write aborted: %w", ErrNotAttached))
	}
	if r != nil && r.done != nil {
		r.done(r.data, fmt.Errorf("read aborted: %w", ErrNotAttached))
	}
}

// Update fetches the file metadata. The server hands out a fresh name string
// object with every fetch; the handle adopts it and releases the previous one.
// Pipes are anonymous and carry no name object.
func (f *fileBase) Update() error {
	if !f.attached {
		return fmt.Errorf("update file: %w", ErrNotAttached)
	}

	sid, err := f.sessionID()
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}

	info, code, err := f.session.Transport().GetFileInfo(f.id, sid)
	if err != nil {
		return fmt.Errorf("get file info: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get information for file object", code)
	}

	var name *String
	if info.Type != protocol.FileTypePipe {
		name, err = attachString(f.session, info.NameStringID)
		if err != nil {
			return fmt.Errorf("attach file name: %w", err)
		}
	}

	if f.name != nil {
		f.name.Release()
	}

	f.fileType = info.Type
	f.name = name
	f.flags = info.Flags
	f.permissions = info.Permissions
	f.uid = info.UID
	f.gid = info.GID
	f.length = info.Length
	f.accessTime = info.AccessTime
	f.modificationTime = info.ModificationTime
	f.statusChangeTime = info.StatusChangeTime

	return nil
}

// Write writes data synchronously in acknowledged chunks. The server reports
// how much of each chunk it accepted and the next chunk continues from there,
// so short writes never corrupt the stream.
func (f *fileBase) Write(data []byte) error {
	if !f.attached {
		return fmt.Errorf("write file: %w", ErrNotAttached)
	}

	offset := 0
	for offset < len(data) {
		chunk, lengthToWrite := zeroPaddedChunk(data, protocol.FileMaxWrite, offset)

		written, code, err := f.session.Transport().WriteFile(f.id, chunk, lengthToWrite)
		if err != nil {
			return fmt.Errorf("write to file object at offset %d: %w", offset, err)
		}
		if code != protocol.ESuccess {
			return protocol.NewError("could not write to file object", code)
		}

		offset += int(written)
	}

	return nil
}

// Read reads up to length bytes synchronously. It returns short when the end
// of the data is reached.
func (f *fileBase) Read(length int) ([]byte, error) {
	if !f.attached {
		return nil, fmt.Errorf("read file: %w", ErrNotAttached)
	}

	data := make([]byte, 0, length)
	for len(data) < length {
		lengthToRead := uint8(protocol.FileMaxRead)
		if remaining := length - len(data); remaining < int(lengthToRead) {
			lengthToRead = uint8(remaining)
		}

		buf, lengthRead, code, err := f.session.Transport().ReadFile(f.id, lengthToRead)
		if err != nil {
			return data, fmt.Errorf("read from file object at offset %d: %w", len(data), err)
		}
		if code == protocol.ENoMoreData {
			break
		}
		if code != protocol.ESuccess {
			return data, protocol.NewError("could not read from file object", code)
		}
		if lengthRead == 0 {
			break
		}

		data = append(data, buf[:lengthRead]...)
	}

	return data, nil
}

// WriteAsync writes data in bursts of unchecked chunks, each burst closed by
// one acknowledged chunk whose completion event triggers the next burst. At
// most one asynchronous write can be in flight per handle. status is invoked
// with the running byte count after every burst, done exactly once with the
// final outcome; both run on the transport's event goroutine and may be nil.
// An empty write needs no server round trip and completes synchronously on
// the caller's goroutine.
func (f *fileBase) WriteAsync(data []byte, status func(written, total int), done func(err error)) error {
	if !f.attached {
		return fmt.Errorf("write file async: %w", ErrNotAttached)
	}

	if len(data) == 0 {
		if done != nil {
			done(nil)
		}
		return nil
	}

	w := &asyncWrite{fileID: f.id, data: data, status: status, done: done}

	f.asyncMu.Lock()
	if f.write != nil {
		f.asyncMu.Unlock()
		return ErrWriteInProgress
	}
	f.write = w

	if err := f.sendWriteBurst(w); err != nil {
		f.write = nil
		f.asyncMu.Unlock()
		return fmt.Errorf("write file async: %w", err)
	}
	f.asyncMu.Unlock()

	return nil
}

// sendWriteBurst pushes unchecked chunks until the burst window has room for
// only one more chunk, then sends that chunk acknowledged.
// Its completion event advances the transfer. Called with asyncMu held.
func (f *fileBase) sendWriteBurst(w *asyncWrite) error {
	unchecked := 0
	for len(w.data)-w.written > protocol.FileMaxWriteAsync && unchecked < protocol.AsyncBurstChunks-1 {
		chunk, lengthToWrite := zeroPaddedChunk(w.data, protocol.FileMaxWriteUnchecked, w.written)

		if err := f.session.Transport().WriteFileUnchecked(w.fileID, chunk, lengthToWrite); err != nil {
			return fmt.Errorf("unchecked write at offset %d: %w", w.written, err)
		}

		w.written += int(lengthToWrite)
		unchecked++
	}

	chunk, lengthToWrite := zeroPaddedChunk(w.data, protocol.FileMaxWriteAsync, w.written)

	if err := f.session.Transport().WriteFileAsync(w.fileID, chunk, lengthToWrite); err != nil {
		return fmt.Errorf("acknowledged write at offset %d: %w", w.written, err)
	}

	return nil
}

// onAsyncWrite handles the completion event of a burst's acknowledged chunk.
func (f *fileBase) onAsyncWrite(args ...interface{}) {
	if len(args) < 3 {
		return
	}
	fileID, ok := args[0].(protocol.ObjectID)
	if !ok {
		return
	}
	code, ok := args[1].(protocol.ErrorCode)
	if !ok {
		return
	}
	lengthWritten, ok := args[2].(uint8)
	if !ok {
		return
	}

	f.asyncMu.Lock()
	w := f.write
	if w == nil || w.fileID != fileID {
		f.asyncMu.Unlock()
		return
	}

	if code != protocol.ESuccess {
		f.write = nil
		f.asyncMu.Unlock()
		if w.done != nil {
			w.done(protocol.NewError("could not write to file object", code))
		}
		return
	}

	w.written += int(lengthWritten)

	if w.written >= len(w.data) {
		f.write = nil
		f.asyncMu.Unlock()
		if w.status != nil {
			w.status(w.written, len(w.data))
		}
		if w.done != nil {
			w.done(nil)
		}
		return
	}

	err := f.sendWriteBurst(w)
	if err != nil {
		f.write = nil
	}
	f.asyncMu.Unlock()

	if w.status != nil {
		w.status(w.written, len(w.data))
	}
	if err != nil && w.done != nil {
		w.done(err)
	}
}

// ReadAsync asks the server to stream up to maxLength bytes; chunks arrive as
// push events and accumulate until maxLength is reached or a zero-length
// chunk signals the end of the data. At most one asynchronous read can be in
// flight per handle. status is invoked per chunk, done exactly once with the
// accumulated data; both run on the transport's event goroutine and may be
// nil except done. A zero maxLength needs no server round trip and completes
// synchronously on the caller's goroutine.
func (f *fileBase) ReadAsync(maxLength uint64, status func(read, total uint64), done func(data []byte, err error)) error {
	if !f.attached {
		return fmt.Errorf("read file async: %w", ErrNotAttached)
	}

	// The server sends no chunk for a zero-length request, so there would be
	// no event to terminate on.
	if maxLength == 0 {
		if done != nil {
			done(nil, nil)
		}
		return nil
	}

	r := &asyncRead{fileID: f.id, maxLength: maxLength, status: status, done: done}

	f.asyncMu.Lock()
	if f.read != nil {
		f.asyncMu.Unlock()
		return ErrReadInProgress
	}
	f.read = r
	f.asyncMu.Unlock()

	if err := f.session.Transport().ReadFileAsync(f.id, maxLength); err != nil {
		f.asyncMu.Lock()
		f.read = nil
		f.asyncMu.Unlock()
		return fmt.Errorf("read file async: %w", err)
	}

	return nil
}

// onAsyncRead handles one streamed chunk of an asynchronous read.
func (f *fileBase) onAsyncRead(args ...interface{}) {
	if len(args) < 4 {
		return
	}
	fileID, ok := args[0].(protocol.ObjectID)
	if !ok {
		return
	}
	code, ok := args[1].(protocol.ErrorCode)
	if !ok {
		return
	}
	buf, ok := args[2].([]byte)
	if !ok {
		return
	}
	lengthRead, ok := args[3].(uint8)
	if !ok {
		return
	}

	f.asyncMu.Lock()
	r := f.read
	if r == nil || r.fileID != fileID {
		f.asyncMu.Unlock()
		return
	}

	if code != protocol.ESuccess {
		f.read = nil
		f.asyncMu.Unlock()
		if r.done != nil {
			r.done(r.data, protocol.NewError("could not read from file object", code))
		}
		return
	}

	if int(lengthRead) <= len(buf) {
		r.data = append(r.data, buf[:lengthRead]...)
	}

	if lengthRead == 0 || uint64(len(r.data)) >= r.maxLength {
		f.read = nil
		f.asyncMu.Unlock()
		if r.status != nil {
			r.status(uint64(len(r.data)), r.maxLength)
		}
		if r.done != nil {
			r.done(r.data, nil)
		}
		return
	}
	f.asyncMu.Unlock()

	if r.status != nil {
		r.status(uint64(len(r.data)), r.maxLength)
	}
}

// Type returns the file type reported by the server.
func (f *fileBase) Type() protocol.FileType { return f.fileType }

// Name returns the file name string handle, nil for pipes. The handle owns it.
func (f *fileBase) Name() *String { return f.name }

// Flags returns the open flags reported by the server.
func (f *fileBase) Flags() protocol.FileFlag { return f.flags }

// Permissions returns the permission bits reported by the server.
func (f *fileBase) Permissions() uint16 { return f.permissions }

// UID returns the owning user ID.
func (f *fileBase) UID() uint32 { return f.uid }

// GID returns the owning group ID.
func (f *fileBase) GID() uint32 { return f.gid }

// Length returns the file length in bytes at the time of the last Update.
func (f *fileBase) Length() uint64 { return f.length }

// AccessTime returns the last access time as a UNIX timestamp.
func (f *fileBase) AccessTime() uint64 { return f.accessTime }

// ModificationTime returns the last modification time as a UNIX timestamp.
func (f *fileBase) ModificationTime() uint64 { return f.modificationTime }

// StatusChangeTime returns the last status change time as a UNIX timestamp.
func (f *fileBase) StatusChangeTime() uint64 { return f.statusChangeTime }

// File is the handle of a remote regular file.
type File struct {
	fileBase
}

// NewFile creates an unattached file handle.
func NewFile(s *session.Session) *File {
	f := &File{}
	f.Handle = newHandle(s, f)
	return f
}

// Open opens the named remote file. The name travels as a temporary remote
// string that is released again once the file is open; the attached handle
// then carries the server-reported name object instead.
func (f *File) Open(name string, flags protocol.FileFlag, permissions uint16, uid, gid uint32) error {
	f.Release()

	sid, err := f.sessionID()
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}

	nameString := NewString(f.session)
	if err := nameString.Allocate(name); err != nil {
		return fmt.Errorf("open file: allocate name: %w", err)
	}
	defer nameString.Release()

	nameID, _ := nameString.ObjectID()

	id, code, err := f.session.Transport().OpenFile(nameID, flags, permissions, uid, gid, sid)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not open file object", code)
	}

	return f.Attach(id, true)
}

// Pipe is the handle of a remote anonymous pipe. Pipes share the file I/O
// surface but carry no name.
type Pipe struct {
	fileBase
}

// NewPipe creates an unattached pipe handle.
func NewPipe(s *session.Session) *Pipe {
	p := &Pipe{}
	p.Handle = newHandle(s, p)
	return p
}

// Create creates a remote pipe with the given buffer length.
func (p *Pipe) Create(flags protocol.PipeFlag, length uint64) error {
	p.Release()

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("create pipe: %w", err)
	}

	id, code, err := p.session.Transport().CreatePipe(flags, length, sid)
	if err != nil {
		return fmt.Errorf("create pipe: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not create pipe object", code)
	}

	return p.Attach(id, true)
}

// AttachFileOrPipe probes the metadata of an object carrying the file type
// tag and wraps it in a File or Pipe handle. The probe hands out a name
// string object that the probe itself must dispose of; the typed attach
// fetches its own copy afterwards. On failure the object ID is released.
func AttachFileOrPipe(s *session.Session, id protocol.ObjectID) (Object, error) {
	sid, ok := s.ID()
	if !ok {
		releaseUnchecked(s, id)
		return nil, fmt.Errorf("attach file: %w", ErrSessionExpired)
	}

	info, code, err := s.Transport().GetFileInfo(id, sid)
	if err != nil {
		releaseUnchecked(s, id)
		return nil, fmt.Errorf("probe file type: %w", err)
	}
	if code != protocol.ESuccess {
		releaseUnchecked(s, id)
		return nil, protocol.NewError("could not get information for file object", code)
	}

	if info.Type != protocol.FileTypePipe && info.NameStringID != 0 {
		releaseUnchecked(s, info.NameStringID)
	}

	if info.Type == protocol.FileTypePipe {
		p := NewPipe(s)
		if err := p.Attach(id, true); err != nil {
			return nil, err
		}
		return p, nil
	}

	f := NewFile(s)
	if err := f.Attach(id, true); err != nil {
		return nil, err
	}
	return f, nil
}
