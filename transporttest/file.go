package transporttest

import (
	"github.com/tfchina/brickv/protocol"
)

// vfile is the shared backing store of one file or pipe. File objects opened
// on the same path share it, so writes are visible across handles and to
// FileContent.
type vfile struct {
	content []byte
}

type fileState struct {
	pipe        bool
	path        string
	v           *vfile
	position    int
	flags       protocol.FileFlag
	permissions uint16
	uid         uint32
	gid         uint32
}

type dirState struct {
	path    string
	entries []DirEntry
	cursor  int
}

// ShortNextWrite makes the next WriteFile call accept at most n bytes.
func (t *Transport) ShortNextWrite(n uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shortWrites = append(t.shortWrites, n)
}

// OpenFile implements protocol.Transport.
func (t *Transport) OpenFile(nameStringID protocol.ObjectID, flags protocol.FileFlag, permissions uint16, uid, gid uint32, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("OpenFile"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	path, ok := t.stringData(nameStringID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	v, exists := t.files[path]
	switch {
	case exists && flags&protocol.FileFlagExclusive != 0:
		return 0, protocol.EAlreadyExists, nil
	case !exists && flags&protocol.FileFlagCreate == 0:
		return 0, protocol.EDoesNotExist, nil
	case !exists:
		v = &vfile{}
		t.files[path] = v
	}

	if flags&protocol.FileFlagTruncate != 0 {
		v.content = nil
	}

	id := t.newObject(&object{kind: kindFile, file: &fileState{
		path:        path,
		v:           v,
		flags:       flags,
		permissions: permissions,
		uid:         uid,
		gid:         gid,
	}})

	return id, protocol.ESuccess, nil
}

// CreatePipe implements protocol.Transport.
func (t *Transport) CreatePipe(flags protocol.PipeFlag, length uint64, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("CreatePipe"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	id := t.newObject(&object{kind: kindFile, file: &fileState{
		pipe: true,
		v:    &vfile{},
	}})

	return id, protocol.ESuccess, nil
}

// GetFileInfo implements protocol.Transport. For regular files the name is
// handed out as a fresh string object reference.
func (t *Transport) GetFileInfo(fileID protocol.ObjectID, sessionID protocol.SessionID) (protocol.FileInfo, protocol.ErrorCode, error) {
	if code, err := t.begin("GetFileInfo"); err != nil || code != protocol.ESuccess {
		return protocol.FileInfo{}, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return protocol.FileInfo{}, protocol.EUnknownSessionID, nil
	}

	obj, ok := t.lookup(fileID, kindFile)
	if !ok {
		return protocol.FileInfo{}, protocol.EUnknownObjectID, nil
	}

	f := obj.file

	if f.pipe {
		return protocol.FileInfo{
			Type:   protocol.FileTypePipe,
			Length: uint64(len(f.v.content)),
		}, protocol.ESuccess, nil
	}

	return protocol.FileInfo{
		Type:         protocol.FileTypeRegular,
		NameStringID: t.allocStringObject(f.path),
		Flags:        f.flags,
		Permissions:  f.permissions,
		UID:          f.uid,
		GID:          f.gid,
		Length:       uint64(len(f.v.content)),
	}, protocol.ESuccess, nil
}

// ReadFile implements protocol.Transport. Reading past the end returns a
// zero-length chunk; reading from an empty pipe reports no more data.
func (t *Transport) ReadFile(fileID protocol.ObjectID, lengthToRead uint8) ([]byte, uint8, protocol.ErrorCode, error) {
	if code, err := t.begin("ReadFile"); err != nil || code != protocol.ESuccess {
		return nil, 0, code, err
	}
	if lengthToRead > protocol.FileMaxRead {
		return nil, 0, protocol.EInvalidParameter, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(fileID, kindFile)
	if !ok {
		return nil, 0, protocol.EUnknownObjectID, nil
	}

	chunk := t.readLocked(obj.file, int(lengthToRead))
	if chunk == nil && obj.file.pipe {
		return nil, 0, protocol.ENoMoreData, nil
	}

	return chunk, uint8(len(chunk)), protocol.ESuccess, nil
}

// readLocked takes up to n bytes out of a file or pipe. Pipes are drained;
// files advance their position.
func (t *Transport) readLocked(f *fileState, n int) []byte {
	if f.pipe {
		if len(f.v.content) == 0 {
			return nil
		}
		take := min(n, len(f.v.content))
		chunk := append([]byte(nil), f.v.content[:take]...)
		f.v.content = f.v.content[take:]
		return chunk
	}

	if f.position >= len(f.v.content) {
		return []byte{}
	}
	take := min(n, len(f.v.content)-f.position)
	chunk := append([]byte(nil), f.v.content[f.position:f.position+take]...)
	f.position += take
	return chunk
}

// writeLocked stores up to lengthToWrite bytes at the current position and
// reports how many were accepted, honoring a queued short write.
func (t *Transport) writeLocked(f *fileState, buffer []byte, lengthToWrite uint8) uint8 {
	n := int(lengthToWrite)
	if n > len(buffer) {
		n = len(buffer)
	}

	if len(t.shortWrites) > 0 {
		limit := int(t.shortWrites[0])
		t.shortWrites = t.shortWrites[1:]
		if limit < n {
			n = limit
		}
	}

	if f.pipe {
		f.v.content = append(f.v.content, buffer[:n]...)
		return uint8(n)
	}

	end := f.position + n
	if end > len(f.v.content) {
		grown := make([]byte, end)
		copy(grown, f.v.content)
		f.v.content = grown
	}
	copy(f.v.content[f.position:], buffer[:n])
	f.position = end

	return uint8(n)
}

// WriteFile implements protocol.Transport.
func (t *Transport) WriteFile(fileID protocol.ObjectID, buffer []byte, lengthToWrite uint8) (uint8, protocol.ErrorCode, error) {
	if code, err := t.begin("WriteFile"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}
	if lengthToWrite > protocol.FileMaxWrite {
		return 0, protocol.EInvalidParameter, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(fileID, kindFile)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	return t.writeLocked(obj.file, buffer, lengthToWrite), protocol.ESuccess, nil
}

// WriteFileUnchecked implements protocol.Transport.
func (t *Transport) WriteFileUnchecked(fileID protocol.ObjectID, buffer []byte, lengthToWrite uint8) error {
	if _, err := t.begin("WriteFileUnchecked"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if obj, ok := t.lookup(fileID, kindFile); ok {
		t.writeLocked(obj.file, buffer, lengthToWrite)
	}

	return nil
}

// WriteFileAsync implements protocol.Transport. The completion event reports
// how many bytes were accepted.
func (t *Transport) WriteFileAsync(fileID protocol.ObjectID, buffer []byte, lengthToWrite uint8) error {
	if _, err := t.begin("WriteFileAsync"); err != nil {
		return err
	}

	t.mu.Lock()
	obj, ok := t.lookup(fileID, kindFile)
	if !ok {
		t.mu.Unlock()
		t.emit(protocol.CallbackAsyncFileWrite, fileID, protocol.EUnknownObjectID, uint8(0))
		return nil
	}
	written := t.writeLocked(obj.file, buffer, lengthToWrite)
	t.mu.Unlock()

	t.emit(protocol.CallbackAsyncFileWrite, fileID, protocol.ESuccess, written)

	return nil
}

// ReadFileAsync implements protocol.Transport. The requested range is
// streamed as chunk events; running out of data early is signaled with a
// zero-length chunk.
func (t *Transport) ReadFileAsync(fileID protocol.ObjectID, length uint64) error {
	if _, err := t.begin("ReadFileAsync"); err != nil {
		return err
	}

	t.mu.Lock()
	obj, ok := t.lookup(fileID, kindFile)
	if !ok {
		t.mu.Unlock()
		t.emit(protocol.CallbackAsyncFileRead, fileID, protocol.EUnknownObjectID, []byte(nil), uint8(0))
		return nil
	}

	remaining := length
	var chunks [][]byte
	exhausted := false
	for remaining > 0 {
		chunk := t.readLocked(obj.file, int(min(remaining, protocol.FileMaxReadAsync)))
		if len(chunk) == 0 {
			exhausted = true
			break
		}
		chunks = append(chunks, chunk)
		remaining -= uint64(len(chunk))
	}
	t.mu.Unlock()

	for _, chunk := range chunks {
		t.emit(protocol.CallbackAsyncFileRead, fileID, protocol.ESuccess, chunk, uint8(len(chunk)))
	}
	if exhausted {
		t.emit(protocol.CallbackAsyncFileRead, fileID, protocol.ESuccess, []byte(nil), uint8(0))
	}

	return nil
}

// LookupFileInfo implements protocol.Transport.
func (t *Transport) LookupFileInfo(nameStringID protocol.ObjectID, followSymlink bool, sessionID protocol.SessionID) (protocol.FileStat, protocol.ErrorCode, error) {
	if code, err := t.begin("LookupFileInfo"); err != nil || code != protocol.ESuccess {
		return protocol.FileStat{}, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return protocol.FileStat{}, protocol.EUnknownSessionID, nil
	}

	path, ok := t.stringData(nameStringID)
	if !ok {
		return protocol.FileStat{}, protocol.EUnknownObjectID, nil
	}

	if target, ok := t.symlinks[path]; ok {
		if !followSymlink {
			return protocol.FileStat{Type: protocol.FileTypeSymlink}, protocol.ESuccess, nil
		}
		path = target
	}

	if v, ok := t.files[path]; ok {
		return protocol.FileStat{
			Type:   protocol.FileTypeRegular,
			Length: uint64(len(v.content)),
		}, protocol.ESuccess, nil
	}
	if _, ok := t.dirs[path]; ok {
		return protocol.FileStat{Type: protocol.FileTypeDirectory}, protocol.ESuccess, nil
	}

	return protocol.FileStat{}, protocol.EDoesNotExist, nil
}

// LookupSymlinkTarget implements protocol.Transport. The target is handed out
// as a fresh string object reference.
func (t *Transport) LookupSymlinkTarget(nameStringID protocol.ObjectID, canonicalize bool, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("LookupSymlinkTarget"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	path, ok := t.stringData(nameStringID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	target, ok := t.symlinks[path]
	if !ok {
		return 0, protocol.EDoesNotExist, nil
	}

	return t.allocStringObject(target), protocol.ESuccess, nil
}

// OpenDirectory implements protocol.Transport.
func (t *Transport) OpenDirectory(nameStringID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("OpenDirectory"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	path, ok := t.stringData(nameStringID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	entries, ok := t.dirs[path]
	if !ok {
		return 0, protocol.EDoesNotExist, nil
	}

	id := t.newObject(&object{kind: kindDirectory, dir: &dirState{
		path:    path,
		entries: append([]DirEntry(nil), entries...),
	}})

	return id, protocol.ESuccess, nil
}

// GetDirectoryName implements protocol.Transport. The name is handed out as a
// fresh string object reference.
func (t *Transport) GetDirectoryName(directoryID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("GetDirectoryName"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	obj, ok := t.lookup(directoryID, kindDirectory)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	return t.allocStringObject(obj.dir.path), protocol.ESuccess, nil
}

// RewindDirectory implements protocol.Transport.
func (t *Transport) RewindDirectory(directoryID protocol.ObjectID) (protocol.ErrorCode, error) {
	if code, err := t.begin("RewindDirectory"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(directoryID, kindDirectory)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}

	obj.dir.cursor = 0

	return protocol.ESuccess, nil
}

// GetNextDirectoryEntry implements protocol.Transport. Each entry name is
// handed out as a fresh string object reference; the end of the listing is
// reported as no more data.
func (t *Transport) GetNextDirectoryEntry(directoryID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.DirectoryEntryType, protocol.ErrorCode, error) {
	if code, err := t.begin("GetNextDirectoryEntry"); err != nil || code != protocol.ESuccess {
		return 0, 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, 0, protocol.EUnknownSessionID, nil
	}

	obj, ok := t.lookup(directoryID, kindDirectory)
	if !ok {
		return 0, 0, protocol.EUnknownObjectID, nil
	}

	d := obj.dir
	if d.cursor >= len(d.entries) {
		return 0, 0, protocol.ENoMoreData, nil
	}

	entry := d.entries[d.cursor]
	d.cursor++

	return t.allocStringObject(entry.Name), entry.Type, protocol.ESuccess, nil
}

// CreateDirectory implements protocol.Transport.
func (t *Transport) CreateDirectory(nameStringID protocol.ObjectID, flags protocol.DirectoryFlag, permissions uint16, uid, gid uint32) (protocol.ErrorCode, error) {
	if code, err := t.begin("CreateDirectory"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	path, ok := t.stringData(nameStringID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}

	if _, exists := t.dirs[path]; exists {
		if flags&protocol.DirectoryFlagExclusive != 0 {
			return protocol.EAlreadyExists, nil
		}
		return protocol.ESuccess, nil
	}

	t.dirs[path] = nil

	return protocol.ESuccess, nil
}
