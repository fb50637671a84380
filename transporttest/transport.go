// Package transporttest provides an in-memory Transport with real chunk,
// session and reference-counting semantics. It backs the package tests and
// the demo binary: tests seed remote state, inject per-call failures and
// assert afterwards that every handed-out object reference was released.
//
// Push events are delivered on a dedicated goroutine, like a real transport
// delivers them on its receive loop. Tests synchronize with Sync, which
// round-trips a marker through the event queue.
package transporttest

import (
	"sync"

	"github.com/tfchina/brickv/protocol"
)

type objectKind uint8

const (
	kindString objectKind = iota
	kindList
	kindFile
	kindDirectory
	kindProcess
	kindProgram
)

type stringState struct {
	reserved uint32
	data     []byte
}

type listState struct {
	items []protocol.ObjectID
}

// object is one handed-out reference table slot. refs counts client-visible
// references; at zero the slot is removed, cascading into list items.
type object struct {
	kind objectKind
	refs int

	str  *stringState
	list *listState
	file *fileState
	dir  *dirState
	proc *processEntry
	prog *programDef
}

type failure struct {
	code protocol.ErrorCode
	err  error
}

// DirEntry seeds one directory entry.
type DirEntry struct {
	Name string
	Type protocol.DirectoryEntryType
}

// Transport is an in-memory protocol.Transport. The zero value is not usable;
// create one with New and Close it to stop the event goroutine.
type Transport struct {
	mu sync.Mutex

	nextSessionID protocol.SessionID
	sessions      map[protocol.SessionID]uint32

	nextObjectID protocol.ObjectID
	objects      map[protocol.ObjectID]*object
	released     []protocol.ObjectID

	files       map[string]*vfile
	dirs        map[string][]DirEntry
	symlinks    map[string]string
	shortWrites []uint8

	processes []*processEntry
	programs  []*programDef
	nextPID   uint32

	calls    map[string]int
	failures map[string][]failure

	handlers map[protocol.CallbackID]protocol.CallbackHandler

	events chan func()
	idle   sync.WaitGroup
}

// New creates an empty transport and starts its event goroutine.
func New() *Transport {
	t := &Transport{
		nextSessionID: 1,
		sessions:      make(map[protocol.SessionID]uint32),
		nextObjectID:  1,
		objects:       make(map[protocol.ObjectID]*object),
		files:         make(map[string]*vfile),
		dirs:          make(map[string][]DirEntry),
		symlinks:      make(map[string]string),
		calls:         make(map[string]int),
		failures:      make(map[string][]failure),
		handlers:      make(map[protocol.CallbackID]protocol.CallbackHandler),
		events:        make(chan func(), 256),
	}

	t.idle.Add(1)
	go func() {
		defer t.idle.Done()
		for fn := range t.events {
			fn()
		}
	}()

	return t
}

// Close stops the event goroutine after draining pending events.
func (t *Transport) Close() {
	close(t.events)
	t.idle.Wait()
}

// Sync blocks until every event enqueued before the call was delivered.
func (t *Transport) Sync() {
	done := make(chan struct{})
	t.events <- func() { close(done) }
	<-done
}

// FailNext makes the next call of the named transport method return the given
// error code. Repeated calls queue up.
func (t *Transport) FailNext(op string, code protocol.ErrorCode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[op] = append(t.failures[op], failure{code: code})
}

// FailNextError makes the next call of the named transport method fail at the
// transport level, as if the connection broke.
func (t *Transport) FailNextError(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[op] = append(t.failures[op], failure{err: err})
}

// Calls returns how often the named transport method was invoked.
func (t *Transport) Calls(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// ActiveObjects returns the number of object references the client has not
// released yet. Zero after a clean teardown.
func (t *Transport) ActiveObjects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objects)
}

// Released returns the object IDs released so far, in release order. An ID
// appears once per reference given out.
func (t *Transport) Released() []protocol.ObjectID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.ObjectID(nil), t.released...)
}

// SeedFile places a file into the in-memory filesystem.
func (t *Transport) SeedFile(path string, content []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[path] = &vfile{content: append([]byte(nil), content...)}
}

// FileContent returns the current content of a seeded or created file.
func (t *Transport) FileContent(path string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.files[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v.content...), true
}

// SeedDirectory places a directory with the given entries into the in-memory
// filesystem.
func (t *Transport) SeedDirectory(path string, entries []DirEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirs[path] = append([]DirEntry(nil), entries...)
}

// SeedSymlink places a symlink into the in-memory filesystem.
func (t *Transport) SeedSymlink(path, target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.symlinks[path] = target
}

// begin counts one call of op and pops a pending injected failure, if any.
func (t *Transport) begin(op string) (protocol.ErrorCode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls[op]++

	if q := t.failures[op]; len(q) > 0 {
		f := q[0]
		t.failures[op] = q[1:]
		if f.err != nil {
			return protocol.ESuccess, f.err
		}
		return f.code, nil
	}

	return protocol.ESuccess, nil
}

func (t *Transport) newObject(obj *object) protocol.ObjectID {
	id := t.nextObjectID
	t.nextObjectID++
	obj.refs = 1
	t.objects[id] = obj
	return id
}

func (t *Transport) allocStringObject(data string) protocol.ObjectID {
	return t.newObject(&object{kind: kindString, str: &stringState{data: []byte(data)}})
}

// ref hands out one more reference to an existing object.
func (t *Transport) ref(id protocol.ObjectID) {
	if obj, ok := t.objects[id]; ok {
		obj.refs++
	}
}

// unref drops one reference; the last one removes the slot. Removing a list
// drops its references to the items.
func (t *Transport) unref(id protocol.ObjectID) {
	obj, ok := t.objects[id]
	if !ok {
		return
	}

	obj.refs--
	if obj.refs > 0 {
		return
	}

	delete(t.objects, id)

	if obj.kind == kindList {
		for _, item := range obj.list.items {
			t.unref(item)
		}
	}
}

func (t *Transport) lookup(id protocol.ObjectID, kind objectKind) (*object, bool) {
	obj, ok := t.objects[id]
	if !ok || obj.kind != kind {
		return nil, false
	}
	return obj, true
}

// stringData resolves a string object to its contents.
func (t *Transport) stringData(id protocol.ObjectID) (string, bool) {
	obj, ok := t.lookup(id, kindString)
	if !ok {
		return "", false
	}
	return string(obj.str.data), true
}

// listStrings resolves a list object to the contents of its string items.
func (t *Transport) listStrings(id protocol.ObjectID) ([]string, bool) {
	obj, ok := t.lookup(id, kindList)
	if !ok {
		return nil, false
	}

	values := make([]string, 0, len(obj.list.items))
	for _, item := range obj.list.items {
		data, ok := t.stringData(item)
		if !ok {
			return nil, false
		}
		values = append(values, data)
	}
	return values, true
}

func (t *Transport) validSession(sid protocol.SessionID) bool {
	_, ok := t.sessions[sid]
	return ok
}

// emit queues one push-event delivery.
func (t *Transport) emit(id protocol.CallbackID, args ...interface{}) {
	t.mu.Lock()
	fn := t.handlers[id]
	t.mu.Unlock()

	if fn == nil {
		return
	}

	t.events <- func() { fn(args...) }
}

// RegisterCallback implements protocol.Transport.
func (t *Transport) RegisterCallback(id protocol.CallbackID, fn protocol.CallbackHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[id] = fn
}

// CreateSession implements protocol.Transport.
func (t *Transport) CreateSession(lifetime uint32) (protocol.SessionID, protocol.ErrorCode, error) {
	if code, err := t.begin("CreateSession"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSessionID
	t.nextSessionID++
	t.sessions[id] = lifetime

	return id, protocol.ESuccess, nil
}

// ExpireSessionUnchecked implements protocol.Transport.
func (t *Transport) ExpireSessionUnchecked(sessionID protocol.SessionID) error {
	if _, err := t.begin("ExpireSessionUnchecked"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)

	return nil
}

// KeepSessionAlive implements protocol.Transport.
func (t *Transport) KeepSessionAlive(sessionID protocol.SessionID, lifetime uint32) (protocol.ErrorCode, error) {
	if code, err := t.begin("KeepSessionAlive"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return protocol.EUnknownSessionID, nil
	}
	t.sessions[sessionID] = lifetime

	return protocol.ESuccess, nil
}

// ReleaseObjectUnchecked implements protocol.Transport.
func (t *Transport) ReleaseObjectUnchecked(objectID protocol.ObjectID, sessionID protocol.SessionID) error {
	if _, err := t.begin("ReleaseObjectUnchecked"); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.released = append(t.released, objectID)
	t.unref(objectID)

	return nil
}

// AllocateString implements protocol.Transport.
func (t *Transport) AllocateString(lengthToReserve uint32, chunk string, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("AllocateString"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}
	if len(chunk) > protocol.StringMaxAllocateChunk {
		return 0, protocol.EInvalidParameter, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	id := t.newObject(&object{kind: kindString, str: &stringState{
		reserved: lengthToReserve,
		data:     []byte(chunk),
	}})

	return id, protocol.ESuccess, nil
}

// GetStringLength implements protocol.Transport.
func (t *Transport) GetStringLength(stringID protocol.ObjectID) (uint32, protocol.ErrorCode, error) {
	if code, err := t.begin("GetStringLength"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(stringID, kindString)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	return uint32(len(obj.str.data)), protocol.ESuccess, nil
}

// SetStringChunk implements protocol.Transport.
func (t *Transport) SetStringChunk(stringID protocol.ObjectID, offset uint32, chunk string) (protocol.ErrorCode, error) {
	if code, err := t.begin("SetStringChunk"); err != nil || code != protocol.ESuccess {
		return code, err
	}
	if len(chunk) > protocol.StringMaxSetChunk {
		return protocol.EInvalidParameter, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(stringID, kindString)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}

	end := int(offset) + len(chunk)
	if end > len(obj.str.data) {
		grown := make([]byte, end)
		copy(grown, obj.str.data)
		obj.str.data = grown
	}
	copy(obj.str.data[offset:], chunk)

	return protocol.ESuccess, nil
}

// GetStringChunk implements protocol.Transport.
func (t *Transport) GetStringChunk(stringID protocol.ObjectID, offset uint32) (string, protocol.ErrorCode, error) {
	if code, err := t.begin("GetStringChunk"); err != nil || code != protocol.ESuccess {
		return "", code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(stringID, kindString)
	if !ok {
		return "", protocol.EUnknownObjectID, nil
	}

	data := obj.str.data
	if int(offset) >= len(data) {
		return "", protocol.ESuccess, nil
	}

	end := min(len(data), int(offset)+protocol.StringMaxGetChunk)

	return string(data[offset:end]), protocol.ESuccess, nil
}

// AllocateList implements protocol.Transport.
func (t *Transport) AllocateList(lengthToReserve uint16, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("AllocateList"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	id := t.newObject(&object{kind: kindList, list: &listState{}})

	return id, protocol.ESuccess, nil
}

// GetListLength implements protocol.Transport.
func (t *Transport) GetListLength(listID protocol.ObjectID) (uint16, protocol.ErrorCode, error) {
	if code, err := t.begin("GetListLength"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(listID, kindList)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	return uint16(len(obj.list.items)), protocol.ESuccess, nil
}

// GetListItem implements protocol.Transport.
func (t *Transport) GetListItem(listID protocol.ObjectID, index uint16, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ObjectType, protocol.ErrorCode, error) {
	if code, err := t.begin("GetListItem"); err != nil || code != protocol.ESuccess {
		return 0, 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, 0, protocol.EUnknownSessionID, nil
	}

	obj, ok := t.lookup(listID, kindList)
	if !ok {
		return 0, 0, protocol.EUnknownObjectID, nil
	}
	if int(index) >= len(obj.list.items) {
		return 0, 0, protocol.EOutOfRange, nil
	}

	itemID := obj.list.items[index]
	item := t.objects[itemID]
	if item == nil {
		return 0, 0, protocol.EInternalError, nil
	}

	var itemType protocol.ObjectType
	switch item.kind {
	case kindString:
		itemType = protocol.ObjectTypeString
	case kindList:
		itemType = protocol.ObjectTypeList
	case kindFile:
		itemType = protocol.ObjectTypeFile
	case kindDirectory:
		itemType = protocol.ObjectTypeDirectory
	case kindProcess:
		itemType = protocol.ObjectTypeProcess
	case kindProgram:
		itemType = protocol.ObjectTypeProgram
	}

	t.ref(itemID)

	return itemID, itemType, protocol.ESuccess, nil
}

// AppendToList implements protocol.Transport.
func (t *Transport) AppendToList(listID, itemID protocol.ObjectID) (protocol.ErrorCode, error) {
	if code, err := t.begin("AppendToList"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(listID, kindList)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}
	if _, ok := t.objects[itemID]; !ok {
		return protocol.EUnknownObjectID, nil
	}

	// The list holds its own reference to the item.
	t.ref(itemID)
	obj.list.items = append(obj.list.items, itemID)

	return protocol.ESuccess, nil
}

var _ protocol.Transport = (*Transport)(nil)
