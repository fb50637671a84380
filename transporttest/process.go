package transporttest

import (
	"github.com/tfchina/brickv/protocol"
)

// ProcessDef seeds or describes one remote process.
type ProcessDef struct {
	Executable       string
	Arguments        []string
	Environment      []string
	WorkingDirectory string

	PID uint32
	UID uint32
	GID uint32

	State     protocol.ProcessState
	Timestamp uint64
	ExitCode  uint8
}

// processEntry is the server-side record behind one or more handed-out
// process objects. The stdio buffers are created lazily on first access.
type processEntry struct {
	def ProcessDef

	stdin  *vfile
	stdout *vfile
	stderr *vfile
}

// AddProcess seeds a running process that GetProcesses will report.
func (t *Transport) AddProcess(def ProcessDef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processes = append(t.processes, &processEntry{def: def})
}

// EmitProcessStateChange transitions the process behind the given object ID
// and delivers the matching push event.
func (t *Transport) EmitProcessStateChange(processID protocol.ObjectID, state protocol.ProcessState, timestamp uint64, exitCode uint8) {
	t.mu.Lock()
	obj, ok := t.lookup(processID, kindProcess)
	if ok {
		obj.proc.def.State = state
		obj.proc.def.Timestamp = timestamp
		obj.proc.def.ExitCode = exitCode
	}
	t.mu.Unlock()

	if ok {
		t.emit(protocol.CallbackProcessStateChanged, processID, state, timestamp, exitCode)
	}
}

// allocStringList builds a list object holding one string object per value.
func (t *Transport) allocStringList(values []string) protocol.ObjectID {
	items := make([]protocol.ObjectID, len(values))
	for i, v := range values {
		items[i] = t.allocStringObject(v)
	}
	return t.newObject(&object{kind: kindList, list: &listState{items: items}})
}

// GetProcesses implements protocol.Transport. The returned list holds one
// fresh process object per known process.
func (t *Transport) GetProcesses(sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProcesses"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	items := make([]protocol.ObjectID, len(t.processes))
	for i, entry := range t.processes {
		items[i] = t.newObject(&object{kind: kindProcess, proc: entry})
	}

	return t.newObject(&object{kind: kindList, list: &listState{items: items}}), protocol.ESuccess, nil
}

// SpawnProcess implements protocol.Transport. The command inputs are resolved
// to plain values; the transport does not retain references to them.
func (t *Transport) SpawnProcess(executableStringID, argumentsListID, environmentListID, workingDirectoryStringID protocol.ObjectID,
	uid, gid uint32, stdinFileID, stdoutFileID, stderrFileID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("SpawnProcess"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	executable, ok := t.stringData(executableStringID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}
	arguments, ok := t.listStrings(argumentsListID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}
	environment, ok := t.listStrings(environmentListID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}
	workingDirectory, ok := t.stringData(workingDirectoryStringID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	stdioBuffer := func(id protocol.ObjectID) (*vfile, bool) {
		obj, ok := t.lookup(id, kindFile)
		if !ok {
			return nil, false
		}
		return obj.file.v, true
	}

	stdin, ok := stdioBuffer(stdinFileID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}
	stdout, ok := stdioBuffer(stdoutFileID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}
	stderr, ok := stdioBuffer(stderrFileID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	t.nextPID++
	entry := &processEntry{
		def: ProcessDef{
			Executable:       executable,
			Arguments:        arguments,
			Environment:      environment,
			WorkingDirectory: workingDirectory,
			PID:              t.nextPID,
			UID:              uid,
			GID:              gid,
			State:            protocol.ProcessStateRunning,
		},
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	t.processes = append(t.processes, entry)

	return t.newObject(&object{kind: kindProcess, proc: entry}), protocol.ESuccess, nil
}

// KillProcess implements protocol.Transport. The state transition is
// delivered as a push event, like the real server does.
func (t *Transport) KillProcess(processID protocol.ObjectID, signal protocol.ProcessSignal) (protocol.ErrorCode, error) {
	if code, err := t.begin("KillProcess"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	obj, ok := t.lookup(processID, kindProcess)
	if !ok {
		t.mu.Unlock()
		return protocol.EUnknownObjectID, nil
	}

	obj.proc.def.State = protocol.ProcessStateKilled
	obj.proc.def.Timestamp++
	state := obj.proc.def.State
	timestamp := obj.proc.def.Timestamp
	exitCode := obj.proc.def.ExitCode
	t.mu.Unlock()

	t.emit(protocol.CallbackProcessStateChanged, processID, state, timestamp, exitCode)

	return protocol.ESuccess, nil
}

// GetProcessCommand implements protocol.Transport. All four fields are handed
// out as fresh object references.
func (t *Transport) GetProcessCommand(processID protocol.ObjectID, sessionID protocol.SessionID) (protocol.Command, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProcessCommand"); err != nil || code != protocol.ESuccess {
		return protocol.Command{}, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return protocol.Command{}, protocol.EUnknownSessionID, nil
	}

	obj, ok := t.lookup(processID, kindProcess)
	if !ok {
		return protocol.Command{}, protocol.EUnknownObjectID, nil
	}

	def := obj.proc.def

	return protocol.Command{
		ExecutableStringID:       t.allocStringObject(def.Executable),
		ArgumentsListID:          t.allocStringList(def.Arguments),
		EnvironmentListID:        t.allocStringList(def.Environment),
		WorkingDirectoryStringID: t.allocStringObject(def.WorkingDirectory),
	}, protocol.ESuccess, nil
}

// GetProcessIdentity implements protocol.Transport.
func (t *Transport) GetProcessIdentity(processID protocol.ObjectID) (pid, uid, gid uint32, code protocol.ErrorCode, err error) {
	if code, err := t.begin("GetProcessIdentity"); err != nil || code != protocol.ESuccess {
		return 0, 0, 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(processID, kindProcess)
	if !ok {
		return 0, 0, 0, protocol.EUnknownObjectID, nil
	}

	def := obj.proc.def

	return def.PID, def.UID, def.GID, protocol.ESuccess, nil
}

// GetProcessStdio implements protocol.Transport. The streams are handed out
// as fresh pipe objects sharing the process's buffers.
func (t *Transport) GetProcessStdio(processID protocol.ObjectID, sessionID protocol.SessionID) (stdin, stdout, stderr protocol.ObjectID, code protocol.ErrorCode, err error) {
	if code, err := t.begin("GetProcessStdio"); err != nil || code != protocol.ESuccess {
		return 0, 0, 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, 0, 0, protocol.EUnknownSessionID, nil
	}

	obj, ok := t.lookup(processID, kindProcess)
	if !ok {
		return 0, 0, 0, protocol.EUnknownObjectID, nil
	}

	entry := obj.proc
	if entry.stdin == nil {
		entry.stdin = &vfile{}
	}
	if entry.stdout == nil {
		entry.stdout = &vfile{}
	}
	if entry.stderr == nil {
		entry.stderr = &vfile{}
	}

	pipe := func(v *vfile) protocol.ObjectID {
		return t.newObject(&object{kind: kindFile, file: &fileState{pipe: true, v: v}})
	}

	return pipe(entry.stdin), pipe(entry.stdout), pipe(entry.stderr), protocol.ESuccess, nil
}

// GetProcessState implements protocol.Transport.
func (t *Transport) GetProcessState(processID protocol.ObjectID) (protocol.ProcessState, uint64, uint8, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProcessState"); err != nil || code != protocol.ESuccess {
		return 0, 0, 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.lookup(processID, kindProcess)
	if !ok {
		return 0, 0, 0, protocol.EUnknownObjectID, nil
	}

	def := obj.proc.def

	return def.State, def.Timestamp, def.ExitCode, protocol.ESuccess, nil
}
