package object

import (
	"fmt"
	"sync"

	"github.com/tfchina/brickv/callback"
	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

// StateChangedFunc observes process state transitions. It runs on the
// transport's event goroutine.
type StateChangedFunc func(state protocol.ProcessState, timestamp uint64, exitCode uint8)

// Process is the handle of a remote process object. The command fields and
// stdio handles are owned sub-objects; the run state is pushed by the server
// and mirrored into the handle as events arrive.
type Process struct {
	Handle

	executable       *String
	arguments        *List
	environment      *List
	workingDirectory *String

	uid uint32
	gid uint32

	stdin  Object
	stdout Object
	stderr Object

	token       *callback.Token
	stateCookie callback.Cookie

	// mu guards the event-mirrored run state against the transport's event
	// goroutine.
	mu           sync.Mutex
	eventID      protocol.ObjectID
	pid          uint32
	state        protocol.ProcessState
	timestamp    uint64
	exitCode     uint8
	stateChanged StateChangedFunc
}

// NewProcess creates an unattached process handle.
func NewProcess(s *session.Session) *Process {
	p := &Process{}
	p.Handle = newHandle(s, p)
	return p
}

// attachProcess wraps an already existing process object ID. On failure the
// object ID and any extra sibling IDs obtained from the same fetch are
// released.
func attachProcess(s *session.Session, id protocol.ObjectID, extras ...protocol.ObjectID) (*Process, error) {
	p := NewProcess(s)
	if err := p.Attach(id, true); err != nil {
		for _, extra := range extras {
			releaseUnchecked(s, extra)
		}
		return nil, err
	}
	return p, nil
}

func (p *Process) initialize() {
	if p.executable != nil {
		p.executable.Release()
	}
	if p.arguments != nil {
		p.arguments.Release()
	}
	if p.environment != nil {
		p.environment.Release()
	}
	if p.workingDirectory != nil {
		p.workingDirectory.Release()
	}
	for _, owned := range []Object{p.stdin, p.stdout, p.stderr} {
		if owned != nil {
			owned.Release()
		}
	}

	p.executable = nil
	p.arguments = nil
	p.environment = nil
	p.workingDirectory = nil
	p.uid = 0
	p.gid = 0
	p.stdin = nil
	p.stdout = nil
	p.stderr = nil

	p.mu.Lock()
	p.pid = 0
	p.state = protocol.ProcessStateUnknown
	p.timestamp = 0
	p.exitCode = 0
	p.stateChanged = nil
	p.mu.Unlock()
}

func (p *Process) attachCallbacks() {
	p.mu.Lock()
	p.eventID = p.id
	p.mu.Unlock()

	p.token = callback.NewToken()
	p.stateCookie = p.session.Callbacks().Add(protocol.CallbackProcessStateChanged, p.token, p.onStateChanged)
}

func (p *Process) detachCallbacks() {
	if p.token == nil {
		return
	}

	p.token.Revoke()
	p.session.Callbacks().Remove(protocol.CallbackProcessStateChanged, p.stateCookie)
	p.token = nil

	p.mu.Lock()
	p.eventID = 0
	p.mu.Unlock()
}

// Update fetches all fields of the process.
func (p *Process) Update() error {
	if err := p.UpdateCommand(); err != nil {
		return err
	}
	if err := p.UpdateIdentity(); err != nil {
		return err
	}
	if err := p.UpdateStdio(); err != nil {
		return err
	}
	return p.UpdateState()
}

// UpdateCommand fetches the executable, arguments, environment and working
// directory. The server hands out four fresh object references per fetch; a
// partial decode releases every reference before the error is returned.
func (p *Process) UpdateCommand() error {
	if !p.attached {
		return fmt.Errorf("update process command: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update process command: %w", err)
	}

	cmd, code, err := p.session.Transport().GetProcessCommand(p.id, sid)
	if err != nil {
		return fmt.Errorf("get process command: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get command of process object", code)
	}

	executable, err := attachString(p.session, cmd.ExecutableStringID,
		cmd.ArgumentsListID, cmd.EnvironmentListID, cmd.WorkingDirectoryStringID)
	if err != nil {
		return fmt.Errorf("attach process executable: %w", err)
	}

	arguments, err := attachList(p.session, cmd.ArgumentsListID,
		cmd.EnvironmentListID, cmd.WorkingDirectoryStringID)
	if err != nil {
		executable.Release()
		return fmt.Errorf("attach process arguments: %w", err)
	}

	environment, err := attachList(p.session, cmd.EnvironmentListID, cmd.WorkingDirectoryStringID)
	if err != nil {
		executable.Release()
		arguments.Release()
		return fmt.Errorf("attach process environment: %w", err)
	}

	workingDirectory, err := attachString(p.session, cmd.WorkingDirectoryStringID)
	if err != nil {
		executable.Release()
		arguments.Release()
		environment.Release()
		return fmt.Errorf("attach process working directory: %w", err)
	}

	if p.executable != nil {
		p.executable.Release()
	}
	if p.arguments != nil {
		p.arguments.Release()
	}
	if p.environment != nil {
		p.environment.Release()
	}
	if p.workingDirectory != nil {
		p.workingDirectory.Release()
	}

	p.executable = executable
	p.arguments = arguments
	p.environment = environment
	p.workingDirectory = workingDirectory

	return nil
}

// UpdateIdentity fetches the PID and the user and group the process runs as.
func (p *Process) UpdateIdentity() error {
	if !p.attached {
		return fmt.Errorf("update process identity: %w", ErrNotAttached)
	}

	pid, uid, gid, code, err := p.session.Transport().GetProcessIdentity(p.id)
	if err != nil {
		return fmt.Errorf("get process identity: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get identity of process object", code)
	}

	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()
	p.uid = uid
	p.gid = gid

	return nil
}

// UpdateStdio fetches the stdin, stdout and stderr handles. Each can be a
// file or a pipe; a partial decode releases every reference before the error
// is returned.
func (p *Process) UpdateStdio() error {
	if !p.attached {
		return fmt.Errorf("update process stdio: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update process stdio: %w", err)
	}

	stdinID, stdoutID, stderrID, code, err := p.session.Transport().GetProcessStdio(p.id, sid)
	if err != nil {
		return fmt.Errorf("get process stdio: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get stdio of process object", code)
	}

	stdin, err := AttachFileOrPipe(p.session, stdinID)
	if err != nil {
		releaseUnchecked(p.session, stdoutID)
		releaseUnchecked(p.session, stderrID)
		return fmt.Errorf("attach process stdin: %w", err)
	}

	stdout, err := AttachFileOrPipe(p.session, stdoutID)
	if err != nil {
		stdin.Release()
		releaseUnchecked(p.session, stderrID)
		return fmt.Errorf("attach process stdout: %w", err)
	}

	stderr, err := AttachFileOrPipe(p.session, stderrID)
	if err != nil {
		stdin.Release()
		stdout.Release()
		return fmt.Errorf("attach process stderr: %w", err)
	}

	for _, old := range []Object{p.stdin, p.stdout, p.stderr} {
		if old != nil {
			old.Release()
		}
	}

	p.stdin = stdin
	p.stdout = stdout
	p.stderr = stderr

	return nil
}

// UpdateState fetches the current run state.
func (p *Process) UpdateState() error {
	if !p.attached {
		return fmt.Errorf("update process state: %w", ErrNotAttached)
	}

	state, timestamp, exitCode, code, err := p.session.Transport().GetProcessState(p.id)
	if err != nil {
		return fmt.Errorf("get process state: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get state of process object", code)
	}

	p.mu.Lock()
	p.state = state
	p.timestamp = timestamp
	p.exitCode = exitCode
	p.mu.Unlock()

	return nil
}

// Spawn starts a process on the remote system. The command inputs travel as
// freshly allocated remote objects that the new process handle adopts on
// success, along with the given stdio handles; on failure the allocated
// inputs are released again and the caller keeps its stdio handles.
func (p *Process) Spawn(executable string, arguments, environment []string, workingDirectory string,
	uid, gid uint32, stdin, stdout, stderr Object) error {
	p.Release()

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("spawn process: %w", err)
	}

	executableString := NewString(p.session)
	argumentsList := NewList(p.session)
	environmentList := NewList(p.session)
	workingDirectoryString := NewString(p.session)

	allocated := []Object{executableString, argumentsList, environmentList, workingDirectoryString}
	releaseAllocated := func() {
		for _, obj := range allocated {
			obj.Release()
		}
	}

	if err := executableString.Allocate(executable); err != nil {
		releaseAllocated()
		return fmt.Errorf("spawn process: allocate executable: %w", err)
	}
	if err := argumentsList.Allocate(toItems(arguments)...); err != nil {
		releaseAllocated()
		return fmt.Errorf("spawn process: allocate arguments: %w", err)
	}
	if err := environmentList.Allocate(toItems(environment)...); err != nil {
		releaseAllocated()
		return fmt.Errorf("spawn process: allocate environment: %w", err)
	}
	if err := workingDirectoryString.Allocate(workingDirectory); err != nil {
		releaseAllocated()
		return fmt.Errorf("spawn process: allocate working directory: %w", err)
	}

	executableID, _ := executableString.ObjectID()
	argumentsID, _ := argumentsList.ObjectID()
	environmentID, _ := environmentList.ObjectID()
	workingDirectoryID, _ := workingDirectoryString.ObjectID()
	stdinID, _ := stdin.ObjectID()
	stdoutID, _ := stdout.ObjectID()
	stderrID, _ := stderr.ObjectID()

	id, code, err := p.session.Transport().SpawnProcess(executableID, argumentsID, environmentID,
		workingDirectoryID, uid, gid, stdinID, stdoutID, stderrID, sid)
	if err != nil {
		releaseAllocated()
		return fmt.Errorf("spawn process: %w", err)
	}
	if code != protocol.ESuccess {
		releaseAllocated()
		return protocol.NewError("could not spawn process object", code)
	}

	if err := p.Attach(id, false); err != nil {
		releaseAllocated()
		return err
	}

	p.executable = executableString
	p.arguments = argumentsList
	p.environment = environmentList
	p.workingDirectory = workingDirectoryString
	p.uid = uid
	p.gid = gid
	p.stdin = stdin
	p.stdout = stdout
	p.stderr = stderr

	if err := p.UpdateIdentity(); err != nil {
		p.abandonSpawn()
		return err
	}
	if err := p.UpdateState(); err != nil {
		p.abandonSpawn()
		return err
	}

	return nil
}

// abandonSpawn rolls back a spawn that failed after the attach: the process
// object and the allocated command objects are released, but the stdio
// handles go back to the caller untouched.
func (p *Process) abandonSpawn() {
	p.stdin = nil
	p.stdout = nil
	p.stderr = nil
	p.Release()
}

func toItems(values []string) []interface{} {
	items := make([]interface{}, len(values))
	for i, v := range values {
		items[i] = v
	}
	return items
}

// Kill sends a signal to the process.
func (p *Process) Kill(signal protocol.ProcessSignal) error {
	if !p.attached {
		return fmt.Errorf("kill process: %w", ErrNotAttached)
	}

	code, err := p.session.Transport().KillProcess(p.id, signal)
	if err != nil {
		return fmt.Errorf("kill process: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not kill process object", code)
	}

	return nil
}

// OnStateChanged installs the state transition observer. Passing nil removes
// it. The observer is dropped again when the handle is detached or released.
func (p *Process) OnStateChanged(fn StateChangedFunc) {
	p.mu.Lock()
	p.stateChanged = fn
	p.mu.Unlock()
}

func (p *Process) onStateChanged(args ...interface{}) {
	if len(args) < 4 {
		return
	}
	processID, ok := args[0].(protocol.ObjectID)
	if !ok {
		return
	}
	state, ok := args[1].(protocol.ProcessState)
	if !ok {
		return
	}
	timestamp, ok := args[2].(uint64)
	if !ok {
		return
	}
	exitCode, ok := args[3].(uint8)
	if !ok {
		return
	}

	p.mu.Lock()
	if processID != p.eventID {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.timestamp = timestamp
	p.exitCode = exitCode
	if state != protocol.ProcessStateRunning && state != protocol.ProcessStateStopped {
		p.pid = 0
	}
	fn := p.stateChanged
	p.mu.Unlock()

	if fn != nil {
		fn(state, timestamp, exitCode)
	}
}

// Executable returns the executable string handle. The process owns it.
func (p *Process) Executable() *String { return p.executable }

// Arguments returns the argument list handle. The process owns it.
func (p *Process) Arguments() *List { return p.arguments }

// Environment returns the environment list handle. The process owns it.
func (p *Process) Environment() *List { return p.environment }

// WorkingDirectory returns the working directory string handle. The process
// owns it.
func (p *Process) WorkingDirectory() *String { return p.workingDirectory }

// PID returns the process ID on the remote system, or zero once the process
// has reached a terminal state.
func (p *Process) PID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// UID returns the user the process runs as.
func (p *Process) UID() uint32 { return p.uid }

// GID returns the group the process runs as.
func (p *Process) GID() uint32 { return p.gid }

// Stdin returns the stdin handle, a File or Pipe. The process owns it.
func (p *Process) Stdin() Object { return p.stdin }

// Stdout returns the stdout handle, a File or Pipe. The process owns it.
func (p *Process) Stdout() Object { return p.stdout }

// Stderr returns the stderr handle, a File or Pipe. The process owns it.
func (p *Process) Stderr() Object { return p.stderr }

// State returns the run state, the timestamp of the last transition and the
// exit code. The exit code is only meaningful for the exited, error and
// stopped states.
func (p *Process) State() (protocol.ProcessState, uint64, uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.timestamp, p.exitCode
}

// Processes fetches the list of processes running on the remote system. The
// returned list owns one attached Process handle per item; the caller owns
// the list.
func Processes(s *session.Session) (*List, error) {
	sid, ok := s.ID()
	if !ok {
		return nil, fmt.Errorf("get processes: %w", ErrSessionExpired)
	}

	listID, code, err := s.Transport().GetProcesses(sid)
	if err != nil {
		return nil, fmt.Errorf("get processes: %w", err)
	}
	if code != protocol.ESuccess {
		return nil, protocol.NewError("could not get list of processes", code)
	}

	return attachList(s, listID)
}
