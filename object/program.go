package object

import (
	"fmt"
	"sync"

	"github.com/tfchina/brickv/callback"
	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
)

// Redirection configures one stdio stream of a scheduled program. FileName is
// only used when Target is StdioRedirectionFile.
type Redirection struct {
	Target   protocol.StdioRedirection
	FileName string
}

// SchedulerStateChangedFunc observes scheduler state transitions. It runs on
// the transport's event goroutine.
type SchedulerStateChangedFunc func(state protocol.SchedulerState, timestamp uint64)

// ProcessSpawnedFunc observes processes spawned by the scheduler. The program
// owns the process handle. It runs on the transport's event goroutine.
type ProcessSpawnedFunc func(process *Process, timestamp uint64)

// Program is the handle of a remote program object: a persistent definition
// of a command, its stdio redirections and a start schedule. The scheduler
// state and the last spawned process are pushed by the server and refetched
// as events arrive.
type Program struct {
	Handle

	identifier    *String
	rootDirectory *String

	executable       *String
	arguments        *List
	environment      *List
	workingDirectory *String

	stdinRedirection  protocol.StdioRedirection
	stdinFileName     *String
	stdoutRedirection protocol.StdioRedirection
	stdoutFileName    *String
	stderrRedirection protocol.StdioRedirection
	stderrFileName    *String

	startCondition protocol.StartCondition
	startTimestamp uint64
	startDelay     uint32
	repeatMode     protocol.RepeatMode
	repeatInterval uint32
	repeatFields   *String

	customOptions map[string]string

	token           *callback.Token
	schedulerCookie callback.Cookie
	spawnedCookie   callback.Cookie

	// mu guards the event-refetched state against the transport's event
	// goroutine.
	mu                    sync.Mutex
	eventID               protocol.ObjectID
	schedulerState        protocol.SchedulerState
	schedulerTimestamp    uint64
	schedulerMessage      *String
	lastSpawnedProcess    *Process
	lastSpawnedTimestamp  uint64
	schedulerStateChanged SchedulerStateChangedFunc
	processSpawned        ProcessSpawnedFunc
}

// NewProgram creates an unattached program handle.
func NewProgram(s *session.Session) *Program {
	p := &Program{}
	p.Handle = newHandle(s, p)
	return p
}

// attachProgram wraps an already defined program object ID. On failure the
// object ID and any extra sibling IDs obtained from the same fetch are
// released.
func attachProgram(s *session.Session, id protocol.ObjectID, extras ...protocol.ObjectID) (*Program, error) {
	p := NewProgram(s)
	if err := p.Attach(id, true); err != nil {
		for _, extra := range extras {
			releaseUnchecked(s, extra)
		}
		return nil, err
	}
	return p, nil
}

func (p *Program) initialize() {
	if p.identifier != nil {
		p.identifier.Release()
	}
	if p.rootDirectory != nil {
		p.rootDirectory.Release()
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
	if p.stdinFileName != nil {
		p.stdinFileName.Release()
	}
	if p.stdoutFileName != nil {
		p.stdoutFileName.Release()
	}
	if p.stderrFileName != nil {
		p.stderrFileName.Release()
	}
	if p.repeatFields != nil {
		p.repeatFields.Release()
	}

	p.identifier = nil
	p.rootDirectory = nil
	p.executable = nil
	p.arguments = nil
	p.environment = nil
	p.workingDirectory = nil
	p.stdinRedirection = protocol.StdioRedirectionDevNull
	p.stdinFileName = nil
	p.stdoutRedirection = protocol.StdioRedirectionDevNull
	p.stdoutFileName = nil
	p.stderrRedirection = protocol.StdioRedirectionDevNull
	p.stderrFileName = nil
	p.startCondition = protocol.StartConditionNever
	p.startTimestamp = 0
	p.startDelay = 0
	p.repeatMode = protocol.RepeatModeNever
	p.repeatInterval = 0
	p.repeatFields = nil
	p.customOptions = nil

	p.mu.Lock()
	message := p.schedulerMessage
	process := p.lastSpawnedProcess
	p.schedulerState = protocol.SchedulerStateStopped
	p.schedulerTimestamp = 0
	p.schedulerMessage = nil
	p.lastSpawnedProcess = nil
	p.lastSpawnedTimestamp = 0
	p.schedulerStateChanged = nil
	p.processSpawned = nil
	p.mu.Unlock()

	if message != nil {
		message.Release()
	}
	if process != nil {
		process.Release()
	}
}

func (p *Program) attachCallbacks() {
	p.mu.Lock()
	p.eventID = p.id
	p.mu.Unlock()

	p.token = callback.NewToken()
	p.schedulerCookie = p.session.Callbacks().Add(protocol.CallbackProgramSchedulerStateChange, p.token, p.onSchedulerStateChanged)
	p.spawnedCookie = p.session.Callbacks().Add(protocol.CallbackProgramProcessSpawned, p.token, p.onProcessSpawned)
}

func (p *Program) detachCallbacks() {
	if p.token == nil {
		return
	}

	p.token.Revoke()
	p.session.Callbacks().Remove(protocol.CallbackProgramSchedulerStateChange, p.schedulerCookie)
	p.session.Callbacks().Remove(protocol.CallbackProgramProcessSpawned, p.spawnedCookie)
	p.token = nil

	p.mu.Lock()
	p.eventID = 0
	p.mu.Unlock()
}

// Update fetches all fields of the program.
func (p *Program) Update() error {
	if err := p.UpdateIdentifier(); err != nil {
		return err
	}
	if err := p.UpdateRootDirectory(); err != nil {
		return err
	}
	if err := p.UpdateCommand(); err != nil {
		return err
	}
	if err := p.UpdateStdioRedirection(); err != nil {
		return err
	}
	if err := p.UpdateSchedule(); err != nil {
		return err
	}
	if err := p.UpdateSchedulerState(); err != nil {
		return err
	}
	if err := p.UpdateLastSpawnedProcess(); err != nil {
		return err
	}
	return p.UpdateCustomOptions()
}

// UpdateIdentifier fetches the program identifier.
func (p *Program) UpdateIdentifier() error {
	if !p.attached {
		return fmt.Errorf("update program identifier: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update program identifier: %w", err)
	}

	identifierID, code, err := p.session.Transport().GetProgramIdentifier(p.id, sid)
	if err != nil {
		return fmt.Errorf("get program identifier: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get identifier of program object", code)
	}

	identifier, err := attachString(p.session, identifierID)
	if err != nil {
		return fmt.Errorf("attach program identifier: %w", err)
	}

	if p.identifier != nil {
		p.identifier.Release()
	}
	p.identifier = identifier

	return nil
}

// UpdateRootDirectory fetches the per-program root directory path.
func (p *Program) UpdateRootDirectory() error {
	if !p.attached {
		return fmt.Errorf("update program root directory: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update program root directory: %w", err)
	}

	rootID, code, err := p.session.Transport().GetProgramRootDirectory(p.id, sid)
	if err != nil {
		return fmt.Errorf("get program root directory: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get root directory of program object", code)
	}

	root, err := attachString(p.session, rootID)
	if err != nil {
		return fmt.Errorf("attach program root directory: %w", err)
	}

	if p.rootDirectory != nil {
		p.rootDirectory.Release()
	}
	p.rootDirectory = root

	return nil
}

// UpdateCommand fetches the executable, arguments, environment and working
// directory. A partial decode releases every fresh reference before the error
// is returned.
func (p *Program) UpdateCommand() error {
	if !p.attached {
		return fmt.Errorf("update program command: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update program command: %w", err)
	}

	cmd, code, err := p.session.Transport().GetProgramCommand(p.id, sid)
	if err != nil {
		return fmt.Errorf("get program command: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get command of program object", code)
	}

	executable, err := attachString(p.session, cmd.ExecutableStringID,
		cmd.ArgumentsListID, cmd.EnvironmentListID, cmd.WorkingDirectoryStringID)
	if err != nil {
		return fmt.Errorf("attach program executable: %w", err)
	}

	arguments, err := attachList(p.session, cmd.ArgumentsListID,
		cmd.EnvironmentListID, cmd.WorkingDirectoryStringID)
	if err != nil {
		executable.Release()
		return fmt.Errorf("attach program arguments: %w", err)
	}

	environment, err := attachList(p.session, cmd.EnvironmentListID, cmd.WorkingDirectoryStringID)
	if err != nil {
		executable.Release()
		arguments.Release()
		return fmt.Errorf("attach program environment: %w", err)
	}

	workingDirectory, err := attachString(p.session, cmd.WorkingDirectoryStringID)
	if err != nil {
		executable.Release()
		arguments.Release()
		environment.Release()
		return fmt.Errorf("attach program working directory: %w", err)
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

// UpdateStdioRedirection fetches the stdio redirections. File name references
// are only handed out for streams redirected to a file; a partial decode
// releases every fresh reference before the error is returned.
func (p *Program) UpdateStdioRedirection() error {
	if !p.attached {
		return fmt.Errorf("update program stdio redirection: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update program stdio redirection: %w", err)
	}

	info, code, err := p.session.Transport().GetProgramStdioRedirection(p.id, sid)
	if err != nil {
		return fmt.Errorf("get program stdio redirection: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get stdio redirection of program object", code)
	}

	var extras []protocol.ObjectID
	if info.StdoutRedirection == protocol.StdioRedirectionFile {
		extras = append(extras, info.StdoutFileNameStringID)
	}
	if info.StderrRedirection == protocol.StdioRedirectionFile {
		extras = append(extras, info.StderrFileNameStringID)
	}

	var stdinName, stdoutName, stderrName *String

	if info.StdinRedirection == protocol.StdioRedirectionFile {
		stdinName, err = attachString(p.session, info.StdinFileNameStringID, extras...)
		if err != nil {
			return fmt.Errorf("attach program stdin file name: %w", err)
		}
	}

	if info.StdoutRedirection == protocol.StdioRedirectionFile {
		var stderrExtras []protocol.ObjectID
		if info.StderrRedirection == protocol.StdioRedirectionFile {
			stderrExtras = append(stderrExtras, info.StderrFileNameStringID)
		}

		stdoutName, err = attachString(p.session, info.StdoutFileNameStringID, stderrExtras...)
		if err != nil {
			if stdinName != nil {
				stdinName.Release()
			}
			return fmt.Errorf("attach program stdout file name: %w", err)
		}
	}

	if info.StderrRedirection == protocol.StdioRedirectionFile {
		stderrName, err = attachString(p.session, info.StderrFileNameStringID)
		if err != nil {
			if stdinName != nil {
				stdinName.Release()
			}
			if stdoutName != nil {
				stdoutName.Release()
			}
			return fmt.Errorf("attach program stderr file name: %w", err)
		}
	}

	if p.stdinFileName != nil {
		p.stdinFileName.Release()
	}
	if p.stdoutFileName != nil {
		p.stdoutFileName.Release()
	}
	if p.stderrFileName != nil {
		p.stderrFileName.Release()
	}

	p.stdinRedirection = info.StdinRedirection
	p.stdinFileName = stdinName
	p.stdoutRedirection = info.StdoutRedirection
	p.stdoutFileName = stdoutName
	p.stderrRedirection = info.StderrRedirection
	p.stderrFileName = stderrName

	return nil
}

// UpdateSchedule fetches the start schedule. The repeat fields reference is
// only handed out for cron repetition.
func (p *Program) UpdateSchedule() error {
	if !p.attached {
		return fmt.Errorf("update program schedule: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update program schedule: %w", err)
	}

	sched, code, err := p.session.Transport().GetProgramSchedule(p.id, sid)
	if err != nil {
		return fmt.Errorf("get program schedule: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get schedule of program object", code)
	}

	var repeatFields *String
	if sched.RepeatMode == protocol.RepeatModeCron {
		repeatFields, err = attachString(p.session, sched.RepeatFieldsStringID)
		if err != nil {
			return fmt.Errorf("attach program repeat fields: %w", err)
		}
	}

	if p.repeatFields != nil {
		p.repeatFields.Release()
	}

	p.startCondition = sched.StartCondition
	p.startTimestamp = sched.StartTimestamp
	p.startDelay = sched.StartDelay
	p.repeatMode = sched.RepeatMode
	p.repeatInterval = sched.RepeatInterval
	p.repeatFields = repeatFields

	return nil
}

// UpdateSchedulerState fetches the scheduler state and its message.
func (p *Program) UpdateSchedulerState() error {
	if !p.attached {
		return fmt.Errorf("update program scheduler state: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update program scheduler state: %w", err)
	}

	state, timestamp, messageID, code, err := p.session.Transport().GetProgramSchedulerState(p.id, sid)
	if err != nil {
		return fmt.Errorf("get program scheduler state: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get scheduler state of program object", code)
	}

	// The message only carries meaning for the error state; outside of it any
	// handed-out reference is dropped.
	var message *String
	if messageID != 0 {
		if state == protocol.SchedulerStateErrorOccurred {
			message, err = attachString(p.session, messageID)
			if err != nil {
				return fmt.Errorf("attach program scheduler message: %w", err)
			}
		} else {
			releaseUnchecked(p.session, messageID)
		}
	}

	p.mu.Lock()
	old := p.schedulerMessage
	p.schedulerState = state
	p.schedulerTimestamp = timestamp
	p.schedulerMessage = message
	p.mu.Unlock()

	if old != nil {
		old.Release()
	}

	return nil
}

// UpdateLastSpawnedProcess fetches the process most recently spawned by the
// scheduler. A program that never spawned anything is not an error; the
// process handle is simply nil then.
func (p *Program) UpdateLastSpawnedProcess() error {
	if !p.attached {
		return fmt.Errorf("update last spawned process: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update last spawned process: %w", err)
	}

	processID, timestamp, code, err := p.session.Transport().GetLastSpawnedProgramProcess(p.id, sid)
	if err != nil {
		return fmt.Errorf("get last spawned program process: %w", err)
	}

	var process *Process
	switch code {
	case protocol.ESuccess:
		process, err = attachProcess(p.session, processID)
		if err != nil {
			return fmt.Errorf("attach last spawned process: %w", err)
		}
	case protocol.EDoesNotExist:
		// Nothing spawned yet.
	default:
		return protocol.NewError("could not get last spawned process of program object", code)
	}

	p.mu.Lock()
	old := p.lastSpawnedProcess
	p.lastSpawnedProcess = process
	p.lastSpawnedTimestamp = timestamp
	p.mu.Unlock()

	if old != nil {
		old.Release()
	}

	return nil
}

// UpdateCustomOptions fetches all custom options into a name-to-value map.
// The remote name and value strings are transient; only their contents are
// kept.
func (p *Program) UpdateCustomOptions() error {
	if !p.attached {
		return fmt.Errorf("update custom options: %w", ErrNotAttached)
	}

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("update custom options: %w", err)
	}

	namesID, code, err := p.session.Transport().GetCustomProgramOptionNames(p.id, sid)
	if err != nil {
		return fmt.Errorf("get custom option names: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not get custom option names of program object", code)
	}

	names, err := attachList(p.session, namesID)
	if err != nil {
		return fmt.Errorf("attach custom option names: %w", err)
	}
	defer names.Release()

	options := make(map[string]string, len(names.Items()))
	for i, item := range names.Items() {
		name, ok := item.(*String)
		if !ok {
			return fmt.Errorf("custom option name %d is not a string object", i)
		}

		nameID, _ := name.ObjectID()

		valueID, code, err := p.session.Transport().GetCustomProgramOptionValue(p.id, nameID, sid)
		if err != nil {
			return fmt.Errorf("get custom option value %q: %w", name.Data(), err)
		}
		if code != protocol.ESuccess {
			return protocol.NewError(fmt.Sprintf("could not get custom option value %q of program object", name.Data()), code)
		}

		value, err := attachString(p.session, valueID)
		if err != nil {
			return fmt.Errorf("attach custom option value %q: %w", name.Data(), err)
		}

		options[name.Data()] = value.Data()
		value.Release()
	}

	p.customOptions = options

	return nil
}

// Define creates a program definition on the remote system. The identifier
// travels as a temporary remote string; the attached handle then carries the
// server-reported identifier object instead.
func (p *Program) Define(identifier string) error {
	p.Release()

	sid, err := p.sessionID()
	if err != nil {
		return fmt.Errorf("define program: %w", err)
	}

	identifierString := NewString(p.session)
	if err := identifierString.Allocate(identifier); err != nil {
		return fmt.Errorf("define program: allocate identifier: %w", err)
	}
	defer identifierString.Release()

	identifierID, _ := identifierString.ObjectID()

	id, code, err := p.session.Transport().DefineProgram(identifierID, sid)
	if err != nil {
		return fmt.Errorf("define program: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not define program object", code)
	}

	return p.Attach(id, true)
}

// Purge removes the program definition and its files from the remote system.
// The purge cookie derived from the identifier guards against purging a
// stale handle whose identifier was reused. The handle stays attached; later
// calls fail with EProgramIsPurged.
func (p *Program) Purge() error {
	if !p.attached {
		return fmt.Errorf("purge program: %w", ErrNotAttached)
	}
	if p.identifier == nil {
		return fmt.Errorf("purge program: identifier unknown, update the handle first")
	}

	var cookie uint32
	for _, b := range []byte(p.identifier.Data()) {
		cookie += uint32(b)
	}

	code, err := p.session.Transport().PurgeProgram(p.id, cookie)
	if err != nil {
		return fmt.Errorf("purge program: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not purge program object", code)
	}

	return nil
}

// SetCommand replaces the program command. The inputs travel as freshly
// allocated remote objects that the handle adopts on success; on failure they
// are released again.
func (p *Program) SetCommand(executable string, arguments, environment []string, workingDirectory string) error {
	if !p.attached {
		return fmt.Errorf("set program command: %w", ErrNotAttached)
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
		return fmt.Errorf("set program command: allocate executable: %w", err)
	}
	if err := argumentsList.Allocate(toItems(arguments)...); err != nil {
		releaseAllocated()
		return fmt.Errorf("set program command: allocate arguments: %w", err)
	}
	if err := environmentList.Allocate(toItems(environment)...); err != nil {
		releaseAllocated()
		return fmt.Errorf("set program command: allocate environment: %w", err)
	}
	if err := workingDirectoryString.Allocate(workingDirectory); err != nil {
		releaseAllocated()
		return fmt.Errorf("set program command: allocate working directory: %w", err)
	}

	executableID, _ := executableString.ObjectID()
	argumentsID, _ := argumentsList.ObjectID()
	environmentID, _ := environmentList.ObjectID()
	workingDirectoryID, _ := workingDirectoryString.ObjectID()

	code, err := p.session.Transport().SetProgramCommand(p.id, executableID, argumentsID, environmentID, workingDirectoryID)
	if err != nil {
		releaseAllocated()
		return fmt.Errorf("set program command: %w", err)
	}
	if code != protocol.ESuccess {
		releaseAllocated()
		return protocol.NewError("could not set command of program object", code)
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

	p.executable = executableString
	p.arguments = argumentsList
	p.environment = environmentList
	p.workingDirectory = workingDirectoryString

	return nil
}

// SetStdioRedirection replaces the stdio redirections. File names travel as
// freshly allocated remote strings that the handle adopts on success.
func (p *Program) SetStdioRedirection(stdin, stdout, stderr Redirection) error {
	if !p.attached {
		return fmt.Errorf("set program stdio redirection: %w", ErrNotAttached)
	}

	var allocated []Object
	releaseAllocated := func() {
		for _, obj := range allocated {
			obj.Release()
		}
	}

	allocateName := func(r Redirection) (*String, protocol.ObjectID, error) {
		if r.Target != protocol.StdioRedirectionFile {
			return nil, 0, nil
		}

		name := NewString(p.session)
		if err := name.Allocate(r.FileName); err != nil {
			return nil, 0, err
		}
		allocated = append(allocated, name)

		id, _ := name.ObjectID()
		return name, id, nil
	}

	stdinName, stdinID, err := allocateName(stdin)
	if err != nil {
		releaseAllocated()
		return fmt.Errorf("set program stdio redirection: allocate stdin file name: %w", err)
	}
	stdoutName, stdoutID, err := allocateName(stdout)
	if err != nil {
		releaseAllocated()
		return fmt.Errorf("set program stdio redirection: allocate stdout file name: %w", err)
	}
	stderrName, stderrID, err := allocateName(stderr)
	if err != nil {
		releaseAllocated()
		return fmt.Errorf("set program stdio redirection: allocate stderr file name: %w", err)
	}

	code, err := p.session.Transport().SetProgramStdioRedirection(p.id,
		stdin.Target, stdinID, stdout.Target, stdoutID, stderr.Target, stderrID)
	if err != nil {
		releaseAllocated()
		return fmt.Errorf("set program stdio redirection: %w", err)
	}
	if code != protocol.ESuccess {
		releaseAllocated()
		return protocol.NewError("could not set stdio redirection of program object", code)
	}

	if p.stdinFileName != nil {
		p.stdinFileName.Release()
	}
	if p.stdoutFileName != nil {
		p.stdoutFileName.Release()
	}
	if p.stderrFileName != nil {
		p.stderrFileName.Release()
	}

	p.stdinRedirection = stdin.Target
	p.stdinFileName = stdinName
	p.stdoutRedirection = stdout.Target
	p.stdoutFileName = stdoutName
	p.stderrRedirection = stderr.Target
	p.stderrFileName = stderrName

	return nil
}

// SetSchedule replaces the start schedule. repeatFields is a cron field
// expression, only used with RepeatModeCron; it travels as a freshly
// allocated remote string that the handle adopts on success.
func (p *Program) SetSchedule(startCondition protocol.StartCondition, startTimestamp uint64, startDelay uint32,
	repeatMode protocol.RepeatMode, repeatInterval uint32, repeatFields string) error {
	if !p.attached {
		return fmt.Errorf("set program schedule: %w", ErrNotAttached)
	}

	var fieldsString *String
	var fieldsID protocol.ObjectID

	if repeatMode == protocol.RepeatModeCron {
		fieldsString = NewString(p.session)
		if err := fieldsString.Allocate(repeatFields); err != nil {
			return fmt.Errorf("set program schedule: allocate repeat fields: %w", err)
		}
		fieldsID, _ = fieldsString.ObjectID()
	}

	code, err := p.session.Transport().SetProgramSchedule(p.id, startCondition, startTimestamp, startDelay,
		repeatMode, repeatInterval, fieldsID)
	if err != nil {
		if fieldsString != nil {
			fieldsString.Release()
		}
		return fmt.Errorf("set program schedule: %w", err)
	}
	if code != protocol.ESuccess {
		if fieldsString != nil {
			fieldsString.Release()
		}
		return protocol.NewError("could not set schedule of program object", code)
	}

	if p.repeatFields != nil {
		p.repeatFields.Release()
	}

	p.startCondition = startCondition
	p.startTimestamp = startTimestamp
	p.startDelay = startDelay
	p.repeatMode = repeatMode
	p.repeatInterval = repeatInterval
	p.repeatFields = fieldsString

	return nil
}

// ScheduleNow asks the scheduler to spawn the program immediately, regardless
// of the configured schedule.
func (p *Program) ScheduleNow() error {
	if !p.attached {
		return fmt.Errorf("schedule program now: %w", ErrNotAttached)
	}

	code, err := p.session.Transport().ScheduleProgramNow(p.id)
	if err != nil {
		return fmt.Errorf("schedule program now: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError("could not schedule program object now", code)
	}

	return nil
}

// SetCustomOption stores one name-value pair in the program definition. The
// name and value travel as temporary remote strings.
func (p *Program) SetCustomOption(name, value string) error {
	if !p.attached {
		return fmt.Errorf("set custom option: %w", ErrNotAttached)
	}

	nameString := NewString(p.session)
	if err := nameString.Allocate(name); err != nil {
		return fmt.Errorf("set custom option: allocate name: %w", err)
	}
	defer nameString.Release()

	valueString := NewString(p.session)
	if err := valueString.Allocate(value); err != nil {
		return fmt.Errorf("set custom option: allocate value: %w", err)
	}
	defer valueString.Release()

	nameID, _ := nameString.ObjectID()
	valueID, _ := valueString.ObjectID()

	code, err := p.session.Transport().SetCustomProgramOptionValue(p.id, nameID, valueID)
	if err != nil {
		return fmt.Errorf("set custom option: %w", err)
	}
	if code != protocol.ESuccess {
		return protocol.NewError(fmt.Sprintf("could not set custom option %q of program object", name), code)
	}

	if p.customOptions == nil {
		p.customOptions = make(map[string]string)
	}
	p.customOptions[name] = value

	return nil
}

// OnSchedulerStateChanged installs the scheduler state observer. Passing nil
// removes it. The observer is dropped again when the handle is detached or
// released.
func (p *Program) OnSchedulerStateChanged(fn SchedulerStateChangedFunc) {
	p.mu.Lock()
	p.schedulerStateChanged = fn
	p.mu.Unlock()
}

// OnProcessSpawned installs the spawn observer. Passing nil removes it. The
// observer is dropped again when the handle is detached or released.
func (p *Program) OnProcessSpawned(fn ProcessSpawnedFunc) {
	p.mu.Lock()
	p.processSpawned = fn
	p.mu.Unlock()
}

func (p *Program) onSchedulerStateChanged(args ...interface{}) {
	if len(args) < 1 {
		return
	}
	programID, ok := args[0].(protocol.ObjectID)
	if !ok {
		return
	}

	p.mu.Lock()
	match := programID == p.eventID
	p.mu.Unlock()
	if !match {
		return
	}

	// The event only signals that something changed; the new state has to be
	// fetched. A failed fetch is logged and the observer is not invoked.
	if err := p.UpdateSchedulerState(); err != nil {
		p.session.Logger().Debug().Err(err).Msg("refetch scheduler state failed")
		return
	}

	p.mu.Lock()
	state := p.schedulerState
	timestamp := p.schedulerTimestamp
	fn := p.schedulerStateChanged
	p.mu.Unlock()

	if fn != nil {
		fn(state, timestamp)
	}
}

func (p *Program) onProcessSpawned(args ...interface{}) {
	if len(args) < 1 {
		return
	}
	programID, ok := args[0].(protocol.ObjectID)
	if !ok {
		return
	}

	p.mu.Lock()
	match := programID == p.eventID
	p.mu.Unlock()
	if !match {
		return
	}

	if err := p.UpdateLastSpawnedProcess(); err != nil {
		p.session.Logger().Debug().Err(err).Msg("refetch last spawned process failed")
		return
	}

	p.mu.Lock()
	process := p.lastSpawnedProcess
	timestamp := p.lastSpawnedTimestamp
	fn := p.processSpawned
	p.mu.Unlock()

	if fn != nil {
		fn(process, timestamp)
	}
}

// Identifier returns the identifier string handle. The program owns it.
func (p *Program) Identifier() *String { return p.identifier }

// RootDirectory returns the root directory string handle. The program owns it.
func (p *Program) RootDirectory() *String { return p.rootDirectory }

// Executable returns the executable string handle. The program owns it.
func (p *Program) Executable() *String { return p.executable }

// Arguments returns the argument list handle. The program owns it.
func (p *Program) Arguments() *List { return p.arguments }

// Environment returns the environment list handle. The program owns it.
func (p *Program) Environment() *List { return p.environment }

// WorkingDirectory returns the working directory string handle. The program
// owns it.
func (p *Program) WorkingDirectory() *String { return p.workingDirectory }

// StdioRedirection returns the redirection targets and file name handles for
// stdin, stdout and stderr. File names are nil unless the matching target is
// StdioRedirectionFile; the program owns them.
func (p *Program) StdioRedirection() (stdin, stdout, stderr Redirection) {
	stdin = Redirection{Target: p.stdinRedirection}
	if p.stdinFileName != nil {
		stdin.FileName = p.stdinFileName.Data()
	}
	stdout = Redirection{Target: p.stdoutRedirection}
	if p.stdoutFileName != nil {
		stdout.FileName = p.stdoutFileName.Data()
	}
	stderr = Redirection{Target: p.stderrRedirection}
	if p.stderrFileName != nil {
		stderr.FileName = p.stderrFileName.Data()
	}
	return stdin, stdout, stderr
}

// Schedule returns the start schedule. RepeatFieldsStringID is not exposed;
// the cron expression comes back as the repeat fields string contents.
func (p *Program) Schedule() (startCondition protocol.StartCondition, startTimestamp uint64, startDelay uint32,
	repeatMode protocol.RepeatMode, repeatInterval uint32, repeatFields string) {
	if p.repeatFields != nil {
		repeatFields = p.repeatFields.Data()
	}
	return p.startCondition, p.startTimestamp, p.startDelay, p.repeatMode, p.repeatInterval, repeatFields
}

// SchedulerState returns the scheduler state, the timestamp of the last
// transition and the scheduler message, empty when there is none.
func (p *Program) SchedulerState() (protocol.SchedulerState, uint64, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var message string
	if p.schedulerMessage != nil {
		message = p.schedulerMessage.Data()
	}
	return p.schedulerState, p.schedulerTimestamp, message
}

// LastSpawnedProcess returns the process most recently spawned by the
// scheduler and its spawn timestamp. The process is nil when nothing was
// spawned yet; the program owns the handle.
func (p *Program) LastSpawnedProcess() (*Process, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSpawnedProcess, p.lastSpawnedTimestamp
}

// CustomOptions returns the custom options fetched by the last update.
func (p *Program) CustomOptions() map[string]string {
	return p.customOptions
}

// Programs fetches the list of programs defined on the remote system. The
// returned list owns one attached Program handle per item; the caller owns
// the list.
func Programs(s *session.Session) (*List, error) {
	sid, ok := s.ID()
	if !ok {
		return nil, fmt.Errorf("get programs: %w", ErrSessionExpired)
	}

	listID, code, err := s.Transport().GetPrograms(sid)
	if err != nil {
		return nil, fmt.Errorf("get programs: %w", err)
	}
	if code != protocol.ESuccess {
		return nil, protocol.NewError("could not get list of programs", code)
	}

	return attachList(s, listID)
}
