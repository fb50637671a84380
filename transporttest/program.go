package transporttest

import (
	"github.com/tfchina/brickv/protocol"
)

type redirectionDef struct {
	target   protocol.StdioRedirection
	fileName string
}

// programDef is the server-side record behind one or more handed-out program
// objects. It survives the release of every handle; only a purge removes the
// definition.
type programDef struct {
	identifier    string
	rootDirectory string
	purged        bool

	executable       string
	arguments        []string
	environment      []string
	workingDirectory string

	stdin  redirectionDef
	stdout redirectionDef
	stderr redirectionDef

	startCondition protocol.StartCondition
	startTimestamp uint64
	startDelay     uint32
	repeatMode     protocol.RepeatMode
	repeatInterval uint32
	repeatFields   string

	schedulerState     protocol.SchedulerState
	schedulerTimestamp uint64
	schedulerMessage   string

	lastSpawned          *processEntry
	lastSpawnedTimestamp uint64

	optionNames []string
	options     map[string]string
}

// EmitSchedulerStateChange transitions the scheduler of the program behind
// the given object ID and delivers the matching push event. The event itself
// carries no state; clients refetch it.
func (t *Transport) EmitSchedulerStateChange(programID protocol.ObjectID, state protocol.SchedulerState, timestamp uint64, message string) {
	t.mu.Lock()
	obj, ok := t.lookup(programID, kindProgram)
	if ok {
		obj.prog.schedulerState = state
		obj.prog.schedulerTimestamp = timestamp
		obj.prog.schedulerMessage = message
	}
	t.mu.Unlock()

	if ok {
		t.emit(protocol.CallbackProgramSchedulerStateChange, programID)
	}
}

// checkProgram resolves a program object, mapping purged definitions to their
// dedicated error code.
func (t *Transport) checkProgram(programID protocol.ObjectID) (*programDef, protocol.ErrorCode) {
	obj, ok := t.lookup(programID, kindProgram)
	if !ok {
		return nil, protocol.EUnknownObjectID
	}
	if obj.prog.purged {
		return nil, protocol.EProgramIsPurged
	}
	return obj.prog, protocol.ESuccess
}

// GetPrograms implements protocol.Transport. The returned list holds one
// fresh program object per non-purged definition.
func (t *Transport) GetPrograms(sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("GetPrograms"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	var items []protocol.ObjectID
	for _, def := range t.programs {
		if def.purged {
			continue
		}
		items = append(items, t.newObject(&object{kind: kindProgram, prog: def}))
	}

	return t.newObject(&object{kind: kindList, list: &listState{items: items}}), protocol.ESuccess, nil
}

// DefineProgram implements protocol.Transport.
func (t *Transport) DefineProgram(identifierStringID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("DefineProgram"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	identifier, ok := t.stringData(identifierStringID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	for _, def := range t.programs {
		if !def.purged && def.identifier == identifier {
			return 0, protocol.EAlreadyExists, nil
		}
	}

	def := &programDef{
		identifier:    identifier,
		rootDirectory: "/home/tf/programs/" + identifier,
		options:       make(map[string]string),
	}
	t.programs = append(t.programs, def)

	return t.newObject(&object{kind: kindProgram, prog: def}), protocol.ESuccess, nil
}

// PurgeProgram implements protocol.Transport. The cookie must be the byte sum
// of the identifier.
func (t *Transport) PurgeProgram(programID protocol.ObjectID, cookie uint32) (protocol.ErrorCode, error) {
	if code, err := t.begin("PurgeProgram"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return code, nil
	}

	var expected uint32
	for _, b := range []byte(def.identifier) {
		expected += uint32(b)
	}
	if cookie != expected {
		return protocol.EInvalidParameter, nil
	}

	def.purged = true

	return protocol.ESuccess, nil
}

// GetProgramIdentifier implements protocol.Transport. The identifier is
// handed out as a fresh string object reference.
func (t *Transport) GetProgramIdentifier(programID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProgramIdentifier"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return 0, code, nil
	}

	return t.allocStringObject(def.identifier), protocol.ESuccess, nil
}

// GetProgramRootDirectory implements protocol.Transport. The path is handed
// out as a fresh string object reference.
func (t *Transport) GetProgramRootDirectory(programID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProgramRootDirectory"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return 0, code, nil
	}

	return t.allocStringObject(def.rootDirectory), protocol.ESuccess, nil
}

// SetProgramCommand implements protocol.Transport. The inputs are resolved to
// plain values; the transport does not retain references to them.
func (t *Transport) SetProgramCommand(programID, executableStringID, argumentsListID, environmentListID, workingDirectoryStringID protocol.ObjectID) (protocol.ErrorCode, error) {
	if code, err := t.begin("SetProgramCommand"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return code, nil
	}

	executable, ok := t.stringData(executableStringID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}
	arguments, ok := t.listStrings(argumentsListID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}
	environment, ok := t.listStrings(environmentListID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}
	workingDirectory, ok := t.stringData(workingDirectoryStringID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}

	def.executable = executable
	def.arguments = arguments
	def.environment = environment
	def.workingDirectory = workingDirectory

	return protocol.ESuccess, nil
}

// GetProgramCommand implements protocol.Transport. All four fields are handed
// out as fresh object references.
func (t *Transport) GetProgramCommand(programID protocol.ObjectID, sessionID protocol.SessionID) (protocol.Command, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProgramCommand"); err != nil || code != protocol.ESuccess {
		return protocol.Command{}, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return protocol.Command{}, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return protocol.Command{}, code, nil
	}

	return protocol.Command{
		ExecutableStringID:       t.allocStringObject(def.executable),
		ArgumentsListID:          t.allocStringList(def.arguments),
		EnvironmentListID:        t.allocStringList(def.environment),
		WorkingDirectoryStringID: t.allocStringObject(def.workingDirectory),
	}, protocol.ESuccess, nil
}

// SetProgramStdioRedirection implements protocol.Transport. File name IDs are
// only consulted for streams redirected to a file.
func (t *Transport) SetProgramStdioRedirection(programID protocol.ObjectID,
	stdinRedirection protocol.StdioRedirection, stdinFileNameStringID protocol.ObjectID,
	stdoutRedirection protocol.StdioRedirection, stdoutFileNameStringID protocol.ObjectID,
	stderrRedirection protocol.StdioRedirection, stderrFileNameStringID protocol.ObjectID) (protocol.ErrorCode, error) {
	if code, err := t.begin("SetProgramStdioRedirection"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return code, nil
	}

	resolve := func(target protocol.StdioRedirection, nameID protocol.ObjectID) (redirectionDef, bool) {
		r := redirectionDef{target: target}
		if target == protocol.StdioRedirectionFile {
			name, ok := t.stringData(nameID)
			if !ok {
				return r, false
			}
			r.fileName = name
		}
		return r, true
	}

	stdin, ok := resolve(stdinRedirection, stdinFileNameStringID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}
	stdout, ok := resolve(stdoutRedirection, stdoutFileNameStringID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}
	stderr, ok := resolve(stderrRedirection, stderrFileNameStringID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}

	def.stdin = stdin
	def.stdout = stdout
	def.stderr = stderr

	return protocol.ESuccess, nil
}

// GetProgramStdioRedirection implements protocol.Transport. File names are
// handed out as fresh string object references, only for streams redirected
// to a file.
func (t *Transport) GetProgramStdioRedirection(programID protocol.ObjectID, sessionID protocol.SessionID) (protocol.StdioRedirectionInfo, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProgramStdioRedirection"); err != nil || code != protocol.ESuccess {
		return protocol.StdioRedirectionInfo{}, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return protocol.StdioRedirectionInfo{}, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return protocol.StdioRedirectionInfo{}, code, nil
	}

	nameID := func(r redirectionDef) protocol.ObjectID {
		if r.target != protocol.StdioRedirectionFile {
			return 0
		}
		return t.allocStringObject(r.fileName)
	}

	return protocol.StdioRedirectionInfo{
		StdinRedirection:       def.stdin.target,
		StdinFileNameStringID:  nameID(def.stdin),
		StdoutRedirection:      def.stdout.target,
		StdoutFileNameStringID: nameID(def.stdout),
		StderrRedirection:      def.stderr.target,
		StderrFileNameStringID: nameID(def.stderr),
	}, protocol.ESuccess, nil
}

// SetProgramSchedule implements protocol.Transport. The repeat fields ID is
// only consulted for cron repetition.
func (t *Transport) SetProgramSchedule(programID protocol.ObjectID, startCondition protocol.StartCondition, startTimestamp uint64, startDelay uint32,
	repeatMode protocol.RepeatMode, repeatInterval uint32, repeatFieldsStringID protocol.ObjectID) (protocol.ErrorCode, error) {
	if code, err := t.begin("SetProgramSchedule"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return code, nil
	}

	var repeatFields string
	if repeatMode == protocol.RepeatModeCron {
		fields, ok := t.stringData(repeatFieldsStringID)
		if !ok {
			return protocol.EUnknownObjectID, nil
		}
		repeatFields = fields
	}

	def.startCondition = startCondition
	def.startTimestamp = startTimestamp
	def.startDelay = startDelay
	def.repeatMode = repeatMode
	def.repeatInterval = repeatInterval
	def.repeatFields = repeatFields

	return protocol.ESuccess, nil
}

// GetProgramSchedule implements protocol.Transport. The repeat fields are
// handed out as a fresh string object reference, only for cron repetition.
func (t *Transport) GetProgramSchedule(programID protocol.ObjectID, sessionID protocol.SessionID) (protocol.Schedule, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProgramSchedule"); err != nil || code != protocol.ESuccess {
		return protocol.Schedule{}, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return protocol.Schedule{}, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return protocol.Schedule{}, code, nil
	}

	sched := protocol.Schedule{
		StartCondition: def.startCondition,
		StartTimestamp: def.startTimestamp,
		StartDelay:     def.startDelay,
		RepeatMode:     def.repeatMode,
		RepeatInterval: def.repeatInterval,
	}
	if def.repeatMode == protocol.RepeatModeCron {
		sched.RepeatFieldsStringID = t.allocStringObject(def.repeatFields)
	}

	return sched, protocol.ESuccess, nil
}

// GetProgramSchedulerState implements protocol.Transport. The message is
// handed out as a fresh string object reference, or 0 when there is none.
func (t *Transport) GetProgramSchedulerState(programID protocol.ObjectID, sessionID protocol.SessionID) (protocol.SchedulerState, uint64, protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("GetProgramSchedulerState"); err != nil || code != protocol.ESuccess {
		return 0, 0, 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, 0, 0, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return 0, 0, 0, code, nil
	}

	var messageID protocol.ObjectID
	if def.schedulerMessage != "" {
		messageID = t.allocStringObject(def.schedulerMessage)
	}

	return def.schedulerState, def.schedulerTimestamp, messageID, protocol.ESuccess, nil
}

// ScheduleProgramNow implements protocol.Transport. The spawned process is
// announced with a push event; clients fetch it afterwards.
func (t *Transport) ScheduleProgramNow(programID protocol.ObjectID) (protocol.ErrorCode, error) {
	if code, err := t.begin("ScheduleProgramNow"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		t.mu.Unlock()
		return code, nil
	}

	t.nextPID++
	entry := &processEntry{
		def: ProcessDef{
			Executable:       def.executable,
			Arguments:        def.arguments,
			Environment:      def.environment,
			WorkingDirectory: def.workingDirectory,
			PID:              t.nextPID,
			State:            protocol.ProcessStateRunning,
		},
	}
	t.processes = append(t.processes, entry)

	def.lastSpawned = entry
	def.lastSpawnedTimestamp++
	t.mu.Unlock()

	t.emit(protocol.CallbackProgramProcessSpawned, programID)

	return protocol.ESuccess, nil
}

// GetLastSpawnedProgramProcess implements protocol.Transport. The process is
// handed out as a fresh object reference; a program that never spawned
// anything reports that it does not exist.
func (t *Transport) GetLastSpawnedProgramProcess(programID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, uint64, protocol.ErrorCode, error) {
	if code, err := t.begin("GetLastSpawnedProgramProcess"); err != nil || code != protocol.ESuccess {
		return 0, 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, 0, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return 0, 0, code, nil
	}

	if def.lastSpawned == nil {
		return 0, 0, protocol.EDoesNotExist, nil
	}

	id := t.newObject(&object{kind: kindProcess, proc: def.lastSpawned})

	return id, def.lastSpawnedTimestamp, protocol.ESuccess, nil
}

// GetCustomProgramOptionNames implements protocol.Transport. The names come
// back as a fresh list of fresh string objects.
func (t *Transport) GetCustomProgramOptionNames(programID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("GetCustomProgramOptionNames"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return 0, code, nil
	}

	return t.allocStringList(def.optionNames), protocol.ESuccess, nil
}

// GetCustomProgramOptionValue implements protocol.Transport. The value is
// handed out as a fresh string object reference.
func (t *Transport) GetCustomProgramOptionValue(programID, nameStringID protocol.ObjectID, sessionID protocol.SessionID) (protocol.ObjectID, protocol.ErrorCode, error) {
	if code, err := t.begin("GetCustomProgramOptionValue"); err != nil || code != protocol.ESuccess {
		return 0, code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validSession(sessionID) {
		return 0, protocol.EUnknownSessionID, nil
	}

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return 0, code, nil
	}

	name, ok := t.stringData(nameStringID)
	if !ok {
		return 0, protocol.EUnknownObjectID, nil
	}

	value, ok := def.options[name]
	if !ok {
		return 0, protocol.EDoesNotExist, nil
	}

	return t.allocStringObject(value), protocol.ESuccess, nil
}

// SetCustomProgramOptionValue implements protocol.Transport.
func (t *Transport) SetCustomProgramOptionValue(programID, nameStringID, valueStringID protocol.ObjectID) (protocol.ErrorCode, error) {
	if code, err := t.begin("SetCustomProgramOptionValue"); err != nil || code != protocol.ESuccess {
		return code, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	def, code := t.checkProgram(programID)
	if code != protocol.ESuccess {
		return code, nil
	}

	name, ok := t.stringData(nameStringID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}
	value, ok := t.stringData(valueStringID)
	if !ok {
		return protocol.EUnknownObjectID, nil
	}

	if _, exists := def.options[name]; !exists {
		def.optionNames = append(def.optionNames, name)
	}
	def.options[name] = value

	return protocol.ESuccess, nil
}
