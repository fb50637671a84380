package protocol

// CallbackHandler receives the raw arguments of one push-event delivery. The
// argument layout depends on the CallbackID; handlers type-assert what they
// need and ignore events for object IDs they do not own.
type CallbackHandler func(args ...interface{})

// FileInfo is the payload of GetFileInfo. NameStringID references a freshly
// allocated string object the caller becomes responsible for.
type FileInfo struct {
	Type             FileType
	NameStringID     ObjectID
	Flags            FileFlag
	Permissions      uint16
	UID              uint32
	GID              uint32
	Length           uint64
	AccessTime       uint64
	ModificationTime uint64
	StatusChangeTime uint64
}

// FileStat is the payload of LookupFileInfo. Unlike FileInfo it carries plain
// values only, no object references.
type FileStat struct {
	Type             FileType
	Permissions      uint16
	UID              uint32
	GID              uint32
	Length           uint64
	AccessTime       uint64
	ModificationTime uint64
	StatusChangeTime uint64
}

// Command is the payload of GetProcessCommand and GetProgramCommand. All four
// fields reference freshly allocated objects the caller becomes responsible
// for, including on partial decode failure.
type Command struct {
	ExecutableStringID       ObjectID
	ArgumentsListID          ObjectID
	EnvironmentListID        ObjectID
	WorkingDirectoryStringID ObjectID
}

// StdioRedirectionInfo is the payload of GetProgramStdioRedirection. A file
// name string ID is only valid when the matching redirection is
// StdioRedirectionFile.
type StdioRedirectionInfo struct {
	StdinRedirection      StdioRedirection
	StdinFileNameStringID ObjectID

	StdoutRedirection      StdioRedirection
	StdoutFileNameStringID ObjectID

	StderrRedirection      StdioRedirection
	StderrFileNameStringID ObjectID
}

// Schedule is the payload of GetProgramSchedule. RepeatFieldsStringID is only
// valid when RepeatMode is RepeatModeCron.
type Schedule struct {
	StartCondition       StartCondition
	StartTimestamp       uint64
	StartDelay           uint32
	RepeatMode           RepeatMode
	RepeatInterval       uint32
	RepeatFieldsStringID ObjectID
}

// Transport is the RPC surface the client runtime consumes. Implementations
// provide synchronous request/response calls, best-effort unchecked variants
// that return no result, and push-event delivery via RegisterCallback.
//
// Every synchronous call returns the server's ErrorCode plus a transport-level
// error. A non-nil error means the call never completed (connection failure);
// the ErrorCode is only meaningful when the error is nil.
//
// Calls may be issued from any goroutine. Push events are delivered on a
// transport-owned goroutine, sequentially per connection.
type Transport interface {
	// Sessions.
	CreateSession(lifetime uint32) (SessionID, ErrorCode, error)
	ExpireSessionUnchecked(sessionID SessionID) error
	KeepSessionAlive(sessionID SessionID, lifetime uint32) (ErrorCode, error)

	// Generic object lifecycle.
	ReleaseObjectUnchecked(objectID ObjectID, sessionID SessionID) error

	// Strings. Chunk payloads are raw bytes of at most the respective
	// String* limit; the transport pads them to the fixed wire width.
	AllocateString(lengthToReserve uint32, chunk string, sessionID SessionID) (ObjectID, ErrorCode, error)
	GetStringLength(stringID ObjectID) (uint32, ErrorCode, error)
	SetStringChunk(stringID ObjectID, offset uint32, chunk string) (ErrorCode, error)
	GetStringChunk(stringID ObjectID, offset uint32) (string, ErrorCode, error)

	// Lists.
	AllocateList(lengthToReserve uint16, sessionID SessionID) (ObjectID, ErrorCode, error)
	GetListLength(listID ObjectID) (uint16, ErrorCode, error)
	GetListItem(listID ObjectID, index uint16, sessionID SessionID) (ObjectID, ObjectType, ErrorCode, error)
	AppendToList(listID, itemID ObjectID) (ErrorCode, error)

	// Files and pipes. Write buffers are zero-padded to the fixed wire
	// width; lengthToWrite is the number of meaningful bytes.
	OpenFile(nameStringID ObjectID, flags FileFlag, permissions uint16, uid, gid uint32, sessionID SessionID) (ObjectID, ErrorCode, error)
	CreatePipe(flags PipeFlag, length uint64, sessionID SessionID) (ObjectID, ErrorCode, error)
	GetFileInfo(fileID ObjectID, sessionID SessionID) (FileInfo, ErrorCode, error)
	ReadFile(fileID ObjectID, lengthToRead uint8) ([]byte, uint8, ErrorCode, error)
	ReadFileAsync(fileID ObjectID, length uint64) error
	WriteFile(fileID ObjectID, buffer []byte, lengthToWrite uint8) (uint8, ErrorCode, error)
	WriteFileUnchecked(fileID ObjectID, buffer []byte, lengthToWrite uint8) error
	WriteFileAsync(fileID ObjectID, buffer []byte, lengthToWrite uint8) error
	LookupFileInfo(nameStringID ObjectID, followSymlink bool, sessionID SessionID) (FileStat, ErrorCode, error)
	LookupSymlinkTarget(nameStringID ObjectID, canonicalize bool, sessionID SessionID) (ObjectID, ErrorCode, error)

	// Directories.
	OpenDirectory(nameStringID ObjectID, sessionID SessionID) (ObjectID, ErrorCode, error)
	GetDirectoryName(directoryID ObjectID, sessionID SessionID) (ObjectID, ErrorCode, error)
	RewindDirectory(directoryID ObjectID) (ErrorCode, error)
	GetNextDirectoryEntry(directoryID ObjectID, sessionID SessionID) (ObjectID, DirectoryEntryType, ErrorCode, error)
	CreateDirectory(nameStringID ObjectID, flags DirectoryFlag, permissions uint16, uid, gid uint32) (ErrorCode, error)

	// Processes.
	GetProcesses(sessionID SessionID) (ObjectID, ErrorCode, error)
	SpawnProcess(executableStringID, argumentsListID, environmentListID, workingDirectoryStringID ObjectID,
		uid, gid uint32, stdinFileID, stdoutFileID, stderrFileID ObjectID, sessionID SessionID) (ObjectID, ErrorCode, error)
	KillProcess(processID ObjectID, signal ProcessSignal) (ErrorCode, error)
	GetProcessCommand(processID ObjectID, sessionID SessionID) (Command, ErrorCode, error)
	GetProcessIdentity(processID ObjectID) (pid, uid, gid uint32, code ErrorCode, err error)
	GetProcessStdio(processID ObjectID, sessionID SessionID) (stdin, stdout, stderr ObjectID, code ErrorCode, err error)
	GetProcessState(processID ObjectID) (ProcessState, uint64, uint8, ErrorCode, error)

	// Programs.
	GetPrograms(sessionID SessionID) (ObjectID, ErrorCode, error)
	DefineProgram(identifierStringID ObjectID, sessionID SessionID) (ObjectID, ErrorCode, error)
	PurgeProgram(programID ObjectID, cookie uint32) (ErrorCode, error)
	GetProgramIdentifier(programID ObjectID, sessionID SessionID) (ObjectID, ErrorCode, error)
	GetProgramRootDirectory(programID ObjectID, sessionID SessionID) (ObjectID, ErrorCode, error)
	SetProgramCommand(programID, executableStringID, argumentsListID, environmentListID, workingDirectoryStringID ObjectID) (ErrorCode, error)
	GetProgramCommand(programID ObjectID, sessionID SessionID) (Command, ErrorCode, error)
	SetProgramStdioRedirection(programID ObjectID,
		stdinRedirection StdioRedirection, stdinFileNameStringID ObjectID,
		stdoutRedirection StdioRedirection, stdoutFileNameStringID ObjectID,
		stderrRedirection StdioRedirection, stderrFileNameStringID ObjectID) (ErrorCode, error)
	GetProgramStdioRedirection(programID ObjectID, sessionID SessionID) (StdioRedirectionInfo, ErrorCode, error)
	SetProgramSchedule(programID ObjectID, startCondition StartCondition, startTimestamp uint64, startDelay uint32,
		repeatMode RepeatMode, repeatInterval uint32, repeatFieldsStringID ObjectID) (ErrorCode, error)
	GetProgramSchedule(programID ObjectID, sessionID SessionID) (Schedule, ErrorCode, error)
	GetProgramSchedulerState(programID ObjectID, sessionID SessionID) (SchedulerState, uint64, ObjectID, ErrorCode, error)
	ScheduleProgramNow(programID ObjectID) (ErrorCode, error)
	GetLastSpawnedProgramProcess(programID ObjectID, sessionID SessionID) (ObjectID, uint64, ErrorCode, error)
	GetCustomProgramOptionNames(programID ObjectID, sessionID SessionID) (ObjectID, ErrorCode, error)
	GetCustomProgramOptionValue(programID, nameStringID ObjectID, sessionID SessionID) (ObjectID, ErrorCode, error)
	SetCustomProgramOptionValue(programID, nameStringID, valueStringID ObjectID) (ErrorCode, error)

	// Push events. Registering replaces any previous transport-level handler
	// for the same callback ID.
	RegisterCallback(id CallbackID, fn CallbackHandler)
}
