package protocol

import "fmt"

// ObjectID identifies a server-side object. Valid only within the session that
// obtained it; 0 is used on the wire where an object reference is absent.
type ObjectID uint16

// SessionID identifies a server-side session.
type SessionID uint16

// ObjectType is the server-reported type tag of an object. It selects which
// handle type wraps an object ID when decoding heterogeneous list contents.
type ObjectType uint8

const (
	ObjectTypeString    ObjectType = 0
	ObjectTypeList      ObjectType = 1
	ObjectTypeFile      ObjectType = 2
	ObjectTypeDirectory ObjectType = 3
	ObjectTypeProcess   ObjectType = 4
	ObjectTypeProgram   ObjectType = 5
)

// String returns a string representation of the object type.
func (t ObjectType) String() string {
	switch t {
	case ObjectTypeString:
		return "String"
	case ObjectTypeList:
		return "List"
	case ObjectTypeFile:
		return "File"
	case ObjectTypeDirectory:
		return "Directory"
	case ObjectTypeProcess:
		return "Process"
	case ObjectTypeProgram:
		return "Program"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// FileType distinguishes the kinds of file objects. The protocol reports a
// single "file" object type tag; the concrete kind comes from GetFileInfo.
type FileType uint8

const (
	FileTypeUnknown   FileType = 0
	FileTypeRegular   FileType = 1
	FileTypeDirectory FileType = 2
	FileTypeCharacter FileType = 3
	FileTypeBlock     FileType = 4
	FileTypeFIFO      FileType = 5
	FileTypeSymlink   FileType = 6
	FileTypeSocket    FileType = 7
	FileTypePipe      FileType = 8
)

// FileFlag is a bit set controlling how a file object is opened.
type FileFlag uint32

const (
	FileFlagReadOnly    FileFlag = 0x0001
	FileFlagWriteOnly   FileFlag = 0x0002
	FileFlagReadWrite   FileFlag = 0x0004
	FileFlagAppend      FileFlag = 0x0008
	FileFlagCreate      FileFlag = 0x0010
	FileFlagExclusive   FileFlag = 0x0020
	FileFlagNonBlocking FileFlag = 0x0040
	FileFlagTruncate    FileFlag = 0x0080
	FileFlagTemporary   FileFlag = 0x0100
)

// PipeFlag is a bit set controlling pipe creation.
type PipeFlag uint32

const (
	PipeFlagNonBlockingRead  PipeFlag = 0x0001
	PipeFlagNonBlockingWrite PipeFlag = 0x0002
)

// DirectoryEntryType classifies an entry returned by GetNextDirectoryEntry.
type DirectoryEntryType uint8

const (
	DirectoryEntryTypeUnknown   DirectoryEntryType = 0
	DirectoryEntryTypeRegular   DirectoryEntryType = 1
	DirectoryEntryTypeDirectory DirectoryEntryType = 2
	DirectoryEntryTypeCharacter DirectoryEntryType = 3
	DirectoryEntryTypeBlock     DirectoryEntryType = 4
	DirectoryEntryTypeFIFO      DirectoryEntryType = 5
	DirectoryEntryTypeSymlink   DirectoryEntryType = 6
	DirectoryEntryTypeSocket    DirectoryEntryType = 7
)

// DirectoryFlag is a bit set controlling CreateDirectory.
type DirectoryFlag uint32

const (
	DirectoryFlagRecursive DirectoryFlag = 0x0001
	DirectoryFlagExclusive DirectoryFlag = 0x0002
)

// ProcessSignal is a POSIX signal number deliverable to a process object.
type ProcessSignal uint8

const (
	ProcessSignalInterrupt ProcessSignal = 2
	ProcessSignalQuit      ProcessSignal = 3
	ProcessSignalAbort     ProcessSignal = 6
	ProcessSignalKill      ProcessSignal = 9
	ProcessSignalUser1     ProcessSignal = 10
	ProcessSignalUser2     ProcessSignal = 12
	ProcessSignalTerminate ProcessSignal = 15
	ProcessSignalContinue  ProcessSignal = 18
	ProcessSignalStop      ProcessSignal = 19
)

// ProcessState describes the lifecycle state of a process object.
type ProcessState uint8

const (
	ProcessStateUnknown ProcessState = 0
	ProcessStateRunning ProcessState = 1
	ProcessStateError   ProcessState = 2
	ProcessStateExited  ProcessState = 3
	ProcessStateKilled  ProcessState = 4
	ProcessStateStopped ProcessState = 5
)

// String returns a string representation of the process state.
func (s ProcessState) String() string {
	switch s {
	case ProcessStateUnknown:
		return "Unknown"
	case ProcessStateRunning:
		return "Running"
	case ProcessStateError:
		return "Error"
	case ProcessStateExited:
		return "Exited"
	case ProcessStateKilled:
		return "Killed"
	case ProcessStateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Process exit codes reported for the error state.
const (
	ProcessErrorInternalError uint8 = 125
	ProcessErrorCannotExecute uint8 = 126
	ProcessErrorDoesNotExist  uint8 = 127
)

// StdioRedirection selects where a scheduled program's stdio stream goes.
type StdioRedirection uint8

const (
	StdioRedirectionDevNull StdioRedirection = 0
	StdioRedirectionPipe    StdioRedirection = 1
	StdioRedirectionFile    StdioRedirection = 2
	StdioRedirectionLog     StdioRedirection = 3
	StdioRedirectionStdout  StdioRedirection = 4
)

// StartCondition selects when a scheduled program first starts.
type StartCondition uint8

const (
	StartConditionNever     StartCondition = 0
	StartConditionNow       StartCondition = 1
	StartConditionReboot    StartCondition = 2
	StartConditionTimestamp StartCondition = 3
)

// RepeatMode selects how a scheduled program repeats.
type RepeatMode uint8

const (
	RepeatModeNever    RepeatMode = 0
	RepeatModeInterval RepeatMode = 1
	RepeatModeCron     RepeatMode = 2
)

// SchedulerState describes the scheduler of a program object.
type SchedulerState uint8

const (
	SchedulerStateStopped                   SchedulerState = 0
	SchedulerStateWaitingForStartCondition  SchedulerState = 1
	SchedulerStateDelayingStart             SchedulerState = 2
	SchedulerStateWaitingForRepeatCondition SchedulerState = 3
	SchedulerStateErrorOccurred             SchedulerState = 4
)

// Per-call chunk limits in bytes. These come from the fixed wire framing of
// each RPC and must match the server exactly; they are not configurable.
const (
	StringMaxAllocateChunk = 58
	StringMaxSetChunk      = 58
	StringMaxGetChunk      = 63

	FileMaxRead           = 62
	FileMaxReadAsync      = 60
	FileMaxWrite          = 61
	FileMaxWriteUnchecked = 61
	FileMaxWriteAsync     = 61

	// AsyncBurstChunks bounds the unacknowledged chunks pipelined in one
	// async write burst: up to AsyncBurstChunks-1 unchecked writes followed
	// by exactly one acknowledged write.
	AsyncBurstChunks = 2000
)

// CallbackID identifies a push-event stream delivered by the transport.
type CallbackID uint8

const (
	CallbackAsyncFileRead               CallbackID = 30
	CallbackAsyncFileWrite              CallbackID = 31
	CallbackFileEventsOccurred          CallbackID = 32
	CallbackProcessStateChanged         CallbackID = 33
	CallbackProgramSchedulerStateChange CallbackID = 34
	CallbackProgramProcessSpawned       CallbackID = 35
)
