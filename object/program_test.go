package object_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/object"
	"github.com/tfchina/brickv/protocol"
)

func defineTestProgram(t *testing.T, prog *object.Program) {
	t.Helper()

	require.NoError(t, prog.Define("blink"))
	require.NoError(t, prog.SetCommand("/usr/bin/python3", []string{"main.py"}, []string{"HOME=/home/tf"}, "bin"))
	require.NoError(t, prog.SetStdioRedirection(
		object.Redirection{Target: protocol.StdioRedirectionDevNull},
		object.Redirection{Target: protocol.StdioRedirectionFile, FileName: "stdout.log"},
		object.Redirection{Target: protocol.StdioRedirectionStdout},
	))
	require.NoError(t, prog.SetSchedule(protocol.StartConditionReboot, 0, 5,
		protocol.RepeatModeCron, 0, "*/5 * * * *"))
	require.NoError(t, prog.SetCustomOption("language", "python"))
	require.NoError(t, prog.SetCustomOption("version", "3"))
}

func TestProgramDefineConfigureFetch(t *testing.T) {
	tr, sess := newTestSession(t)

	prog := object.NewProgram(sess)
	defineTestProgram(t, prog)

	assert.Equal(t, "blink", prog.Identifier().Data())
	assert.Equal(t, "/home/tf/programs/blink", prog.RootDirectory().Data())

	prog.Release()

	// A fresh handle sees the persisted definition.
	list, err := object.Programs(sess)
	require.NoError(t, err)

	require.Len(t, list.Items(), 1)
	fetched, ok := list.Items()[0].(*object.Program)
	require.True(t, ok, "expected *object.Program, got %T", list.Items()[0])

	assert.Equal(t, "blink", fetched.Identifier().Data())
	assert.Equal(t, "/usr/bin/python3", fetched.Executable().Data())
	assert.Equal(t, []string{"main.py"}, listData(t, fetched.Arguments()))
	assert.Equal(t, []string{"HOME=/home/tf"}, listData(t, fetched.Environment()))
	assert.Equal(t, "bin", fetched.WorkingDirectory().Data())

	stdin, stdout, stderr := fetched.StdioRedirection()
	assert.Equal(t, protocol.StdioRedirectionDevNull, stdin.Target)
	assert.Equal(t, protocol.StdioRedirectionFile, stdout.Target)
	assert.Equal(t, "stdout.log", stdout.FileName)
	assert.Equal(t, protocol.StdioRedirectionStdout, stderr.Target)

	startCondition, _, startDelay, repeatMode, _, repeatFields := fetched.Schedule()
	assert.Equal(t, protocol.StartConditionReboot, startCondition)
	assert.Equal(t, uint32(5), startDelay)
	assert.Equal(t, protocol.RepeatModeCron, repeatMode)
	assert.Equal(t, "*/5 * * * *", repeatFields)

	assert.Equal(t, map[string]string{"language": "python", "version": "3"}, fetched.CustomOptions())

	list.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestProgramPurge(t *testing.T) {
	tr, sess := newTestSession(t)

	prog := object.NewProgram(sess)
	require.NoError(t, prog.Define("doomed"))

	require.NoError(t, prog.Purge())

	// The definition is gone; further operations report the purge.
	err := prog.ScheduleNow()
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EProgramIsPurged))

	prog.Release()
	assert.Zero(t, tr.ActiveObjects())

	list, err := object.Programs(sess)
	require.NoError(t, err)
	assert.Empty(t, list.Items())
	list.Release()
}

func TestProgramScheduleNowSpawnsProcess(t *testing.T) {
	tr, sess := newTestSession(t)

	prog := object.NewProgram(sess)
	require.NoError(t, prog.Define("blink"))
	require.NoError(t, prog.SetCommand("/usr/bin/python3", []string{"main.py"}, nil, "bin"))

	spawned := make(chan *object.Process, 1)
	prog.OnProcessSpawned(func(process *object.Process, timestamp uint64) {
		spawned <- process
	})

	require.NoError(t, prog.ScheduleNow())

	select {
	case process := <-spawned:
		require.NotNil(t, process)
		assert.Equal(t, "/usr/bin/python3", process.Executable().Data())
	case <-time.After(time.Second):
		t.Fatal("no process spawned event")
	}

	process, _ := prog.LastSpawnedProcess()
	require.NotNil(t, process)

	prog.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestProgramSchedulerStateEvent(t *testing.T) {
	tr, sess := newTestSession(t)

	prog := object.NewProgram(sess)
	require.NoError(t, prog.Define("blink"))

	states := make(chan protocol.SchedulerState, 1)
	prog.OnSchedulerStateChanged(func(state protocol.SchedulerState, timestamp uint64) {
		states <- state
	})

	id, attached := prog.ObjectID()
	require.True(t, attached)

	tr.EmitSchedulerStateChange(id, protocol.SchedulerStateErrorOccurred, 42, "spawn failed")

	select {
	case state := <-states:
		assert.Equal(t, protocol.SchedulerStateErrorOccurred, state)
	case <-time.After(time.Second):
		t.Fatal("no scheduler state event")
	}

	state, timestamp, message := prog.SchedulerState()
	assert.Equal(t, protocol.SchedulerStateErrorOccurred, state)
	assert.Equal(t, uint64(42), timestamp)
	assert.Equal(t, "spawn failed", message)

	prog.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestProgramSchedulerMessageOnlyForErrorState(t *testing.T) {
	tr, sess := newTestSession(t)

	prog := object.NewProgram(sess)
	require.NoError(t, prog.Define("blink"))

	// Outside the error state the message reference is dropped, not kept.
	tr.EmitSchedulerStateChange(mustObjectID(t, prog), protocol.SchedulerStateStopped, 7, "benign note")
	tr.Sync()

	state, timestamp, message := prog.SchedulerState()
	assert.Equal(t, protocol.SchedulerStateStopped, state)
	assert.Equal(t, uint64(7), timestamp)
	assert.Empty(t, message)

	tr.EmitSchedulerStateChange(mustObjectID(t, prog), protocol.SchedulerStateErrorOccurred, 8, "spawn failed")
	tr.Sync()

	_, _, message = prog.SchedulerState()
	assert.Equal(t, "spawn failed", message)

	prog.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func mustObjectID(t *testing.T, obj object.Object) protocol.ObjectID {
	t.Helper()

	id, attached := obj.ObjectID()
	require.True(t, attached)
	return id
}

func TestProgramEventsIgnoredAfterDetach(t *testing.T) {
	tr, sess := newTestSession(t)

	prog := object.NewProgram(sess)
	require.NoError(t, prog.Define("blink"))

	calls := 0
	prog.OnSchedulerStateChanged(func(protocol.SchedulerState, uint64) { calls++ })

	id, _ := prog.ObjectID()
	prog.Release()

	tr.EmitSchedulerStateChange(id, protocol.SchedulerStateStopped, 1, "")
	tr.Sync()

	assert.Zero(t, calls)
}
