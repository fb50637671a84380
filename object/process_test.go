package object_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/object"
	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/transporttest"
)

func TestProcessesListsKnownProcesses(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.AddProcess(transporttest.ProcessDef{
		Executable:       "/usr/bin/python3",
		Arguments:        []string{"main.py", "--loop"},
		Environment:      []string{"HOME=/home/tf"},
		WorkingDirectory: "/home/tf",
		PID:              1402,
		UID:              1000,
		GID:              1000,
		State:            protocol.ProcessStateRunning,
	})

	list, err := object.Processes(sess)
	require.NoError(t, err)

	require.Len(t, list.Items(), 1)
	proc, ok := list.Items()[0].(*object.Process)
	require.True(t, ok, "expected *object.Process, got %T", list.Items()[0])

	assert.Equal(t, "/usr/bin/python3", proc.Executable().Data())
	assert.Equal(t, []string{"main.py", "--loop"}, listData(t, proc.Arguments()))
	assert.Equal(t, "/home/tf", proc.WorkingDirectory().Data())
	assert.Equal(t, uint32(1402), proc.PID())
	assert.Equal(t, uint32(1000), proc.UID())

	state, _, _ := proc.State()
	assert.Equal(t, protocol.ProcessStateRunning, state)

	require.NotNil(t, proc.Stdout())
	_, ok = proc.Stdout().(*object.Pipe)
	assert.True(t, ok, "expected stdout pipe, got %T", proc.Stdout())

	list.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestProcessSpawnAndKill(t *testing.T) {
	tr, sess := newTestSession(t)

	newPipe := func() *object.Pipe {
		p := object.NewPipe(sess)
		require.NoError(t, p.Create(0, 4096))
		return p
	}
	stdin, stdout, stderr := newPipe(), newPipe(), newPipe()

	proc := object.NewProcess(sess)
	err := proc.Spawn("/bin/sh", []string{"-c", "sleep 60"}, []string{"PATH=/bin"}, "/tmp",
		1000, 1000, stdin, stdout, stderr)
	require.NoError(t, err)

	assert.NotZero(t, proc.PID())
	state, _, _ := proc.State()
	assert.Equal(t, protocol.ProcessStateRunning, state)

	transitions := make(chan protocol.ProcessState, 1)
	proc.OnStateChanged(func(state protocol.ProcessState, timestamp uint64, exitCode uint8) {
		transitions <- state
	})

	require.NoError(t, proc.Kill(protocol.ProcessSignalKill))

	select {
	case state := <-transitions:
		assert.Equal(t, protocol.ProcessStateKilled, state)
	case <-time.After(time.Second):
		t.Fatal("no state change event")
	}

	tr.Sync()
	state, _, _ = proc.State()
	assert.Equal(t, protocol.ProcessStateKilled, state)

	// The process owns the command objects and the stdio pipes.
	proc.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestProcessSpawnFailureReleasesInputs(t *testing.T) {
	tr, sess := newTestSession(t)

	newPipe := func() *object.Pipe {
		p := object.NewPipe(sess)
		require.NoError(t, p.Create(0, 4096))
		return p
	}
	stdin, stdout, stderr := newPipe(), newPipe(), newPipe()

	tr.FailNext("SpawnProcess", protocol.EAccessDenied)

	proc := object.NewProcess(sess)
	err := proc.Spawn("/bin/sh", nil, nil, "/", 0, 0, stdin, stdout, stderr)
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EAccessDenied))

	_, attached := proc.ObjectID()
	assert.False(t, attached)

	// The caller keeps its stdio handles; only the allocated command
	// objects were rolled back.
	stdin.Release()
	stdout.Release()
	stderr.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestProcessSpawnRefreshFailureKeepsStdio(t *testing.T) {
	tr, sess := newTestSession(t)

	newPipe := func() *object.Pipe {
		p := object.NewPipe(sess)
		require.NoError(t, p.Create(0, 4096))
		return p
	}
	stdin, stdout, stderr := newPipe(), newPipe(), newPipe()

	// The spawn itself succeeds; the identity refresh right after fails.
	tr.FailNext("GetProcessIdentity", protocol.EUnknownObjectID)

	proc := object.NewProcess(sess)
	err := proc.Spawn("/bin/sh", nil, nil, "/", 0, 0, stdin, stdout, stderr)
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EUnknownObjectID))

	_, attached := proc.ObjectID()
	assert.False(t, attached)

	// The process object and the allocated command objects were rolled back;
	// the caller's stdio handles are still attached.
	assert.Equal(t, 3, tr.ActiveObjects())
	_, attached = stdin.ObjectID()
	assert.True(t, attached)

	stdin.Release()
	stdout.Release()
	stderr.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestProcessPartialCommandDecodeReleasesAll(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.AddProcess(transporttest.ProcessDef{
		Executable: "/bin/true",
		PID:        7,
		State:      protocol.ProcessStateExited,
	})

	list, err := object.Processes(sess)
	require.NoError(t, err)
	defer list.Release()

	proc := list.Items()[0].(*object.Process)
	before := tr.ActiveObjects()

	// The executable attach passes, the arguments list fetch fails.
	tr.FailNext("GetListLength", protocol.EUnknownObjectID)

	err = proc.UpdateCommand()
	require.Error(t, err)

	// All four freshly handed-out references are gone again.
	assert.Equal(t, before, tr.ActiveObjects())
}
