package object_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/object"
	"github.com/tfchina/brickv/protocol"
)

func testPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i%251 + 1)
	}
	return data
}

func TestFileOpenFetchesMetadata(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.SeedFile("/etc/hostname", []byte("red-brick\n"))

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/etc/hostname", protocol.FileFlagReadOnly, 0, 0, 0))

	assert.Equal(t, protocol.FileTypeRegular, f.Type())
	require.NotNil(t, f.Name())
	assert.Equal(t, "/etc/hostname", f.Name().Data())
	assert.Equal(t, uint64(10), f.Length())

	f.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestFileOpenMissingWithoutCreate(t *testing.T) {
	tr, sess := newTestSession(t)

	f := object.NewFile(sess)
	err := f.Open("/no/such/file", protocol.FileFlagReadOnly, 0, 0, 0)
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EDoesNotExist))
	assert.Zero(t, tr.ActiveObjects())
}

func TestFileSyncWriteHandlesShortWrites(t *testing.T) {
	tr, sess := newTestSession(t)

	data := testPattern(200)

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/tmp/out.bin",
		protocol.FileFlagWriteOnly|protocol.FileFlagCreate|protocol.FileFlagTruncate, 0o644, 0, 0))
	defer f.Release()

	// The first chunk is only partially accepted; the stream must continue
	// from the server-reported position.
	tr.ShortNextWrite(10)

	require.NoError(t, f.Write(data))

	content, ok := tr.FileContent("/tmp/out.bin")
	require.True(t, ok)
	assert.True(t, bytes.Equal(data, content))

	// 200 bytes: 10 accepted, then 61+61+61, then the trailing 7.
	assert.Equal(t, 5, tr.Calls("WriteFile"))
}

func TestFileSyncReadStopsAtEnd(t *testing.T) {
	tr, sess := newTestSession(t)

	data := testPattern(150)
	tr.SeedFile("/tmp/in.bin", data)

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/tmp/in.bin", protocol.FileFlagReadOnly, 0, 0, 0))
	defer f.Release()

	got, err := f.Read(4096)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestFileAsyncWriteBurstBoundaries(t *testing.T) {
	tr, sess := newTestSession(t)

	// One full burst (1999 unchecked + 1 acknowledged chunk) plus a short
	// second burst with a single acknowledged chunk.
	size := (protocol.AsyncBurstChunks-1)*protocol.FileMaxWriteUnchecked + protocol.FileMaxWriteAsync + 10
	data := testPattern(size)

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/tmp/burst.bin",
		protocol.FileFlagWriteOnly|protocol.FileFlagCreate|protocol.FileFlagTruncate, 0o644, 0, 0))
	defer f.Release()

	var progress []int
	done := make(chan error, 1)
	err := f.WriteAsync(data,
		func(written, total int) { progress = append(progress, written) },
		func(err error) { done <- err })
	require.NoError(t, err)

	require.NoError(t, <-done)
	tr.Sync()

	assert.Equal(t, protocol.AsyncBurstChunks-1, tr.Calls("WriteFileUnchecked"))
	assert.Equal(t, 2, tr.Calls("WriteFileAsync"))

	content, ok := tr.FileContent("/tmp/burst.bin")
	require.True(t, ok)
	assert.True(t, bytes.Equal(data, content))

	require.NotEmpty(t, progress)
	assert.Equal(t, size, progress[len(progress)-1])
}

func TestFileAsyncWriteRejectsConcurrentTransfer(t *testing.T) {
	_, sess := newTestSession(t)

	size := 3 * protocol.AsyncBurstChunks * protocol.FileMaxWriteUnchecked
	data := testPattern(size)

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/tmp/busy.bin",
		protocol.FileFlagWriteOnly|protocol.FileFlagCreate, 0o644, 0, 0))
	defer f.Release()

	var overlapping error
	checked := false
	done := make(chan error, 1)

	err := f.WriteAsync(data,
		func(written, total int) {
			// Mid-transfer, a second write on the same handle must be
			// rejected.
			if !checked && written < total {
				checked = true
				overlapping = f.WriteAsync([]byte("x"), nil, nil)
			}
		},
		func(err error) { done <- err })
	require.NoError(t, err)

	require.NoError(t, <-done)
	require.True(t, checked)
	assert.ErrorIs(t, overlapping, object.ErrWriteInProgress)
}

func TestFileAsyncReadExactLength(t *testing.T) {
	tr, sess := newTestSession(t)

	data := testPattern(150)
	tr.SeedFile("/tmp/in.bin", data)

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/tmp/in.bin", protocol.FileFlagReadOnly, 0, 0, 0))
	defer f.Release()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	err := f.ReadAsync(100, nil, func(data []byte, err error) {
		done <- result{data: data, err: err}
	})
	require.NoError(t, err)

	r := <-done
	require.NoError(t, r.err)
	assert.True(t, bytes.Equal(data[:100], r.data))
}

func TestFileAsyncReadZeroLengthCompletesImmediately(t *testing.T) {
	tr, sess := newTestSession(t)

	data := testPattern(150)
	tr.SeedFile("/tmp/in.bin", data)

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/tmp/in.bin", protocol.FileFlagReadOnly, 0, 0, 0))
	defer f.Release()

	// The server sends no chunks for a zero-length request, so completion is
	// synchronous and never touches the transport.
	var got []byte
	completed := false
	err := f.ReadAsync(0, nil, func(data []byte, err error) {
		got = data
		completed = err == nil
	})
	require.NoError(t, err)

	assert.True(t, completed)
	assert.Empty(t, got)
	assert.Zero(t, tr.Calls("ReadFileAsync"))

	// The read slot is free again for a real transfer.
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	require.NoError(t, f.ReadAsync(4096, nil, func(data []byte, err error) {
		done <- result{data: data, err: err}
	}))

	r := <-done
	require.NoError(t, r.err)
	assert.True(t, bytes.Equal(data, r.data))
}

func TestFileAsyncReadStopsAtEndOfData(t *testing.T) {
	tr, sess := newTestSession(t)

	data := testPattern(150)
	tr.SeedFile("/tmp/in.bin", data)

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/tmp/in.bin", protocol.FileFlagReadOnly, 0, 0, 0))
	defer f.Release()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	err := f.ReadAsync(4096, nil, func(data []byte, err error) {
		done <- result{data: data, err: err}
	})
	require.NoError(t, err)

	r := <-done
	require.NoError(t, r.err)
	assert.True(t, bytes.Equal(data, r.data))
}

func TestPipeRoundTrip(t *testing.T) {
	tr, sess := newTestSession(t)

	p := object.NewPipe(sess)
	require.NoError(t, p.Create(0, 4096))

	assert.Equal(t, protocol.FileTypePipe, p.Type())
	assert.Nil(t, p.Name())

	require.NoError(t, p.Write([]byte("through the pipe")))

	got, err := p.Read(64)
	require.NoError(t, err)
	assert.Equal(t, []byte("through the pipe"), got)

	p.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestAttachFileOrPipeSelectsHandleType(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.SeedFile("/etc/hosts", []byte("127.0.0.1 localhost\n"))

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/etc/hosts", protocol.FileFlagReadOnly, 0, 0, 0))
	fileID, err := f.Detach()
	require.NoError(t, err)

	attached, err := object.AttachFileOrPipe(sess, fileID)
	require.NoError(t, err)
	file, ok := attached.(*object.File)
	require.True(t, ok, "expected *object.File, got %T", attached)
	assert.Equal(t, "/etc/hosts", file.Name().Data())
	file.Release()

	p := object.NewPipe(sess)
	require.NoError(t, p.Create(0, 64))
	pipeID, err := p.Detach()
	require.NoError(t, err)

	attached, err = object.AttachFileOrPipe(sess, pipeID)
	require.NoError(t, err)
	_, ok = attached.(*object.Pipe)
	require.True(t, ok, "expected *object.Pipe, got %T", attached)
	attached.Release()

	assert.Zero(t, tr.ActiveObjects())
}

func TestAttachFileOrPipeProbeFailureReleasesID(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.SeedFile("/etc/hosts", []byte("x"))

	f := object.NewFile(sess)
	require.NoError(t, f.Open("/etc/hosts", protocol.FileFlagReadOnly, 0, 0, 0))
	fileID, err := f.Detach()
	require.NoError(t, err)

	tr.FailNext("GetFileInfo", protocol.EUnknownObjectID)

	_, err = object.AttachFileOrPipe(sess, fileID)
	require.Error(t, err)
	assert.Zero(t, tr.ActiveObjects())
}
