package object_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/object"
	"github.com/tfchina/brickv/protocol"
)

func TestStringSingleChunkRoundTrip(t *testing.T) {
	tr, sess := newTestSession(t)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate("hello"))
	defer str.Release()

	// Short strings ride along with the allocation call.
	assert.Equal(t, 1, tr.Calls("AllocateString"))
	assert.Zero(t, tr.Calls("SetStringChunk"))

	require.NoError(t, str.Update())
	assert.Equal(t, "hello", str.Data())
}

func TestStringMultiChunkRoundTrip(t *testing.T) {
	tr, sess := newTestSession(t)

	data := strings.Repeat("x", 130)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate(data))
	defer str.Release()

	// 130 bytes: 58 with the allocation, then two set chunks (58 + 14).
	assert.Equal(t, 1, tr.Calls("AllocateString"))
	assert.Equal(t, 2, tr.Calls("SetStringChunk"))

	require.NoError(t, str.Update())
	assert.Equal(t, data, str.Data())

	// Fetching walks 63-byte chunks: 63 + 63 + 4.
	assert.Equal(t, 3, tr.Calls("GetStringChunk"))
}

func TestStringEmptyRoundTrip(t *testing.T) {
	_, sess := newTestSession(t)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate(""))
	defer str.Release()

	require.NoError(t, str.Update())
	assert.Empty(t, str.Data())
}

func TestStringAllocateFailureLeavesNothingBehind(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.FailNext("SetStringChunk", protocol.ENoFreeMemory)

	str := object.NewString(sess)
	err := str.Allocate(strings.Repeat("x", 130))
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.ENoFreeMemory))

	_, attached := str.ObjectID()
	assert.False(t, attached)
	assert.Zero(t, tr.ActiveObjects())
}
