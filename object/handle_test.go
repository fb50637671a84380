package object_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/object"
	"github.com/tfchina/brickv/protocol"
)

func TestHandleDetachAndReattach(t *testing.T) {
	tr, sess := newTestSession(t)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate("hello"))

	id, err := str.Detach()
	require.NoError(t, err)
	require.NotZero(t, id)

	_, attached := str.ObjectID()
	assert.False(t, attached)
	assert.Zero(t, tr.Calls("ReleaseObjectUnchecked"))

	// The detached ID is still valid and can back a fresh handle.
	other := object.NewString(sess)
	require.NoError(t, other.Attach(id, true))
	assert.Equal(t, "hello", other.Data())

	other.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestHandleDetachUnattachedFails(t *testing.T) {
	_, sess := newTestSession(t)

	str := object.NewString(sess)
	_, err := str.Detach()
	assert.ErrorIs(t, err, object.ErrNotAttached)
}

func TestHandleReleaseIsIdempotent(t *testing.T) {
	tr, sess := newTestSession(t)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate("hello"))

	str.Release()
	str.Release()
	require.NoError(t, str.Close())

	assert.Equal(t, 1, tr.Calls("ReleaseObjectUnchecked"))
	assert.Zero(t, tr.ActiveObjects())
}

func TestHandleReleaseSurvivesTransportFailure(t *testing.T) {
	tr, sess := newTestSession(t)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate("hello"))

	tr.FailNextError("ReleaseObjectUnchecked", errors.New("link down"))

	str.Release()

	_, attached := str.ObjectID()
	assert.False(t, attached)
	assert.Equal(t, 1, tr.Calls("ReleaseObjectUnchecked"))

	// The failed release is logged and swallowed; the handle is detached and
	// a second Release does not retry.
	str.Release()
	assert.Equal(t, 1, tr.Calls("ReleaseObjectUnchecked"))
	assert.Equal(t, 1, tr.ActiveObjects())
}

func TestHandleAttachRefreshFailureReleasesExactlyOnce(t *testing.T) {
	tr, sess := newTestSession(t)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate("hello"))

	id, err := str.Detach()
	require.NoError(t, err)

	tr.FailNext("GetStringLength", protocol.EUnknownObjectID)

	other := object.NewString(sess)
	err = other.Attach(id, true)
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EUnknownObjectID))

	_, attached := other.ObjectID()
	assert.False(t, attached)

	// The failed attach released the orphaned ID, exactly once.
	assert.Equal(t, 1, tr.Calls("ReleaseObjectUnchecked"))
	assert.Zero(t, tr.ActiveObjects())
}

func TestHandleAttachReplacesPriorObject(t *testing.T) {
	tr, sess := newTestSession(t)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate("first"))
	require.NoError(t, str.Allocate("second"))

	// Re-allocating released the first object.
	assert.Equal(t, 1, tr.Calls("ReleaseObjectUnchecked"))
	assert.Equal(t, "second", str.Data())

	str.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestHandleOperationsFailAfterSessionExpiry(t *testing.T) {
	_, sess := newTestSession(t)

	sess.Expire()

	str := object.NewString(sess)
	err := str.Allocate("hello")
	assert.ErrorIs(t, err, object.ErrSessionExpired)
}
