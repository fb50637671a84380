package object_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/object"
	"github.com/tfchina/brickv/protocol"
)

func listData(t *testing.T, l *object.List) []string {
	t.Helper()

	values := make([]string, 0, len(l.Items()))
	for _, item := range l.Items() {
		str, ok := item.(*object.String)
		require.True(t, ok, "expected string item, got %T", item)
		values = append(values, str.Data())
	}
	return values
}

func TestListAllocateAndUpdate(t *testing.T) {
	tr, sess := newTestSession(t)

	l := object.NewList(sess)
	require.NoError(t, l.Allocate("a", "bb", "ccc"))

	assert.Equal(t, []string{"a", "bb", "ccc"}, listData(t, l))

	// Update decodes fresh item handles from the server.
	require.NoError(t, l.Update())
	assert.Equal(t, []string{"a", "bb", "ccc"}, listData(t, l))

	l.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestListAllocateAcceptsAttachedObjects(t *testing.T) {
	tr, sess := newTestSession(t)

	str := object.NewString(sess)
	require.NoError(t, str.Allocate("shared"))

	l := object.NewList(sess)
	require.NoError(t, l.Allocate("plain", str))

	assert.Equal(t, []string{"plain", "shared"}, listData(t, l))

	// The list took ownership of the appended handle.
	l.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestListAllocateRejectsUnsupportedItem(t *testing.T) {
	tr, sess := newTestSession(t)

	l := object.NewList(sess)
	err := l.Allocate(42)
	require.Error(t, err)

	_, attached := l.ObjectID()
	assert.False(t, attached)
	assert.Zero(t, tr.ActiveObjects())
}

func TestListPartialDecodeReleasesDecodedItems(t *testing.T) {
	tr, sess := newTestSession(t)

	l := object.NewList(sess)
	require.NoError(t, l.Allocate("one", "two", "three", "four", "five"))

	before := tr.ActiveObjects()
	releasesBefore := len(tr.Released())

	// Let the first two item fetches pass and fail the third.
	tr.FailNext("GetListItem", protocol.ESuccess)
	tr.FailNext("GetListItem", protocol.ESuccess)
	tr.FailNext("GetListItem", protocol.EUnknownObjectID)

	err := l.Update()
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EUnknownObjectID))

	// Both decoded items were released, exactly once each; nothing leaked.
	assert.Equal(t, releasesBefore+2, len(tr.Released()))
	assert.Equal(t, before, tr.ActiveObjects())

	// The handle still holds the pre-update items and tears down cleanly.
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, listData(t, l))
	l.Release()
	assert.Zero(t, tr.ActiveObjects())
}
