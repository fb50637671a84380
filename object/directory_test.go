package object_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/object"
	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/transporttest"
)

func TestDirectoryOpenAndUpdate(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.SeedDirectory("/home/tf", []transporttest.DirEntry{
		{Name: "programs", Type: protocol.DirectoryEntryTypeDirectory},
		{Name: ".bashrc", Type: protocol.DirectoryEntryTypeRegular},
		{Name: "data.log", Type: protocol.DirectoryEntryTypeRegular},
	})

	d := object.NewDirectory(sess)
	require.NoError(t, d.Open("/home/tf"))

	require.NotNil(t, d.Name())
	assert.Equal(t, "/home/tf", d.Name().Data())

	entries := d.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "programs", entries[0].Name.Data())
	assert.Equal(t, protocol.DirectoryEntryTypeDirectory, entries[0].Type)
	assert.Equal(t, ".bashrc", entries[1].Name.Data())
	assert.Equal(t, "data.log", entries[2].Name.Data())

	// A second update walks the listing again without leaking the first.
	require.NoError(t, d.Update())
	require.Len(t, d.Entries(), 3)

	d.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestDirectoryOpenMissing(t *testing.T) {
	tr, sess := newTestSession(t)

	d := object.NewDirectory(sess)
	err := d.Open("/nowhere")
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EDoesNotExist))
	assert.Zero(t, tr.ActiveObjects())
}

func TestCreateDirectory(t *testing.T) {
	tr, sess := newTestSession(t)

	require.NoError(t, object.CreateDirectory(sess, "/home/tf/new", 0, 0o755, 0, 0))

	// Exclusive creation of an existing directory fails.
	err := object.CreateDirectory(sess, "/home/tf/new", protocol.DirectoryFlagExclusive, 0o755, 0, 0)
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EAlreadyExists))

	d := object.NewDirectory(sess)
	require.NoError(t, d.Open("/home/tf/new"))
	assert.Empty(t, d.Entries())

	d.Release()
	assert.Zero(t, tr.ActiveObjects())
}

func TestLookupFileInfo(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.SeedFile("/etc/hostname", []byte("red-brick\n"))
	tr.SeedSymlink("/etc/alias", "/etc/hostname")

	stat, err := object.LookupFileInfo(sess, "/etc/hostname", false)
	require.NoError(t, err)
	assert.Equal(t, protocol.FileTypeRegular, stat.Type)
	assert.Equal(t, uint64(10), stat.Length)

	stat, err = object.LookupFileInfo(sess, "/etc/alias", false)
	require.NoError(t, err)
	assert.Equal(t, protocol.FileTypeSymlink, stat.Type)

	stat, err = object.LookupFileInfo(sess, "/etc/alias", true)
	require.NoError(t, err)
	assert.Equal(t, protocol.FileTypeRegular, stat.Type)

	_, err = object.LookupFileInfo(sess, "/nowhere", true)
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EDoesNotExist))

	assert.Zero(t, tr.ActiveObjects())
}

func TestLookupSymlinkTarget(t *testing.T) {
	tr, sess := newTestSession(t)

	tr.SeedSymlink("/etc/alias", "/etc/hostname")

	target, err := object.LookupSymlinkTarget(sess, "/etc/alias", false)
	require.NoError(t, err)
	assert.Equal(t, "/etc/hostname", target.Data())
	target.Release()

	_, err = object.LookupSymlinkTarget(sess, "/etc/hostname", false)
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.EDoesNotExist))

	assert.Zero(t, tr.ActiveObjects())
}
