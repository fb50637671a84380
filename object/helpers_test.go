package object_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/session"
	"github.com/tfchina/brickv/transporttest"
)

// newTestSession returns a created session on a fresh in-memory transport.
// Both are torn down with the test.
func newTestSession(t *testing.T) (*transporttest.Transport, *session.Session) {
	t.Helper()

	tr := transporttest.New()
	t.Cleanup(tr.Close)

	sess, err := session.New(tr)
	require.NoError(t, err)
	require.NoError(t, sess.Create())
	t.Cleanup(sess.Expire)

	return tr, sess
}
