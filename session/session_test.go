package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfchina/brickv/callback"
	"github.com/tfchina/brickv/protocol"
	"github.com/tfchina/brickv/session"
	"github.com/tfchina/brickv/transporttest"
)

func TestSessionCreateAndExpire(t *testing.T) {
	tr := transporttest.New()
	defer tr.Close()

	sess, err := session.New(tr)
	require.NoError(t, err)

	assert.False(t, sess.Alive())

	require.NoError(t, sess.Create())
	assert.True(t, sess.Alive())

	id, ok := sess.ID()
	require.True(t, ok)
	assert.NotZero(t, id)

	sess.Expire()
	assert.False(t, sess.Alive())
	assert.Equal(t, 1, tr.Calls("ExpireSessionUnchecked"))

	// Idempotent: a second expire must not talk to the server again.
	sess.Expire()
	assert.Equal(t, 1, tr.Calls("ExpireSessionUnchecked"))
}

func TestSessionCreateReportsServerFailure(t *testing.T) {
	tr := transporttest.New()
	defer tr.Close()

	sess, err := session.New(tr)
	require.NoError(t, err)

	tr.FailNext("CreateSession", protocol.ENoFreeSessionID)

	err = sess.Create()
	require.Error(t, err)
	assert.True(t, protocol.IsCode(err, protocol.ENoFreeSessionID))
	assert.False(t, sess.Alive())
}

func TestSessionCreateRecyclesPriorSession(t *testing.T) {
	tr := transporttest.New()
	defer tr.Close()

	sess, err := session.New(tr)
	require.NoError(t, err)

	require.NoError(t, sess.Create())
	first, _ := sess.ID()

	require.NoError(t, sess.Create())
	second, _ := sess.ID()

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, tr.Calls("ExpireSessionUnchecked"))
}

func TestSessionKeepAliveRefreshesLease(t *testing.T) {
	tr := transporttest.New()
	defer tr.Close()

	sess, err := session.New(tr,
		session.WithKeepAliveInterval(5*time.Millisecond),
		session.WithLifetime(100*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, sess.Create())
	defer sess.Close()

	require.Eventually(t, func() bool {
		return tr.Calls("KeepSessionAlive") >= 2
	}, time.Second, time.Millisecond)
}

func TestSessionRejectsTightLifetime(t *testing.T) {
	tr := transporttest.New()
	defer tr.Close()

	_, err := session.New(tr,
		session.WithKeepAliveInterval(10*time.Second),
		session.WithLifetime(20*time.Second))
	require.Error(t, err)

	_, err = session.New(tr, session.WithKeepAliveInterval(0))
	require.Error(t, err)
}

func TestSessionExpireClearsListeners(t *testing.T) {
	tr := transporttest.New()
	defer tr.Close()

	sess, err := session.New(tr)
	require.NoError(t, err)
	require.NoError(t, sess.Create())

	calls := 0
	sess.Callbacks().Add(protocol.CallbackProcessStateChanged, callback.NewToken(), func(...interface{}) { calls++ })

	sess.Expire()

	sess.Callbacks().Dispatch(protocol.CallbackProcessStateChanged)
	assert.Zero(t, calls)
}
