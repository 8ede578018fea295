package plugins

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
)

func superEnv(t *testing.T, timeout time.Duration) (*store.DB, *Supervisor) {
	t.Helper()
	db := testutil.TestDB(t)
	s := New(db, timeout, testutil.TestLogger(t))
	t.Cleanup(s.ShutdownAll)
	return db, s
}

func registerEcho(t *testing.T, db *store.DB, name string) {
	t.Helper()
	require.NoError(t, db.UpsertPlugin(name, "1.0", "core", `{"core":{"call":true}}`, true))
}

// spawnShell starts a plugin process running the given shell script.
func spawnShell(t *testing.T, s *Supervisor, name, script string) {
	t.Helper()
	_, err := s.Spawn(name, "/bin/sh", []string{"-c", script})
	require.NoError(t, err)
}

func TestSpawnListShutdown(t *testing.T) {
	_, s := superEnv(t, 0)

	proc, err := s.Spawn("echo", "/bin/cat", nil)
	require.NoError(t, err)
	assert.True(t, proc.Running)
	assert.NotZero(t, proc.PID)

	_, err = s.Spawn("echo", "/bin/cat", nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "echo", list[0].Name)
	assert.True(t, list[0].Running)

	stopped, err := s.Shutdown("echo")
	require.NoError(t, err)
	assert.True(t, stopped)

	stopped, err = s.Shutdown("echo")
	require.NoError(t, err)
	assert.False(t, stopped)

	list = s.List()
	require.Len(t, list, 1)
	assert.False(t, list[0].Running)
}

func TestCallEchoCorrelation(t *testing.T) {
	db, s := superEnv(t, 0)
	registerEcho(t, db, "echo")

	// cat echoes each request line back; the echoed id correlates it as the
	// response to the in-flight call.
	_, err := s.Spawn("echo", "/bin/cat", nil)
	require.NoError(t, err)

	_, err = s.Call(context.Background(), "echo", `{"jsonrpc":"2.0","id":1,"method":"status"}`)
	assert.NoError(t, err)

	_, err = s.Call(context.Background(), "echo", `{"jsonrpc":"2.0","id":"abc","method":"status"}`)
	assert.NoError(t, err, "string ids correlate too")
}

func TestCallNotificationReturnsNothing(t *testing.T) {
	db, s := superEnv(t, 0)
	registerEcho(t, db, "echo")
	_, err := s.Spawn("echo", "/bin/cat", nil)
	require.NoError(t, err)

	raw, err := s.Call(context.Background(), "echo", `{"jsonrpc":"2.0","method":"log.flush"}`)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestCallPolicyRunsBeforeDispatch(t *testing.T) {
	db, s := superEnv(t, 0)
	require.NoError(t, db.UpsertPlugin("locked", "1.0", "core", `{}`, true))

	// No process is needed: the grant check rejects first.
	_, err := s.Call(context.Background(), "locked", `{"id":1,"method":"status"}`)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = s.Call(context.Background(), "unregistered", `{"id":1,"method":"status"}`)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCallRequiresRunningProcess(t *testing.T) {
	db, s := superEnv(t, 0)
	registerEcho(t, db, "echo")

	_, err := s.Call(context.Background(), "echo", `{"id":1,"method":"status"}`)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMalformedResponseFailsOldestCallOnly(t *testing.T) {
	db, s := superEnv(t, 0)
	registerEcho(t, db, "garbler")

	// Replies to every request with a line that is not JSON, then keeps
	// reading so the process stays alive.
	spawnShell(t, s, "garbler", `while read line; do echo "definitely not json"; done`)

	_, err := s.Call(context.Background(), "garbler", `{"id":1,"method":"status"}`)
	assert.ErrorIs(t, err, apperr.ErrProtocolError)

	// The process survives its own protocol violation.
	list := s.List()
	require.Len(t, list, 1)
	assert.True(t, list[0].Running)
}

func TestProcessExitFailsInflightCalls(t *testing.T) {
	db, s := superEnv(t, 0)
	registerEcho(t, db, "flaky")

	spawnShell(t, s, "flaky", `read line; exit 1`)

	_, err := s.Call(context.Background(), "flaky", `{"id":1,"method":"status"}`)
	assert.ErrorIs(t, err, apperr.ErrProcessTerminated)
}

func TestInvokeMapsMethodNotFound(t *testing.T) {
	_, s := superEnv(t, 0)

	// The first host-originated call uses id host-1.
	spawnShell(t, s, "stub",
		`read line; printf '%s\n' '{"jsonrpc":"2.0","id":"host-1","error":{"code":-32601,"message":"no such method"}}'; sleep 2`)

	_, err := s.Invoke(context.Background(), "stub", "does.not.exist", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInvokeReturnsResult(t *testing.T) {
	_, s := superEnv(t, 0)

	spawnShell(t, s, "stub",
		`read line; printf '%s\n' '{"jsonrpc":"2.0","id":"host-1","result":{"text":"hi"}}'; sleep 2`)

	raw, err := s.Invoke(context.Background(), "stub", "ai.invoke", map[string]string{"prompt": "p"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi"}`, string(raw))
}

func TestCallTimesOut(t *testing.T) {
	db, s := superEnv(t, 100*time.Millisecond)
	registerEcho(t, db, "mute")

	spawnShell(t, s, "mute", `read line; sleep 5`)

	_, err := s.Call(context.Background(), "mute", `{"id":1,"method":"status"}`)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallHonorsContextCancel(t *testing.T) {
	db, s := superEnv(t, 0)
	registerEcho(t, db, "mute")

	spawnShell(t, s, "mute", `read line; sleep 5`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := s.Call(ctx, "mute", `{"id":1,"method":"status"}`)
	assert.ErrorIs(t, err, context.Canceled)
}
