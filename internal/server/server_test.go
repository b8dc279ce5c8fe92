package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alangmartini/godlyd/internal/config"
	"github.com/alangmartini/godlyd/internal/protocol"
	"github.com/alangmartini/godlyd/internal/ptysession"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(&config.Config{}, nil)
	t.Cleanup(s.RequestShutdown)
	return s
}

// TestIdleWatcherWaitsForLiveSessions pins down the "detached long-running
// build keeps the daemon up" guarantee: a session with nobody attached and
// no recent output must not be shut down out from under it just because it
// has been silent longer than the idle timeout.
func TestIdleWatcherWaitsForLiveSessions(t *testing.T) {
	s := newTestServer(t)

	sess, err := ptysession.New(ptysession.Config{
		ID:    "s1",
		Shell: protocol.ShellKind{Kind: protocol.ShellKindCustom, Program: "cat"},
		Rows:  24,
		Cols:  80,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	s.registry.Add(sess)

	s.wg.Add(1)
	go s.idleWatcher(5*time.Millisecond, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Nil(t, s.ctx.Err(), "idle watcher must not shut down while a session exists")
}

func TestIdleWatcherShutsDownWhenEmptyAndIdle(t *testing.T) {
	s := newTestServer(t)

	s.wg.Add(1)
	go s.idleWatcher(5*time.Millisecond, 20*time.Millisecond)

	require.Eventually(t, func() bool { return s.ctx.Err() != nil }, 2*time.Second, 10*time.Millisecond)
}
