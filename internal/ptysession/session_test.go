package ptysession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alangmartini/godlyd/internal/protocol"
)

func newEchoSession(t *testing.T) *Session {
	t.Helper()
	sess, err := New(Config{
		ID:    "t1",
		Shell: protocol.ShellKind{Kind: protocol.ShellKindCustom, Program: "cat"},
		Rows:  24,
		Cols:  80,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestInfoReflectsConfig(t *testing.T) {
	sess := newEchoSession(t)
	info := sess.Info()

	require.Equal(t, "t1", info.ID)
	require.Equal(t, uint16(24), info.Rows)
	require.Equal(t, uint16(80), info.Cols)
	require.True(t, info.Running)
	require.False(t, info.Attached)
}

func TestResizeUpdatesInfo(t *testing.T) {
	sess := newEchoSession(t)
	require.NoError(t, sess.Resize(40, 120))

	info := sess.Info()
	require.Equal(t, uint16(40), info.Rows)
	require.Equal(t, uint16(120), info.Cols)
}

func TestAttachForwardsOutputThenDetach(t *testing.T) {
	sess := newEchoSession(t)

	_, sink := sess.Attach()
	require.True(t, sess.IsAttached())

	_, err := sess.Write([]byte("hello\n"))
	require.NoError(t, err)

	select {
	case data := <-sink:
		require.Contains(t, string(data), "hello")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed output on sink")
	}

	sess.Detach()
	require.False(t, sess.IsAttached())

	_, ok := <-sink
	require.False(t, ok, "sink should be closed after Detach")
}

func TestQueueWriteAppliesAsynchronously(t *testing.T) {
	sess := newEchoSession(t)
	_, sink := sess.Attach()

	sess.QueueWrite([]byte("queued\n"))

	select {
	case data := <-sink:
		require.Contains(t, string(data), "queued")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued write to reach the PTY")
	}
}

func TestCloseStopsSessionAndIsIdempotent(t *testing.T) {
	sess := newEchoSession(t)
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	// give the reader goroutine a moment to observe EOF and flip the flag
	require.Eventually(t, func() bool { return !sess.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

func TestWindowsToWSLPath(t *testing.T) {
	cases := map[string]string{
		`C:\Users\me\proj`:             "/mnt/c/Users/me/proj",
		`//wsl.localhost/Ubuntu/home`:  "/home",
		`//wsl$/Ubuntu`:                "/",
		"/already/linux/path":          "/already/linux/path",
	}
	for in, want := range cases {
		require.Equal(t, want, windowsToWSLPath(in), "input %q", in)
	}
}
