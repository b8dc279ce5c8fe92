package server

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alangmartini/godlyd/internal/protocol"
	"github.com/alangmartini/godlyd/internal/registry"
)

// newTestClient spins up handleClient against one end of an in-memory
// net.Pipe and returns the other end for the test to drive as a client.
func newTestClient(t *testing.T) (net.Conn, *registry.Registry) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	reg := registry.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		handleClient(ctx, serverConn, reg, slog.Default())
	}()

	t.Cleanup(func() {
		cancel()
		clientConn.Close()
		<-done
	})

	return clientConn, reg
}

func roundTrip(t *testing.T, conn net.Conn, req *protocol.Request) *protocol.DaemonMessage {
	t.Helper()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, protocol.WriteRequest(conn, req))
	msg, err := protocol.ReadDaemonMessage(conn)
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func TestPing(t *testing.T) {
	conn, _ := newTestClient(t)
	msg := roundTrip(t, conn, &protocol.Request{Type: protocol.RequestPing})
	require.Equal(t, protocol.DaemonMessageResponse, msg.Kind)
	require.Equal(t, protocol.ResponsePong, msg.Response.Type)
}

func TestCreateSessionUnknownShellKindIsRejected(t *testing.T) {
	conn, _ := newTestClient(t)
	msg := roundTrip(t, conn, &protocol.Request{
		Type:  protocol.RequestCreateSession,
		ID:    "sess-1",
		Shell: &protocol.ShellKind{Kind: "bogus"},
		Rows:  24,
		Cols:  80,
	})
	require.Equal(t, protocol.DaemonMessageResponse, msg.Kind)
	require.Equal(t, protocol.ResponseError, msg.Response.Type)
}

func TestWriteWithUnknownSessionReturnsNotFound(t *testing.T) {
	conn, _ := newTestClient(t)
	msg := roundTrip(t, conn, &protocol.Request{Type: protocol.RequestWrite, ID: "nope", Data: []byte("x")})
	require.Equal(t, protocol.ResponseError, msg.Response.Type)
	require.Contains(t, msg.Response.Message, "nope")
}

func TestListSessionsEmpty(t *testing.T) {
	conn, _ := newTestClient(t)
	msg := roundTrip(t, conn, &protocol.Request{Type: protocol.RequestListSessions})
	require.Equal(t, protocol.ResponseSessionList, msg.Response.Type)
	require.Empty(t, msg.Response.Sessions)
}

func TestDetachUnknownSessionReturnsNotFound(t *testing.T) {
	conn, _ := newTestClient(t)
	msg := roundTrip(t, conn, &protocol.Request{Type: protocol.RequestDetach, ID: "ghost"})
	require.Equal(t, protocol.ResponseError, msg.Response.Type)
}
