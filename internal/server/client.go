package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/alangmartini/godlyd/internal/protocol"
	"github.com/alangmartini/godlyd/internal/registry"
)

// peekPollInterval is how long the I/O loop blocks on a read attempt before
// falling through to check for an outgoing message. Windows named pipes are
// synchronous per handle, so one goroutine must service both directions;
// this is the idiomatic substitute for a PeekNamedPipe poll.
const peekPollInterval = 1 * time.Millisecond

// clientSession tracks the per-connection state a single client's I/O loop
// and handler loop share: the unbounded request/message pipes between them,
// and the cancel funcs for its attach forwarders.
type clientSession struct {
	conn     net.Conn
	registry *registry.Registry
	logger   *slog.Logger

	reqOut <-chan *protocol.Request
	msgIn  chan<- *protocol.DaemonMessage

	forwarders map[string]context.CancelFunc
}

// handleClient owns one client connection end to end: it runs the I/O
// loop and the handler loop concurrently and returns once either side
// observes the connection closing. Sessions the client had attached are
// detached on return; sessions themselves keep running.
func handleClient(ctx context.Context, conn net.Conn, reg *registry.Registry, logger *slog.Logger) {
	defer conn.Close()

	reqIn, reqOut := unboundedPipe[*protocol.Request]()
	msgIn, msgOut := unboundedPipe[*protocol.DaemonMessage]()

	cs := &clientSession{
		conn:       conn,
		registry:   reg,
		logger:     logger,
		reqOut:     reqOut,
		msgIn:      msgIn,
		forwarders: make(map[string]context.CancelFunc),
	}

	clientCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		cs.ioLoop(clientCtx, reqIn, msgOut)
	}()

	cs.handlerLoop(clientCtx)
	<-done

	for id, cancelForward := range cs.forwarders {
		cancelForward()
		if sess, err := reg.Get(id); err == nil {
			sess.Detach()
		}
	}
}

// ioLoop is the only goroutine that touches conn. Each iteration peeks for
// an inbound byte without consuming it; if one is waiting, it reads one
// complete framed Request and hands it to the handler loop. Otherwise it
// tries to send one queued outbound DaemonMessage. bufio.Reader.Peek only
// issues an underlying Read when its buffer is empty, and a deadline
// timeout that reads zero bytes leaves that buffer untouched, so probing
// never corrupts the next full-frame read.
func (cs *clientSession) ioLoop(ctx context.Context, reqIn chan<- *protocol.Request, msgOut <-chan *protocol.DaemonMessage) {
	defer close(reqIn)

	br := bufio.NewReader(cs.conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cs.conn.SetReadDeadline(time.Now().Add(peekPollInterval))
		_, err := br.Peek(1)
		cs.conn.SetReadDeadline(time.Time{})

		if err == nil {
			req, err := protocol.ReadRequest(br)
			if err != nil {
				cs.logger.Debug("client read error, closing connection", "error", err)
				return
			}
			if req == nil {
				return // clean EOF
			}
			select {
			case reqIn <- req:
			case <-ctx.Done():
				return
			}
			continue
		}

		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			cs.logger.Debug("client peek error, closing connection", "error", err)
			return
		}

		select {
		case msg := <-msgOut:
			if err := protocol.WriteDaemonMessage(cs.conn, msg); err != nil {
				cs.logger.Debug("client write error, closing connection", "error", err)
				return
			}
		default:
			time.Sleep(peekPollInterval)
		}
	}
}

// handlerLoop drains requests produced by ioLoop, dispatches each against
// the registry, and enqueues the response for ioLoop to write out. It
// returns once reqOut closes, which happens when ioLoop observes the
// connection closing. A panic inside dispatch is recovered, logged, and
// answered with an error response.
func (cs *clientSession) handlerLoop(ctx context.Context) {
	for {
		select {
		case req, ok := <-cs.reqOut:
			if !ok {
				return
			}
			resp := func() (resp *protocol.Response) {
				defer func() {
					if r := recover(); r != nil {
						cs.logger.Error("request handler panicked", "panic", r)
						resp = errorResponse(fmt.Errorf("internal error: %v", r))
					}
				}()
				return cs.dispatch(ctx, req)
			}()
			if resp == nil {
				continue // Attach already queued Ok/Buffer itself
			}
			select {
			case cs.msgIn <- &protocol.DaemonMessage{Kind: protocol.DaemonMessageResponse, Response: resp}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// forwardOutput moves one session's output sink into the client's outbound
// message queue as Event.Output frames until the sink closes (Detach or the
// session closing) or ctx is cancelled. If the sink closed because the
// session died rather than because of an explicit Detach, it also emits
// Event.SessionClosed so an attached client's tab doesn't sit silently dead.
func (cs *clientSession) forwardOutput(ctx context.Context, sessionID string, sink <-chan []byte, running func() bool) {
	for {
		select {
		case data, ok := <-sink:
			if !ok {
				if !running() {
					select {
					case cs.msgIn <- &protocol.DaemonMessage{
						Kind: protocol.DaemonMessageEvent,
						Event: &protocol.Event{
							Type:      protocol.EventSessionClosed,
							SessionID: sessionID,
						},
					}:
					case <-ctx.Done():
					}
				}
				return
			}
			select {
			case cs.msgIn <- &protocol.DaemonMessage{
				Kind: protocol.DaemonMessageEvent,
				Event: &protocol.Event{
					Type:      protocol.EventOutput,
					SessionID: sessionID,
					Data:      data,
				},
			}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// pingOverConn writes a single Ping request and waits for a Pong, used by
// the single-instance probe to confirm a live daemon is listening on the
// other end of the pipe.
func pingOverConn(conn net.Conn) (bool, error) {
	conn.SetDeadline(time.Now().Add(200 * time.Millisecond))
	defer conn.SetDeadline(time.Time{})

	if err := protocol.WriteRequest(conn, &protocol.Request{Type: protocol.RequestPing}); err != nil {
		return false, fmt.Errorf("server: writing ping: %w", err)
	}

	msg, err := protocol.ReadDaemonMessage(conn)
	if err != nil {
		return false, fmt.Errorf("server: reading pong: %w", err)
	}
	if msg == nil || msg.Response == nil {
		return false, nil
	}
	return msg.Response.Type == protocol.ResponsePong, nil
}
