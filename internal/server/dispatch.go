package server

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/alangmartini/godlyd/internal/protocol"
	"github.com/alangmartini/godlyd/internal/ptysession"
)

// dispatch handles one request and returns the Response to send back, or
// nil if the handler already enqueued its own reply (Attach does, since it
// also has to start the output forwarder before the client can race ahead
// and send a Write for the session it just attached to).
func (cs *clientSession) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Type {
	case protocol.RequestPing:
		return &protocol.Response{Type: protocol.ResponsePong}

	case protocol.RequestCreateSession:
		return cs.handleCreateSession(req)

	case protocol.RequestListSessions:
		return &protocol.Response{Type: protocol.ResponseSessionList, Sessions: cs.registry.List()}

	case protocol.RequestAttach:
		cs.handleAttach(ctx, req)
		return nil

	case protocol.RequestDetach:
		return cs.handleDetach(req)

	case protocol.RequestWrite:
		sess, err := cs.registry.Get(req.ID)
		if err != nil {
			return notFoundResponse(req.ID)
		}
		sess.QueueWrite(req.Data)
		return &protocol.Response{Type: protocol.ResponseOk}

	case protocol.RequestResize:
		sess, err := cs.registry.Get(req.ID)
		if err != nil {
			return notFoundResponse(req.ID)
		}
		if err := sess.Resize(req.Rows, req.Cols); err != nil {
			return errorResponse(err)
		}
		return &protocol.Response{Type: protocol.ResponseOk}

	case protocol.RequestCloseSession:
		return cs.handleCloseSession(req)

	case protocol.RequestReadBuffer:
		sess, err := cs.registry.Get(req.ID)
		if err != nil {
			return notFoundResponse(req.ID)
		}
		return &protocol.Response{Type: protocol.ResponseBuffer, SessionID: req.ID, BufData: sess.ReadBuffer()}

	case protocol.RequestReadGrid:
		sess, err := cs.registry.Get(req.ID)
		if err != nil {
			return notFoundResponse(req.ID)
		}
		return &protocol.Response{Type: protocol.ResponseGrid, Grid: sess.Grid().ExtractPlain()}

	case protocol.RequestReadRichGrid:
		sess, err := cs.registry.Get(req.ID)
		if err != nil {
			return notFoundResponse(req.ID)
		}
		return &protocol.Response{Type: protocol.ResponseRichGrid, RichGrid: sess.Grid().ExtractFull()}

	case protocol.RequestReadRichGridDiff:
		sess, err := cs.registry.Get(req.ID)
		if err != nil {
			return notFoundResponse(req.ID)
		}
		diff := sess.Grid().ExtractDiff(req.SinceSeq, req.FullRepaintPending)
		return &protocol.Response{Type: protocol.ResponseRichGridDiff, RichGridDiff: diff}

	case protocol.RequestSetScrollback:
		sess, err := cs.registry.Get(req.ID)
		if err != nil {
			return notFoundResponse(req.ID)
		}
		sess.Grid().SetScrollbackOffset(req.Offset)
		return &protocol.Response{Type: protocol.ResponseOk}

	case protocol.RequestSearchBuffer:
		return cs.handleSearchBuffer(req)

	case protocol.RequestGetLastOutputTime:
		sess, err := cs.registry.Get(req.ID)
		if err != nil {
			return notFoundResponse(req.ID)
		}
		return &protocol.Response{
			Type:        protocol.ResponseLastOutputTime,
			EpochMillis: sess.LastOutputTime().UnixMilli(),
			Running:     sess.IsRunning(),
		}

	default:
		return errorResponse(fmt.Errorf("unknown request type %q", req.Type))
	}
}

func (cs *clientSession) handleCreateSession(req *protocol.Request) *protocol.Response {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := cs.registry.Get(id); err == nil {
		return errorResponse(fmt.Errorf("session %s already exists", id))
	}

	shell := protocol.ShellKind{Kind: protocol.ShellKindNative}
	if req.Shell != nil {
		shell = *req.Shell
	}

	sess, err := ptysession.New(ptysession.Config{
		ID:     id,
		Shell:  shell,
		Cwd:    req.Cwd,
		Rows:   req.Rows,
		Cols:   req.Cols,
		Env:    req.Env,
		Logger: cs.logger,
	})
	if err != nil {
		return errorResponse(fmt.Errorf("creating session: %w", err))
	}

	cs.registry.Add(sess)
	info := sess.Info()
	return &protocol.Response{Type: protocol.ResponseSessionCreated, Session: &info}
}

// handleAttach drains the session's ring buffer into a Buffer response and
// starts a forwarder goroutine moving subsequent output into the client's
// outbound queue. It writes its own response (rather than returning one)
// because the forwarder must already be registered before the client can
// plausibly race ahead with a Write to the session it just attached to.
func (cs *clientSession) handleAttach(ctx context.Context, req *protocol.Request) {
	sess, err := cs.registry.Get(req.ID)
	if err != nil {
		cs.sendResponse(ctx, notFoundResponse(req.ID))
		return
	}

	if cancel, already := cs.forwarders[req.ID]; already {
		cancel()
		delete(cs.forwarders, req.ID)
	}

	replay, sink := sess.Attach()

	forwardCtx, cancel := context.WithCancel(ctx)
	cs.forwarders[req.ID] = cancel
	go cs.forwardOutput(forwardCtx, req.ID, sink, sess.IsRunning)

	cs.sendResponse(ctx, &protocol.Response{Type: protocol.ResponseBuffer, SessionID: req.ID, BufData: replay})
}

func (cs *clientSession) handleDetach(req *protocol.Request) *protocol.Response {
	sess, err := cs.registry.Get(req.ID)
	if err != nil {
		return notFoundResponse(req.ID)
	}
	if cancel, ok := cs.forwarders[req.ID]; ok {
		cancel()
		delete(cs.forwarders, req.ID)
	}
	sess.Detach()
	return &protocol.Response{Type: protocol.ResponseOk}
}

func (cs *clientSession) handleCloseSession(req *protocol.Request) *protocol.Response {
	sess, err := cs.registry.Get(req.ID)
	if err != nil {
		return notFoundResponse(req.ID)
	}
	if cancel, ok := cs.forwarders[req.ID]; ok {
		cancel()
		delete(cs.forwarders, req.ID)
	}
	if err := sess.Close(); err != nil {
		return errorResponse(fmt.Errorf("closing session: %w", err))
	}
	cs.registry.Remove(req.ID)
	return &protocol.Response{Type: protocol.ResponseOk}
}

// handleSearchBuffer scans a session's ring buffer snapshot for req.Text,
// either as a plain substring or, when req.Glob is set, as a
// github.com/gobwas/glob pattern wrapped in `*…*`, so it matches anywhere
// within a line.
func (cs *clientSession) handleSearchBuffer(req *protocol.Request) *protocol.Response {
	sess, err := cs.registry.Get(req.ID)
	if err != nil {
		return notFoundResponse(req.ID)
	}

	data := sess.ReadBuffer()
	text := string(data)
	if req.StripANSI {
		text = stripANSI(text)
	}

	var found bool
	if req.Glob {
		pattern, err := glob.Compile("*" + req.Text + "*")
		if err != nil {
			return errorResponse(fmt.Errorf("compiling search pattern: %w", err))
		}
		for _, line := range strings.Split(text, "\n") {
			if pattern.Match(line) {
				found = true
				break
			}
		}
	} else {
		found = bytes.Contains([]byte(text), []byte(req.Text))
	}

	return &protocol.Response{Type: protocol.ResponseSearchResult, Found: found, Running: sess.IsRunning()}
}

// sendResponse enqueues resp onto the client's outbound message queue,
// for handlers (like Attach) that need to finish setup work before the
// reply becomes safe to send.
func (cs *clientSession) sendResponse(ctx context.Context, resp *protocol.Response) {
	select {
	case cs.msgIn <- &protocol.DaemonMessage{Kind: protocol.DaemonMessageResponse, Response: resp}:
	case <-ctx.Done():
	}
}

func notFoundResponse(id string) *protocol.Response {
	return &protocol.Response{Type: protocol.ResponseError, Message: fmt.Sprintf("Session %s not found", id)}
}

func errorResponse(err error) *protocol.Response {
	return &protocol.Response{Type: protocol.ResponseError, Message: err.Error()}
}
