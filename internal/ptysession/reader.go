package ptysession

import (
	"errors"
	"io"
	"time"
)

// readerLoop is the single goroutine that ever reads the PTY master. It
// feeds every chunk to the VT grid, then routes the same bytes to either
// the attached client's sink or the ring buffer. While a sink is attached,
// output is never silently diverted to the ring buffer: a full channel
// escalates from a non-blocking try-send to a blocking send, which applies
// natural backpressure all the way back to the PTY read.
func (s *Session) readerLoop() {
	buf := make([]byte, readChunkSize)

	var totalBytes, totalReads, sendFailures uint64
	lastStats := time.Now()

	for {
		n, err := s.ptyFile.Read(buf)
		if n > 0 {
			totalBytes += uint64(n)
			totalReads++
			s.lastOutput.Store(time.Now().UnixNano())

			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			s.grid.Feed(chunk)
			s.routeChunk(chunk, &sendFailures)

			if time.Since(lastStats) > statsInterval {
				s.logger.Debug("reader stats",
					"reads", totalReads, "bytes", totalBytes,
					"send_failures", sendFailures,
					"ring_buf_len", s.ring.Len(),
					"attached", s.IsAttached())
				lastStats = time.Now()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("reader: read error, treating as EOF", "error", err)
			}
			break
		}
	}

	s.logger.Info("reader: EOF, session ending")
	s.running.Store(false)
	s.attachedFlag.Store(false)
	s.sinkMu.Lock()
	if s.sink != nil {
		close(s.sink)
		s.sink = nil
	}
	s.sinkMu.Unlock()
}

func (s *Session) routeChunk(chunk []byte, sendFailures *uint64) {
	lockStart := time.Now()
	s.sinkMu.Lock()
	sink := s.sink
	if lockWait := time.Since(lockStart); lockWait > slowLockThreshold {
		s.logger.Warn("reader: slow lock on sink", "wait_ms", lockWait.Milliseconds())
	}
	s.sinkMu.Unlock()

	if sink == nil {
		s.ring.Append(chunk)
		return
	}

	if s.trySend(sink, chunk) {
		return
	}

	bpStart := time.Now()
	if !s.blockingSend(sink, chunk) {
		*sendFailures++
		s.logger.Info("reader: sink closed during backpressure, client disconnected", "failures", *sendFailures)
		s.attachedFlag.Store(false)
		s.sinkMu.Lock()
		s.sink = nil
		s.sinkMu.Unlock()
		s.ring.Append(chunk)
		return
	}
	if bpElapsed := time.Since(bpStart); bpElapsed > slowLockThreshold {
		s.logger.Warn("reader: backpressure delay", "wait_ms", bpElapsed.Milliseconds())
	}
}

// trySend attempts a non-blocking send, returning false both when the
// channel is full (the common case, escalating to blockingSend) and when
// it was closed concurrently by Detach.
func (s *Session) trySend(sink chan []byte, chunk []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case sink <- chunk:
		return true
	default:
		return false
	}
}

// blockingSend sends chunk to sink, blocking until there is room. It
// recovers from a send-on-closed-channel panic (the client may Detach
// concurrently) by reporting false, the same outcome as observing the
// channel closed on a buffered receive would give in a language with a
// closed/ok signal on send.
func (s *Session) blockingSend(sink chan []byte, chunk []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	sink <- chunk
	return true
}
