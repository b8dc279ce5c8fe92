// Package ptysession manages a single long-lived pseudo-terminal: spawning
// the shell, reading its output into either an attached client's channel
// or a bounded ring buffer, and applying writes (including Ctrl+C
// interrupt emulation) back to the shell.
package ptysession

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"

	"github.com/alangmartini/godlyd/internal/grid"
	"github.com/alangmartini/godlyd/internal/procenum"
	"github.com/alangmartini/godlyd/internal/protocol"
	"github.com/alangmartini/godlyd/internal/ringbuf"
)

// sinkCapacity is the bounded channel size an attached client's output
// forwarder reads from. The reader goroutine applies backpressure to the
// PTY itself once this fills, rather than spilling to the ring buffer
// while a client is attached.
const sinkCapacity = 64

// readChunkSize matches the reader's read buffer to the original
// implementation's 64 KiB chunks.
const readChunkSize = 64 * 1024

// statsInterval controls how often the reader goroutine logs throughput
// and backpressure counters.
const statsInterval = 30 * time.Second

// slowLockThreshold flags lock acquisitions that exceed it as suspicious
// contention worth logging.
const slowLockThreshold = 50 * time.Millisecond

// Config describes how to spawn a session's shell.
type Config struct {
	ID     string
	Shell  protocol.ShellKind
	Cwd    string
	Rows   uint16
	Cols   uint16
	Env    map[string]string
	Logger *slog.Logger
}

// Session is one PTY-backed shell plus its ring buffer, VT grid, and
// attach/detach plumbing. The reader goroutine owns the VT parser
// exclusively; every other field it touches is behind a lock or atomic.
type Session struct {
	id        string
	shell     protocol.ShellKind
	cwd       string
	createdAt time.Time
	pid       uint32

	logger *slog.Logger

	ptyFile *os.File
	writeMu sync.Mutex

	rows, cols uint32 // accessed via atomic load/store for Info()'s lock-free read

	grid *grid.Grid
	ring *ringbuf.Buffer

	running      atomic.Bool
	attachedFlag atomic.Bool

	sinkMu sync.Mutex
	sink   chan []byte

	lastOutput atomic.Int64 // unix nanos

	closeOnce sync.Once

	writeQueueMu   sync.Mutex
	writeQueueCond *sync.Cond
	writeQueue     [][]byte
	writeQueueDone bool
}

// New opens a PTY, spawns the configured shell, and starts the reader
// goroutine. The returned Session is already running.
func New(cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd, err := newShellCmd(cfg.Shell, cfg.Cwd, cfg.Env)
	if err != nil {
		return nil, err
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: cfg.Rows, Cols: cfg.Cols})
	if err != nil {
		return nil, fmt.Errorf("ptysession: spawn: %w", err)
	}

	var pid uint32
	if cmd.Process != nil {
		pid = uint32(cmd.Process.Pid)
	}

	s := &Session{
		id:        cfg.ID,
		shell:     cfg.Shell,
		cwd:       cfg.Cwd,
		createdAt: time.Now(),
		pid:       pid,
		logger:    logger.With("session", cfg.ID),
		ptyFile:   ptmx,
		grid:      grid.New(int(cfg.Rows), int(cfg.Cols)),
		ring:      ringbuf.New(ringbuf.DefaultCapacity),
	}
	s.rows, s.cols = uint32(cfg.Rows), uint32(cfg.Cols)
	s.running.Store(true)
	s.lastOutput.Store(time.Now().UnixNano())
	s.writeQueueCond = sync.NewCond(&s.writeQueueMu)

	go s.readerLoop()
	go s.writeWorker()

	logger.Info("session spawned", "session", cfg.ID, "shell", cfg.Shell.Kind, "pid", pid)
	return s, nil
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// Grid returns the VT grid this session feeds; callers use it for
// ReadGrid/ReadRichGrid/ReadRichGridDiff.
func (s *Session) Grid() *grid.Grid { return s.grid }

// IsRunning reports whether the shell is still alive.
func (s *Session) IsRunning() bool { return s.running.Load() }

// RunningFlag exposes the shared liveness flag so a caller (e.g. the
// request dispatcher) can poll it without going through the session at
// all, mirroring the original implementation's shared running_flag().
func (s *Session) RunningFlag() *atomic.Bool { return &s.running }

// IsAttached reports whether a client is currently attached, without
// acquiring sinkMu — it must never contend with the reader goroutine's
// hot path.
func (s *Session) IsAttached() bool { return s.attachedFlag.Load() }

// LastOutputTime returns the time of the most recent PTY read.
func (s *Session) LastOutputTime() time.Time {
	return time.Unix(0, s.lastOutput.Load())
}

// Info produces a protocol.SessionInfo snapshot of this session.
func (s *Session) Info() protocol.SessionInfo {
	return protocol.SessionInfo{
		ID:        s.id,
		Shell:     s.shell,
		Pid:       s.pid,
		Rows:      uint16(atomic.LoadUint32(&s.rows)),
		Cols:      uint16(atomic.LoadUint32(&s.cols)),
		Cwd:       s.cwd,
		CreatedAt: uint64(s.createdAt.Unix()),
		Attached:  s.IsAttached(),
		Running:   s.IsRunning(),
	}
}

// Resize changes the PTY's dimensions and keeps the grid in sync. Per
// spec, the cursor is clamped into the new bounds rather than reflowed.
func (s *Session) Resize(rows, cols uint16) error {
	if err := pty.Setsize(s.ptyFile, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("ptysession: resize: %w", err)
	}
	atomic.StoreUint32(&s.rows, uint32(rows))
	atomic.StoreUint32(&s.cols, uint32(cols))
	s.grid.Resize(int(rows), int(cols))
	return nil
}

// Write sends bytes to the shell. A literal 0x03 (Ctrl+C) in the stream
// does not raise a console control event for descendants of a Windows
// pseudo-console shell, so it is additionally emulated by terminating the
// shell's descendant processes before the raw byte is still forwarded (so
// line-editors that watch for 0x03 in-band also see it).
func (s *Session) Write(data []byte) (int, error) {
	if containsCtrlC(data) {
		if n, err := procenum.TerminateDescendants(s.pid); err != nil {
			s.logger.Warn("ctrl-c: descendant termination failed", "error", err)
		} else if n > 0 {
			s.logger.Info("ctrl-c: terminated descendants", "count", n)
		}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ptyFile.Write(data)
}

func containsCtrlC(data []byte) bool {
	for _, b := range data {
		if b == 0x03 {
			return true
		}
	}
	return false
}

// QueueWrite hands data to the session's dedicated write worker and returns
// immediately. This decouples "the handler received a Write request" from
// "bytes physically reached the PTY master": a synchronous Write() call can
// block on PTY backpressure, and if the I/O goroutine called it directly
// while also being the only consumer draining the output channel, a large
// write during a full output channel would deadlock. The worker applies
// writes to the PTY one at a time, in submission order.
func (s *Session) QueueWrite(data []byte) {
	s.writeQueueMu.Lock()
	defer s.writeQueueMu.Unlock()
	if s.writeQueueDone {
		return
	}
	s.writeQueue = append(s.writeQueue, data)
	s.writeQueueCond.Signal()
}

// writeWorker drains the unbounded write queue and applies each entry to
// the PTY via Write, logging (but not surfacing) write errors — a write
// request has already been acknowledged to the client by the time this
// runs.
func (s *Session) writeWorker() {
	for {
		s.writeQueueMu.Lock()
		for len(s.writeQueue) == 0 && !s.writeQueueDone {
			s.writeQueueCond.Wait()
		}
		if s.writeQueueDone && len(s.writeQueue) == 0 {
			s.writeQueueMu.Unlock()
			return
		}
		data := s.writeQueue[0]
		s.writeQueue = s.writeQueue[1:]
		s.writeQueueMu.Unlock()

		if _, err := s.Write(data); err != nil {
			s.logger.Warn("write worker: PTY write failed", "error", err)
		}
	}
}

func (s *Session) stopWriteWorker() {
	s.writeQueueMu.Lock()
	s.writeQueueDone = true
	s.writeQueueCond.Signal()
	s.writeQueueMu.Unlock()
}

// Attach drains the ring buffer (bounded to 2s so a contended lock can't
// stall the request handler), installs a fresh sink channel, and marks the
// session attached. It returns the replay bytes and the channel the caller
// should forward to the client as Event.Output messages.
func (s *Session) Attach() ([]byte, <-chan []byte) {
	replay, ok := s.ring.TryDrainTimeout(2 * time.Second)
	if !ok {
		s.logger.Warn("attach: ring buffer drain timed out, replaying nothing")
	}

	sink := make(chan []byte, sinkCapacity)
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
	s.attachedFlag.Store(true)

	return replay, sink
}

// Detach clears the attached flag and drops the sink; subsequent output
// goes to the ring buffer.
func (s *Session) Detach() {
	s.attachedFlag.Store(false)
	s.sinkMu.Lock()
	if s.sink != nil {
		close(s.sink)
		s.sink = nil
	}
	s.sinkMu.Unlock()
}

// Close stops the session: it marks it not-running, detaches any client,
// and closes the PTY so the reader goroutine observes EOF.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.running.Store(false)
		s.Detach()
		s.stopWriteWorker()
		err = s.ptyFile.Close()
	})
	return err
}

// ReadBuffer returns a copy of the ring buffer's contents without
// consuming them, for the ReadBuffer/SearchBuffer requests.
func (s *Session) ReadBuffer() []byte { return s.ring.Snapshot() }

// windowsToWSLPath rewrites a Windows-style path to the Linux path a WSL
// shell expects: UNC WSL roots collapse to the distro-relative path, and
// drive-letter paths map under /mnt/<drive>.
func windowsToWSLPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")

	for _, prefix := range []string{"//wsl.localhost/", "//wsl$/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		afterHost := path[len(prefix):]
		idx := strings.IndexByte(afterHost, '/')
		if idx < 0 {
			return "/"
		}
		linuxPath := afterHost[idx:]
		if linuxPath == "/" {
			return "/"
		}
		return linuxPath
	}

	if len(path) >= 2 && path[1] == ':' {
		drive := strings.ToLower(string(path[0]))
		return "/mnt/" + drive + path[2:]
	}

	return path
}
