package term

import (
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"

	"skiff/pkg/logger"
)

// Options controls the shell spawned for a session.
type Options struct {
	Shell   string
	Workdir string
	Env     []string
	Cols    uint16
	Rows    uint16
	Name    string
}

// Session is one live shell attached to a pseudo-terminal and owned by a
// single WebSocket connection. The write mutex covers both the socket (the
// relay and keepalive goroutines write concurrently) and the closed flag.
type Session struct {
	ptmx *os.File
	cmd  *exec.Cmd
	conn *websocket.Conn
	name string

	mu     sync.Mutex
	closed bool
}

// NewSession spawns the shell on a pty sized to the requested dimensions.
// The shell runs without profile or rc loading so the prompt is
// deterministic.
func NewSession(conn *websocket.Conn, opts Options) (*Session, error) {
	shell := opts.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	cmd := exec.Command(shell, "--noprofile", "--norc")
	cmd.Dir = opts.Workdir
	cmd.Env = append(os.Environ(), opts.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return nil, err
	}
	return &Session{ptmx: ptmx, cmd: cmd, conn: conn, name: opts.Name}, nil
}

// Resize applies a new window size to the pty.
func (s *Session) Resize(cols, rows uint16) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// WriteInput forwards raw keystroke bytes to the shell.
func (s *Session) WriteInput(p []byte) error {
	_, err := s.ptmx.Write(p)
	return err
}

// writeFrame sends one frame to the socket under the session mutex.
func (s *Session) writeFrame(messageType int, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteMessage(messageType, p)
}

// Close tears down the process, pty and socket exactly once. Safe to call
// from any goroutine and from multiple failure paths concurrently.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.ptmx.Close()
	_ = s.conn.Close()
	go func() { _ = s.cmd.Wait() }()
	logger.Info("terminal_closed", "name", s.name)
}
