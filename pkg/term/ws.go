package term

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"skiff/pkg/logger"
)

const (
	pingInterval = 30 * time.Second
	readDeadline = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// origin policy is enforced by the gateway middleware upstream
	CheckOrigin: func(r *http.Request) bool { return true },
}

// controlMsg is the one structured message recognized on the input side.
// Everything else is forwarded to the shell verbatim.
type controlMsg struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// Handler upgrades the request to a WebSocket, spawns a shell session and
// relays bytes both ways until either side goes away.
func Handler(defaults Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := defaults
		q := r.URL.Query()
		opts.Cols = querySize(q.Get("cols"), 80)
		opts.Rows = querySize(q.Get("rows"), 24)
		opts.Name = "default"
		if n := q.Get("name"); n != "" {
			opts.Name = n
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws_upgrade_failed", "error", err, "remote", r.RemoteAddr)
			return
		}

		sess, err := NewSession(conn, opts)
		if err != nil {
			logger.Error("pty_start_failed", "error", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte("failed to start shell\r\n"))
			_ = conn.Close()
			return
		}
		logger.Info("terminal_opened", "name", opts.Name, "cols", opts.Cols, "rows", opts.Rows, "remote", r.RemoteAddr)

		_ = sess.writeFrame(websocket.TextMessage, banner(opts.Name))
		serve(sess)
	}
}

// querySize parses a terminal dimension query parameter. Missing, junk or
// non-positive values fall back to def; oversized values clamp to the
// uint16 range instead of wrapping.
func querySize(raw string, def uint16) uint16 {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

func banner(name string) []byte {
	return []byte(fmt.Sprintf("\x1b[1;36mskiff\x1b[0m session %q ready\r\n", name))
}

// serve runs the three per-connection activities: pty-to-socket relay,
// socket-to-pty relay with resize interception, and keepalive pings with a
// read-deadline reset on pong. Any of them failing tears the session down.
func serve(s *Session) {
	defer s.Close()

	_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	done := make(chan struct{})

	// pty output to socket
	go func() {
		buf := make([]byte, 8192)
		for {
			n, err := s.ptmx.Read(buf)
			if n > 0 {
				if werr := s.writeFrame(websocket.TextMessage, buf[:n]); werr != nil {
					break
				}
			}
			if err != nil {
				break
			}
		}
		s.Close()
		close(done)
	}()

	// keepalive
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := s.writeFrame(websocket.PingMessage, nil); err != nil {
					s.Close()
					return
				}
			}
		}
	}()

	// socket input to pty, intercepting resize frames
	for {
		mt, p, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		var ctl controlMsg
		if json.Unmarshal(p, &ctl) == nil && ctl.Type == "resize" {
			if ctl.Cols > 0 && ctl.Rows > 0 {
				if rerr := s.Resize(ctl.Cols, ctl.Rows); rerr != nil {
					logger.Warn("terminal_resize_failed", "error", rerr)
				}
			}
			continue
		}
		if err := s.WriteInput(p); err != nil {
			return
		}
	}
}
