package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

const DefaultSocket = "/tmp/sia.sock"

const (
	CmdToggle     = "toggle"
	CmdSay        = "say"
	CmdStatus     = "status"
	CmdReadFile   = "read-file"
	CmdListenFile = "listen-file"
)

var (
	ioTimeout = 30 * time.Second
	// listen-file decodes and transcribes up to a minute of audio.
	listenTimeout = 3 * time.Minute
)

// ErrNotRunning is returned by Send when nothing accepts on the socket.
var ErrNotRunning = errors.New("sia-daemon not running")

// Timeout is how long the daemon keeps a connection for cmd open.
func Timeout(cmd string) time.Duration {
	if cmd == CmdListenFile {
		return listenTimeout
	}
	return ioTimeout
}

type Request struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

type Reply struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Status  json.RawMessage `json:"status,omitempty"`
}

// Handler answers one request.
type Handler func(ctx context.Context, req Request) Reply

type Server struct {
	path    string
	handler Handler
	log     *log.Logger
	ln      net.Listener
}

// Listen binds the control socket, replacing a stale one.
func Listen(path string, handler Handler, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Server{path: path, handler: handler, log: logger, ln: ln}, nil
}

// Serve accepts connections until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				os.Remove(s.path)
				return nil
			}
			s.log.Warn("Control accept failed", "err", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.log.Warn("Bad control request", "err", err)
		_ = json.NewEncoder(conn).Encode(Reply{Message: "bad request: " + err.Error()})
		return
	}

	s.log.Debug("Control request", "cmd", req.Cmd, "arg", req.Arg)
	_ = conn.SetDeadline(time.Now().Add(Timeout(req.Cmd)))
	if err := json.NewEncoder(conn).Encode(s.handler(ctx, req)); err != nil {
		s.log.Warn("Control reply failed", "err", err)
	}
}

// Send delivers req to the daemon at path and waits for its reply.
func Send(ctx context.Context, path string, req Request) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %w", ErrNotRunning, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(Timeout(req.Cmd))
	}
	_ = conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var rep Reply
	if err := json.NewDecoder(conn).Decode(&rep); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return rep, nil
}
