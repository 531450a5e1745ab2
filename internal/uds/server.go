package uds

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// HandlerFunc answers one control command.
type HandlerFunc func(req *Request) *Response

// Server listens on the vault's control socket and answers one
// request/response exchange per connection. Commands are registered
// with Handle before Start; the table is read-only once the listener
// is up, so serving needs no locking.
type Server struct {
	socketPath  string
	commands    map[string]HandlerFunc
	connTimeout time.Duration
	logger      *log.Logger

	listener net.Listener
	closing  chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server for the given socket path. Nothing is
// bound until Start.
func NewServer(socketPath string) *Server {
	return &Server{
		socketPath:  socketPath,
		commands:    make(map[string]HandlerFunc),
		connTimeout: 30 * time.Second,
		logger:      log.Default(),
		closing:     make(chan struct{}),
	}
}

// SetConnTimeout bounds each connection's whole exchange.
func (s *Server) SetConnTimeout(d time.Duration) {
	s.connTimeout = d
}

// SetLogger redirects connection-level diagnostics. Must be called
// before Start.
func (s *Server) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Handle registers the handler for a command. Must be called before
// Start.
func (s *Server) Handle(command string, handler HandlerFunc) {
	s.commands[command] = handler
}

// Start binds the socket and begins serving. A stale socket file from
// a crashed predecessor is removed first; the flock held by the watch
// process guarantees it is not live.
func (s *Server) Start() error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	// Only the owning user may drive the watch process.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.serve()
	return nil
}

// Stop closes the listener, waits for in-flight exchanges, and removes
// the socket file.
func (s *Server) Stop() error {
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	return nil
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Printf("control socket accept: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.answer(conn)
	}
}

// answer runs one exchange: read a request, dispatch, write the
// response. A panicking handler loses its connection but not the
// server.
func (s *Server) answer(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("control command panicked: %v\n%s", r, debug.Stack())
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(s.connTimeout))

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.logger.Printf("control socket read: %v", err)
		return
	}

	if err := WriteFrame(conn, s.dispatch(&req)); err != nil {
		s.logger.Printf("control socket write: %v", err)
	}
}

func (s *Server) dispatch(req *Request) *Response {
	if req.ProtocolVersion != ProtocolVersion {
		return ErrorResponse(
			ErrCodeProtocolMismatch,
			fmt.Sprintf("protocol version %d, this process speaks %d", req.ProtocolVersion, ProtocolVersion),
		)
	}

	handler, ok := s.commands[req.Command]
	if !ok {
		return ErrorResponse(
			ErrCodeUnknownCommand,
			fmt.Sprintf("unknown command: %q", req.Command),
		)
	}
	return handler(req)
}
