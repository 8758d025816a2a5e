package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/its-jojoo/otterclipd/internal/logging"
)

// HandlerFunc serves one command. A nil result is sent as an empty object.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

const (
	// idleTimeout closes connections that send nothing for this long.
	idleTimeout = 10 * time.Minute

	writeTimeout = 10 * time.Second

	// MaxRequestSize bounds a single request line.
	MaxRequestSize = 1 << 20

	// acceptBackoff spaces out retries after a failed Accept.
	acceptBackoff = 50 * time.Millisecond

	liveDialTimeout = time.Second

	socketPerm = 0o600
	dirPerm    = 0o700
)

// Server answers newline-delimited JSON requests on a Unix socket. A
// connection may carry any number of requests; responses are written in
// request order.
type Server struct {
	socketPath string
	handlers   map[string]HandlerFunc

	// CheckPeer rejects connections from other users where the platform
	// reports peer credentials.
	CheckPeer bool

	listen func(network, address string) (net.Listener, error)

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	ready chan struct{}

	activeConnections sync.WaitGroup
}

func NewServer(socketPath string) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		CheckPeer:  true,
		listen:     net.Listen,
		conns:      make(map[net.Conn]struct{}),
		ready:      make(chan struct{}),
	}
}

// Handle registers h for cmd. It panics on duplicates.
func (s *Server) Handle(cmd string, h HandlerFunc) {
	if _, exists := s.handlers[cmd]; exists {
		panic(fmt.Sprintf("ipc: duplicate handler for cmd %q", cmd))
	}
	s.handlers[cmd] = h
}

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

func (s *Server) SocketPath() string { return s.socketPath }

// Serve listens until ctx is cancelled, then stops accepting, lets every
// connection finish its current request, and removes the socket file. It
// refuses to start while another process answers on the socket.
func (s *Server) Serve(ctx context.Context) error {
	log := logging.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(s.socketPath), dirPerm); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if conn, err := net.DialTimeout("unix", s.socketPath, liveDialTimeout); err == nil {
		_ = conn.Close()
		return fmt.Errorf("another otterclipd is already listening on %s", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := s.listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	if err := os.Chmod(s.socketPath, socketPerm); err != nil {
		return fmt.Errorf("restricting socket permissions: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
		s.wakeConnections()
	}()

	log.Info().Str("path", s.socketPath).Msg("ipc server listening")
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			log.Error().Err(err).Msg("accept failed")
			select {
			case <-ctx.Done():
			case <-time.After(acceptBackoff):
			}
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			defer s.untrack(conn)
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	log.Info().Msg("ipc server stopped")
	return nil
}

// track registers conn unless shutdown has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// wakeConnections unblocks idle reads so handlers exit after their
// in-flight request.
func (s *Server) wakeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
	s.conns = nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ctx = logging.WithConnID(ctx, uuid.NewString())
	log := logging.FromContext(ctx)
	log.Debug().Msg("client connected")
	defer func() { log.Debug().Msg("client disconnected") }()

	if s.CheckPeer {
		if err := checkPeer(conn); err != nil {
			log.Warn().Err(err).Msg("rejecting connection")
			s.write(ctx, conn, errorResponse(err.Error()))
			return
		}
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxRequestSize)

	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		// Shutdown may have woken the connection just before the deadline
		// above replaced its own.
		if ctx.Err() != nil {
			return
		}

		if !scanner.Scan() {
			if err := scanner.Err(); errors.Is(err, bufio.ErrTooLong) {
				s.write(ctx, conn, errorResponse(fmt.Sprintf("request exceeds %d bytes", MaxRequestSize)))
			} else if err != nil && ctx.Err() == nil {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if !s.write(ctx, conn, s.dispatch(ctx, line)) {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, line []byte) Response {
	log := logging.FromContext(ctx)

	req, err := ParseRequest(line)
	if err != nil {
		log.Debug().Err(err).Msg("malformed request")
		return errorResponse(err.Error())
	}

	handler, exists := s.handlers[req.Cmd]
	if !exists {
		return errorResponse("unknown cmd: " + req.Cmd)
	}

	// Store work started for a request runs to completion even when the
	// daemon is shutting down.
	result, err := handler(context.WithoutCancel(ctx), req)
	if err != nil {
		log.Debug().Str("cmd", req.Cmd).Err(err).Msg("command failed")
		return errorResponse(err.Error())
	}

	if result == nil {
		result = struct{}{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(fmt.Sprintf("internal: marshaling response: %v", err))
	}
	log.Debug().Str("cmd", req.Cmd).Msg("command served")
	return Response{OK: true, Data: data}
}

func errorResponse(msg string) Response {
	return Response{OK: false, Error: msg}
}

// write sends one response line and reports whether the connection is
// still usable.
func (s *Server) write(ctx context.Context, conn net.Conn, resp Response) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		logging.FromContext(ctx).Debug().Err(err).Msg("failed to write response")
		return false
	}
	return true
}
