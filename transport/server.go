package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/goliatone/go-broker/core"
	glog "github.com/goliatone/go-logger/glog"
)

// FrameHandler answers one encoded request frame with one encoded response.
// core.Responder.Handle satisfies it.
type FrameHandler func(ctx context.Context, request []byte) ([]byte, error)

const (
	defaultIdleTimeout  = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// SocketServer serves broker frames on a Unix socket. A connection carries
// any number of request/response pairs and ends when the client closes it
// or stays idle past IdleTimeout.
type SocketServer struct {
	socketPath    string
	handler       FrameHandler
	logger        core.Logger
	maxFrameBytes int

	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	ready     chan struct{}
	readyOnce sync.Once

	activeConnections sync.WaitGroup
}

func NewSocketServer(socketPath string, handler FrameHandler, logger core.Logger, maxFrameBytes int) *SocketServer {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &SocketServer{
		socketPath:    socketPath,
		handler:       handler,
		logger:        glog.Ensure(logger),
		maxFrameBytes: maxFrameBytes,
		IdleTimeout:   defaultIdleTimeout,
		WriteTimeout:  defaultWriteTimeout,
		ready:         make(chan struct{}),
	}
}

// Ready is closed once the socket accepts connections.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve blocks until ctx is cancelled, then waits for open connections to
// finish. A stale socket file is removed before listening and the socket is
// removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if s.handler == nil {
		return fmt.Errorf("transport: socket server handler is required")
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: remove stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.socketPath, err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.logger.Info("broker socket listening", "socket_path", s.socketPath)
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("broker socket accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		request, err := readFrame(conn, s.maxFrameBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug("broker socket read failed", "error", err)
			}
			return
		}

		response, err := s.handler(ctx, request)
		if err != nil {
			s.logger.Warn("broker frame rejected", "error", err)
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		if err := writeFrame(conn, response, s.maxFrameBytes); err != nil {
			s.logger.Warn("broker socket write failed", "error", err)
			return
		}
	}
}
