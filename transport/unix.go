package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-broker/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const (
	KindUnix   = "unix"
	KindMemory = "memory"
	KindNone   = "none"

	defaultDialTimeout = 5 * time.Second
)

// UnixTransport connects to a broker listening on a Unix domain socket. One
// Bind dials one connection; frames on it are request/response pairs.
type UnixTransport struct {
	SocketPath    string
	MaxFrameBytes int
	DialTimeout   time.Duration
	Logger        core.Logger
}

func NewUnixTransport(cfg core.TransportConfig, logger core.Logger) *UnixTransport {
	return &UnixTransport{
		SocketPath:    strings.TrimSpace(cfg.SocketPath),
		MaxFrameBytes: cfg.MaxFrameBytes,
		DialTimeout:   defaultDialTimeout,
		Logger:        logger,
	}
}

func (t *UnixTransport) Bind(ctx context.Context, listener core.ConnectionListener) error {
	if t == nil || strings.TrimSpace(t.SocketPath) == "" {
		return transportError("transport: unix socket path is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	if listener == nil {
		return transportError("transport: connection listener is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := t.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", t.SocketPath)
	if err != nil {
		return transportWrapError(err, goerrors.CategoryExternal, "transport: dial broker socket failed", http.StatusBadGateway, map[string]any{
			"socket_path": t.SocketPath,
		})
	}

	channel := newConnChannel(conn, t.MaxFrameBytes, listener, glog.Ensure(t.Logger))
	go listener.OnConnected(channel)
	return nil
}

// connChannel is a ChannelHandle over a stream connection. Sends are
// serialized; each one writes a frame and reads the reply frame.
type connChannel struct {
	id            string
	maxFrameBytes int
	listener      core.ConnectionListener
	logger        core.Logger

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	disconnectOnce sync.Once
}

func newConnChannel(conn net.Conn, maxFrameBytes int, listener core.ConnectionListener, logger core.Logger) *connChannel {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &connChannel{
		id:            uuid.NewString(),
		maxFrameBytes: maxFrameBytes,
		listener:      listener,
		logger:        logger,
		conn:          conn,
	}
}

func (c *connChannel) ID() string {
	return c.id
}

func (c *connChannel) Send(ctx context.Context, request []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transportError("transport: channel is closed", goerrors.CategoryOperation, http.StatusConflict, map[string]any{
			"channel_id": c.id,
		})
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.fail(err, "transport: set channel deadline failed")
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := writeFrame(c.conn, request, c.maxFrameBytes); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, err
		}
		return nil, c.fail(err, "transport: write frame failed")
	}
	response, err := readFrame(c.conn, c.maxFrameBytes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, transportWrapError(ctxErr, goerrors.CategoryOperation, "transport: exchange interrupted", http.StatusGatewayTimeout, map[string]any{
				"channel_id": c.id,
			})
		}
		if errors.Is(err, errFrameTooLarge) {
			return nil, transportWrapError(err, goerrors.CategoryExternal, "transport: broker reply too large", http.StatusBadGateway, map[string]any{
				"channel_id":      c.id,
				"max_frame_bytes": c.maxFrameBytes,
			})
		}
		return nil, c.fail(err, "transport: read frame failed")
	}
	return response, nil
}

// fail closes the channel after an I/O error and reports the disconnect.
func (c *connChannel) fail(cause error, message string) error {
	c.closed = true
	_ = c.conn.Close()
	c.notifyDisconnected(cause)
	return transportWrapError(cause, goerrors.CategoryExternal, message, http.StatusBadGateway, map[string]any{
		"channel_id": c.id,
	})
}

func (c *connChannel) notifyDisconnected(cause error) {
	c.disconnectOnce.Do(func() {
		if errors.Is(cause, io.EOF) {
			c.logger.Debug("broker closed channel", "channel_id", c.id)
		}
		if c.listener != nil {
			c.listener.OnDisconnected(cause)
		}
	})
}

func (c *connChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("transport: close channel %s: %w", c.id, err)
	}
	return nil
}

var _ core.Transport = (*UnixTransport)(nil)
var _ core.ChannelHandle = (*connChannel)(nil)
