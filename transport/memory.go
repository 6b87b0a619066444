package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-broker/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MemoryTransport connects the client to an in-process handler. It is used
// by tests and by tools that embed a broker.
type MemoryTransport struct {
	handler FrameHandler
	binds   atomic.Int64
}

func NewMemoryTransport(handler FrameHandler) *MemoryTransport {
	return &MemoryTransport{handler: handler}
}

// Binds reports how many connection attempts were made.
func (t *MemoryTransport) Binds() int64 {
	if t == nil {
		return 0
	}
	return t.binds.Load()
}

func (t *MemoryTransport) Bind(_ context.Context, listener core.ConnectionListener) error {
	if t == nil || t.handler == nil {
		return transportError("transport: memory transport has no handler", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	if listener == nil {
		return transportError("transport: connection listener is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	t.binds.Add(1)
	go listener.OnConnected(&memoryChannel{id: uuid.NewString(), handler: t.handler})
	return nil
}

type memoryChannel struct {
	id      string
	handler FrameHandler

	mu     sync.Mutex
	closed bool
}

func (c *memoryChannel) ID() string {
	return c.id
}

func (c *memoryChannel) Send(ctx context.Context, request []byte) ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, transportError("transport: channel is closed", goerrors.CategoryOperation, http.StatusConflict, map[string]any{
			"channel_id": c.id,
		})
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, transportWrapError(err, goerrors.CategoryOperation, "transport: exchange interrupted", http.StatusGatewayTimeout, nil)
		}
	}
	payload := append([]byte(nil), request...)
	return c.handler(ctx, payload)
}

func (c *memoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

var _ core.Transport = (*MemoryTransport)(nil)
