package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultConnectTimeout = 5 * time.Second

// ConnectionFuture is resolved once with the first connected channel of an
// attempt. Disconnect events never resolve it, so waiters must be bounded.
type ConnectionFuture struct {
	attemptID      string
	defaultTimeout time.Duration

	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	abandoned bool
	handle    ChannelHandle
}

func newConnectionFuture(attemptID string, defaultTimeout time.Duration) *ConnectionFuture {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultConnectTimeout
	}
	return &ConnectionFuture{
		attemptID:      attemptID,
		defaultTimeout: defaultTimeout,
		done:           make(chan struct{}),
	}
}

func (f *ConnectionFuture) AttemptID() string {
	if f == nil {
		return ""
	}
	return f.attemptID
}

// Done is closed when the future resolves.
func (f *ConnectionFuture) Done() <-chan struct{} {
	return f.done
}

func (f *ConnectionFuture) Resolved() (ChannelHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle, f.resolved
}

// resolve stores handle if the future is still empty. orphaned reports that
// the waiter already gave up, leaving the caller to release the handle.
func (f *ConnectionFuture) resolve(handle ChannelHandle) (accepted bool, orphaned bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return false, false
	}
	f.resolved = true
	f.handle = handle
	close(f.done)
	return true, f.abandoned
}

func (f *ConnectionFuture) abandon() (ChannelHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return f.handle, true
	}
	f.abandoned = true
	return nil, false
}

// Await blocks until the future resolves, the timeout elapses or ctx ends.
// A non-positive timeout uses the connector default.
func (f *ConnectionFuture) Await(ctx context.Context, timeout time.Duration) (ChannelHandle, error) {
	if f == nil {
		return nil, NewClientError(KindClientFailure, ErrorCodeNoChannel, "no connection attempt")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		handle, _ := f.Resolved()
		return handle, nil
	case <-timer.C:
		if handle, ok := f.abandon(); ok {
			return handle, nil
		}
		return nil, connectionTimedOutError("broker did not connect within " + timeout.String())
	case <-ctx.Done():
		if handle, ok := f.abandon(); ok {
			return handle, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err := connectionTimedOutError("connect deadline exceeded")
			err.Cause = ctx.Err()
			return nil, err
		}
		err := NewClientError(KindClientFailure, ErrorCodeConnectCancelled, "connect cancelled")
		err.Cause = ctx.Err()
		return nil, err
	}
}

// connectionAttempt is the listener bound to a single Connect call.
type connectionAttempt struct {
	future *ConnectionFuture
	logger Logger
}

func (a *connectionAttempt) OnConnected(handle ChannelHandle) {
	accepted, orphaned := a.future.resolve(handle)
	if !accepted {
		a.logger.Warn("broker connected event ignored, attempt already resolved",
			"attempt_id", a.future.attemptID,
			"channel_id", channelID(handle),
		)
		return
	}
	a.logger.Debug("broker connected", "attempt_id", a.future.attemptID, "channel_id", channelID(handle))
	if orphaned && handle != nil {
		a.logger.Info("closing channel for abandoned attempt", "attempt_id", a.future.attemptID)
		if err := handle.Close(); err != nil {
			a.logger.Warn("close abandoned channel failed", "attempt_id", a.future.attemptID, "error", err)
		}
	}
}

func (a *connectionAttempt) OnDisconnected(err error) {
	args := []any{"attempt_id", a.future.attemptID}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	a.logger.Info("broker disconnected", args...)
}

func channelID(handle ChannelHandle) string {
	if handle == nil {
		return ""
	}
	return handle.ID()
}

// ServiceConnector starts connection attempts against a Transport. Every
// attempt gets its own future and listener.
type ServiceConnector struct {
	transport Transport
	logger    Logger
	timeout   time.Duration
}

func NewServiceConnector(transport Transport, logger Logger, timeout time.Duration) *ServiceConnector {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return &ServiceConnector{
		transport: transport,
		logger:    ensureLogger(logger),
		timeout:   timeout,
	}
}

// Connect starts an attempt and returns its future without waiting.
func (c *ServiceConnector) Connect(ctx context.Context) (*ConnectionFuture, error) {
	if c == nil || c.transport == nil {
		return nil, connectionRejectedError("", "no broker transport configured", nil)
	}
	future := newConnectionFuture(uuid.NewString(), c.timeout)
	attempt := &connectionAttempt{future: future, logger: c.logger}
	if err := c.transport.Bind(ctx, attempt); err != nil {
		c.logger.Warn("broker bind failed", "attempt_id", future.attemptID, "error", err.Error())
		return nil, connectionRejectedError("", "broker refused the connection", err)
	}
	return future, nil
}

// ConnectAndWait connects and waits with the connector timeout.
func (c *ServiceConnector) ConnectAndWait(ctx context.Context) (ChannelHandle, error) {
	future, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return future.Await(ctx, c.timeout)
}
