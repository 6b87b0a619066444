package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// ChannelHandle is a live channel to the broker.
type ChannelHandle interface {
	ID() string
	Send(ctx context.Context, request []byte) ([]byte, error)
	Close() error
}

// ConnectionListener receives channel lifecycle events for one connection
// attempt. Events arrive on the transport's goroutine.
type ConnectionListener interface {
	OnConnected(handle ChannelHandle)
	OnDisconnected(err error)
}

// Transport starts binding to the broker endpoint. Bind returns once the
// attempt has started; the outcome is reported through the listener.
type Transport interface {
	Bind(ctx context.Context, listener ConnectionListener) error
}

// CacheStore is the read side of the token cache. An empty homeAccountID
// lists records for every account. Records come back in cache order.
type CacheStore interface {
	ListRecordsForAccount(ctx context.Context, homeAccountID string) ([]CacheRecord, error)
}

// BrokerBackend answers requests on the broker side of the channel.
type BrokerBackend interface {
	AcquireToken(ctx context.Context, req AcquireTokenRequest) (AuthenticationResult, error)
	AcquireTokenSilent(ctx context.Context, req AcquireTokenRequest) (AuthenticationResult, error)
	Accounts(ctx context.Context, clientID string) ([]CacheRecord, error)
	DeviceMode(ctx context.Context) (bool, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
