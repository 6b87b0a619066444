package broker

import (
	"github.com/goliatone/go-broker/core"
	"github.com/goliatone/go-broker/transport"
)

type Config = core.Config
type ProtocolConfig = core.ProtocolConfig
type TransportConfig = core.TransportConfig
type TimeoutConfig = core.TimeoutConfig
type CacheConfig = core.CacheConfig

type Option = core.Option

type Client = core.Client
type Session = core.Session
type Negotiation = core.Negotiation

type AcquireTokenRequest = core.AcquireTokenRequest
type AuthenticationResult = core.AuthenticationResult
type CacheRecord = core.CacheRecord
type BrokerError = core.BrokerError

type Transport = core.Transport
type CacheStore = core.CacheStore
type BrokerBackend = core.BrokerBackend

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithServiceErrorMapper = core.WithServiceErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithTransport          = core.WithTransport
	WithTransportFactory   = core.WithTransportFactory
	WithFrameCodec         = core.WithFrameCodec
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	return core.NewClient(cfg, opts...)
}

// Setup builds a client whose transport comes from the default transport
// registry unless opts supply one.
func Setup(cfg Config, opts ...Option) (*Client, error) {
	return SetupWithRegistry(cfg, transport.NewDefaultRegistry(), opts...)
}

// SetupWithRegistry is Setup with a caller supplied transport registry.
func SetupWithRegistry(cfg Config, registry *transport.Registry, opts ...Option) (*Client, error) {
	if registry == nil {
		registry = transport.NewDefaultRegistry()
	}
	options := append([]Option{core.WithTransportFactory(registry.Build)}, opts...)
	return core.NewClient(cfg, options...)
}

// NewResponder builds the broker side of the channel over backend.
func NewResponder(backend BrokerBackend, opts ...core.ResponderOption) (*core.Responder, error) {
	return core.NewResponder(backend, opts...)
}
