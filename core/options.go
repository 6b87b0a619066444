package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

// ServiceErrorMapper maps infrastructure errors onto go-errors envelopes.
type ServiceErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ServiceErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	transport       Transport
	transports      TransportFactory
	frameCodec      FrameCodec
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithServiceErrorMapper(mapper ServiceErrorMapper) Option {
	return func(b *clientBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTransport(transport Transport) Option {
	return func(b *clientBuilder) {
		b.transport = transport
	}
}

// TransportFactory builds the transport once the client config is resolved.
type TransportFactory func(cfg TransportConfig, logger Logger) (Transport, error)

// WithTransportFactory is used when no transport is set through WithTransport.
func WithTransportFactory(factory TransportFactory) Option {
	return func(b *clientBuilder) {
		b.transports = factory
	}
}

func WithFrameCodec(codec FrameCodec) Option {
	return func(b *clientBuilder) {
		b.frameCodec = codec
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("broker", nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultServiceErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultServiceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return brokerErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw map.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded config and runtime config, later
// layers winning on every non-zero field.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ClientName) != "" {
		layer["client_name"] = cfg.ClientName
	}

	protocol := map[string]any{}
	if includeZero || cfg.Protocol.MinVersion != "" {
		protocol["min_version"] = cfg.Protocol.MinVersion
	}
	if includeZero || cfg.Protocol.MaxVersion != "" {
		protocol["max_version"] = cfg.Protocol.MaxVersion
	}
	if len(protocol) > 0 {
		layer["protocol"] = protocol
	}

	transport := map[string]any{}
	if includeZero || cfg.Transport.Kind != "" {
		transport["kind"] = cfg.Transport.Kind
	}
	if includeZero || cfg.Transport.SocketPath != "" {
		transport["socket_path"] = cfg.Transport.SocketPath
	}
	if includeZero || cfg.Transport.MaxFrameBytes != 0 {
		transport["max_frame_bytes"] = cfg.Transport.MaxFrameBytes
	}
	if len(transport) > 0 {
		layer["transport"] = transport
	}

	timeouts := map[string]any{}
	if includeZero || cfg.Timeouts.ConnectMS != 0 {
		timeouts["connect_ms"] = cfg.Timeouts.ConnectMS
	}
	if includeZero || cfg.Timeouts.RequestMS != 0 {
		timeouts["request_ms"] = cfg.Timeouts.RequestMS
	}
	if len(timeouts) > 0 {
		layer["timeouts"] = timeouts
	}

	if includeZero || cfg.Cache.TTLSeconds != 0 {
		layer["cache"] = map[string]any{"ttl_seconds": cfg.Cache.TTLSeconds}
	}
	return layer
}
