package core

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Client talks to the broker: it connects, negotiates the protocol version and
// exchanges one request per session.
type Client struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ServiceErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	connector       *ServiceConnector
	negotiator      ProtocolNegotiator
	codec           ResultCodec
	frames          FrameCodec
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("broker", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("broker"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultServiceErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.frameCodec == nil {
		codec, err := NewCBORFrameCodec()
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		builder.frameCodec = codec
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.transport == nil && builder.transports != nil {
		built, buildErr := builder.transports(finalConfig.Transport, componentLogger(provider, logger, "broker.transport"))
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		builder.transport = built
	}

	mapper := NewErrorMapper(componentLogger(provider, logger, "broker.codec"))
	return &Client{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		connector: NewServiceConnector(
			builder.transport,
			componentLogger(provider, logger, "broker.connector"),
			finalConfig.ConnectTimeout(),
		),
		negotiator: NewProtocolNegotiator(
			builder.frameCodec,
			componentLogger(provider, logger, "broker.negotiator"),
			finalConfig.Protocol,
		),
		codec:  NewResultCodec(mapper),
		frames: builder.frameCodec,
	}, nil
}

func mapBuildError(mapper ServiceErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func componentLogger(provider LoggerProvider, fallback Logger, name string) Logger {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return glog.Ensure(named)
		}
	}
	return glog.Ensure(fallback)
}

func ensureLogger(logger Logger) Logger {
	if logger == nil {
		return glog.Nop()
	}
	return glog.Ensure(logger)
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Client) Codec() ResultCodec {
	return c.codec
}

// Connect opens a channel and runs the hello exchange on it. The caller owns
// the returned session and must close its channel.
func (c *Client) Connect(ctx context.Context) (session *Session, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"client_name": c.config.ClientName}
	defer func() {
		if session != nil {
			fields["protocol_version"] = session.NegotiatedVersion
			fields["channel_id"] = session.Channel.ID()
		}
		c.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	channel, err := c.connector.ConnectAndWait(ctx)
	if err != nil {
		return nil, c.mapError(err)
	}
	negotiation, err := c.negotiator.Negotiate(ctx, channel)
	if err != nil {
		closeChannel(c.logger, channel)
		return nil, c.mapError(err)
	}
	return &Session{
		Channel:           channel,
		NegotiatedVersion: negotiation.Version,
		HandshakeSupport:  negotiation.Supported,
	}, nil
}

// Hello connects, negotiates and closes the channel.
func (c *Client) Hello(ctx context.Context) (Negotiation, error) {
	session, err := c.Connect(ctx)
	if err != nil {
		return Negotiation{}, err
	}
	closeChannel(c.logger, session.Channel)
	return Negotiation{Version: session.NegotiatedVersion, Supported: session.HandshakeSupport}, nil
}

func (c *Client) AcquireToken(ctx context.Context, req AcquireTokenRequest) (AuthenticationResult, error) {
	return c.acquire(ctx, RequestAcquireToken, req)
}

func (c *Client) AcquireTokenSilent(ctx context.Context, req AcquireTokenRequest) (AuthenticationResult, error) {
	return c.acquire(ctx, RequestAcquireTokenSilent, req)
}

func (c *Client) acquire(ctx context.Context, kind RequestKind, req AcquireTokenRequest) (result AuthenticationResult, err error) {
	startedAt := time.Now().UTC()
	req = req.Normalize()
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	fields := map[string]any{
		"client_name":    c.config.ClientName,
		"client_id":      req.ClientID,
		"correlation_id": req.CorrelationID,
		"request_kind":   string(kind),
	}
	defer func() {
		c.observeOperation(ctx, startedAt, string(kind), err, fields)
	}()

	if err := req.Validate(kind); err != nil {
		return AuthenticationResult{}, err
	}
	payload, err := EncodeAcquireTokenRequest(req)
	if err != nil {
		return AuthenticationResult{}, c.mapError(err)
	}
	response, err := c.exchange(ctx, kind, req.CorrelationID, Envelope{KeyRequest: payload}, fields)
	if err != nil {
		return AuthenticationResult{}, err
	}
	result, err = c.codec.DecodeResponse(response)
	if err != nil {
		return AuthenticationResult{}, err
	}
	if enriched, ok := enrichFromIDToken(result); ok {
		result = enriched
	}
	return result, nil
}

// GetAccounts lists the accounts the broker holds for clientID.
func (c *Client) GetAccounts(ctx context.Context, clientID string) (records []CacheRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"client_name": c.config.ClientName, "client_id": clientID}
	defer func() {
		fields["account_count"] = len(records)
		c.observeOperation(ctx, startedAt, "get_accounts", err, fields)
	}()

	response, err := c.exchange(ctx, RequestGetAccounts, "", Envelope{KeyClientID: clientID}, fields)
	if err != nil {
		return nil, err
	}
	if success, ok := response.Bool(KeyRequestSuccess); ok && !success {
		return nil, c.codec.DecodeToError(response)
	}
	return c.codec.DecodeAccountList(response)
}

func (c *Client) GetDeviceMode(ctx context.Context) (shared bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"client_name": c.config.ClientName}
	defer func() {
		fields["shared_device"] = shared
		c.observeOperation(ctx, startedAt, "get_device_mode", err, fields)
	}()

	response, err := c.exchange(ctx, RequestGetDeviceMode, "", Envelope{}, fields)
	if err != nil {
		return false, err
	}
	if success, ok := response.Bool(KeyRequestSuccess); ok && !success {
		return false, c.codec.DecodeToError(response)
	}
	return c.codec.DecodeDeviceMode(response), nil
}

// exchange runs one request on a fresh session and returns the response envelope.
func (c *Client) exchange(
	ctx context.Context,
	kind RequestKind,
	correlationID string,
	envelope Envelope,
	fields map[string]any,
) (Envelope, error) {
	session, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeChannel(c.logger, session.Channel)
	fields["protocol_version"] = session.NegotiatedVersion

	envelope = envelope.Clone()
	envelope[KeyNegotiatedProtocolVersion] = session.NegotiatedVersion
	request, err := c.frames.EncodeFrame(Frame{Kind: kind, CorrelationID: correlationID, Envelope: envelope})
	if err != nil {
		return nil, c.mapError(err)
	}

	if timeout := c.config.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	raw, err := session.Channel.Send(ctx, request)
	if err != nil {
		return nil, channelFailure(string(kind), err)
	}
	response, err := c.frames.DecodeFrame(raw)
	if err != nil {
		return nil, err
	}
	if response.Kind != "" && response.Kind != kind {
		return nil, decodeError(ErrorCodeDecodeFailed, fmt.Sprintf("response kind %q does not match request %q", response.Kind, kind), nil)
	}
	return response.Envelope, nil
}

// mapError keeps broker errors typed and maps everything else to go-errors.
func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsBrokerError(err); ok {
		return err
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	if c == nil || c.errorMapper == nil {
		return err
	}
	mapped := c.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func closeChannel(logger Logger, channel ChannelHandle) {
	if channel == nil {
		return
	}
	if err := channel.Close(); err != nil && logger != nil {
		logger.Warn("close broker channel failed", "channel_id", channel.ID(), "error", err)
	}
}
