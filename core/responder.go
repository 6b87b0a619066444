package core

import (
	"context"
	"fmt"
)

// Responder is the broker side of the channel. It decodes request frames,
// calls the backend and encodes the response envelope.
type Responder struct {
	backend     BrokerBackend
	codec       ResultCodec
	frames      FrameCodec
	logger      Logger
	maxVersion  string
	legacyHello bool
}

type ResponderOption func(*Responder)

func WithResponderLogger(logger Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = ensureLogger(logger)
	}
}

func WithResponderFrameCodec(codec FrameCodec) ResponderOption {
	return func(r *Responder) {
		if codec != nil {
			r.frames = codec
		}
	}
}

// WithBrokerProtocolVersion sets the highest version the broker answers with.
func WithBrokerProtocolVersion(version string) ResponderOption {
	return func(r *Responder) {
		if version != "" {
			r.maxVersion = version
		}
	}
}

// WithLegacyHello makes the responder ignore hello requests, like brokers
// that predate the handshake.
func WithLegacyHello(enabled bool) ResponderOption {
	return func(r *Responder) {
		r.legacyHello = enabled
	}
}

func NewResponder(backend BrokerBackend, opts ...ResponderOption) (*Responder, error) {
	if backend == nil {
		return nil, fmt.Errorf("core: responder backend is required")
	}
	responder := &Responder{
		backend:    backend,
		logger:     ensureLogger(nil),
		maxVersion: CurrentProtocolVersion,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(responder)
		}
	}
	if responder.frames == nil {
		codec, err := NewCBORFrameCodec()
		if err != nil {
			return nil, err
		}
		responder.frames = codec
	}
	responder.codec = NewResultCodec(NewErrorMapper(responder.logger))
	return responder, nil
}

// Handle answers one encoded request frame.
func (r *Responder) Handle(ctx context.Context, request []byte) ([]byte, error) {
	frame, err := r.frames.DecodeFrame(request)
	if err != nil {
		return nil, err
	}
	response := r.HandleEnvelope(ctx, frame.Kind, frame.Envelope)
	return r.frames.EncodeFrame(Frame{Kind: frame.Kind, CorrelationID: frame.CorrelationID, Envelope: response})
}

// HandleEnvelope answers a decoded request. Backend failures become failure
// envelopes; it never returns nil.
func (r *Responder) HandleEnvelope(ctx context.Context, kind RequestKind, request Envelope) Envelope {
	r.logger.Debug("broker request received", "request_kind", string(kind))
	switch kind {
	case RequestHello:
		return r.hello(request)
	case RequestAcquireToken, RequestAcquireTokenSilent:
		return r.acquire(ctx, kind, request)
	case RequestGetAccounts:
		return r.accounts(ctx, request)
	case RequestGetDeviceMode:
		shared, err := r.backend.DeviceMode(ctx)
		if err != nil {
			return r.failure(err)
		}
		return r.codec.EncodeDeviceMode(shared)
	default:
		return r.failure(invalidArgumentError("handle", fmt.Sprintf("unsupported request kind %q", kind)))
	}
}

func (r *Responder) hello(request Envelope) Envelope {
	if r.legacyHello {
		return Envelope{}
	}
	clientMax, _ := request.NonEmptyString(KeyClientMaxProtocolVersion)
	clientRequired, _ := request.NonEmptyString(KeyClientRequiredProtocolVersion)
	version, ok := SelectProtocolVersion(clientMax, clientRequired, r.maxVersion)
	if !ok {
		r.logger.Warn("hello rejected, client requires a newer protocol",
			"client_required", clientRequired,
			"broker_max", r.maxVersion,
		)
		return Envelope{
			KeyOAuthError:            "unsupported_broker_version",
			KeyOAuthErrorDescription: fmt.Sprintf("broker protocol %s is below required %s", version, clientRequired),
		}
	}
	return Envelope{KeyNegotiatedProtocolVersion: version}
}

func (r *Responder) acquire(ctx context.Context, kind RequestKind, request Envelope) Envelope {
	req, err := DecodeAcquireTokenRequest(request)
	if err != nil {
		return r.failure(err)
	}
	if err := req.Validate(kind); err != nil {
		return r.failure(err)
	}
	var result AuthenticationResult
	if kind == RequestAcquireTokenSilent {
		result, err = r.backend.AcquireTokenSilent(ctx, req)
	} else {
		result, err = r.backend.AcquireToken(ctx, req)
	}
	if err != nil {
		return r.failure(withCorrelation(err, req.CorrelationID))
	}
	envelope, err := r.codec.EncodeSuccess(result)
	if err != nil {
		return r.failure(err)
	}
	return envelope
}

func (r *Responder) accounts(ctx context.Context, request Envelope) Envelope {
	clientID, _ := request.NonEmptyString(KeyClientID)
	records, err := r.backend.Accounts(ctx, clientID)
	if err != nil {
		// A failed lookup leaves broker_accounts unset; an empty list is
		// still encoded as "[]".
		if IsKind(err, KindNoAccountFound) {
			return Envelope{}
		}
		return r.failure(err)
	}
	envelope, err := r.codec.EncodeAccountList(records)
	if err != nil {
		return r.failure(err)
	}
	return envelope
}

func (r *Responder) failure(err error) Envelope {
	envelope, encodeErr := r.codec.EncodeFailure(err)
	if encodeErr != nil {
		r.logger.Error("encode failure envelope", "error", encodeErr)
		fallback, _ := r.codec.EncodeFailure(NewClientError(KindClientFailure, ErrorCodeUnknown, "broker failed to encode error"))
		return fallback
	}
	return envelope
}

// withCorrelation stamps the request correlation id on broker errors that
// do not carry one.
func withCorrelation(err error, correlationID string) error {
	if correlationID == "" {
		return err
	}
	if brokerErr, ok := AsBrokerError(err); ok {
		base := brokerErr.brokerError()
		if base.CorrelationID == "" {
			base.CorrelationID = correlationID
		}
	}
	return err
}
