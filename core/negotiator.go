package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	// OldestProtocolVersion is assumed for brokers that ignore hello.
	OldestProtocolVersion = "1.0"
	// CurrentProtocolVersion is the newest version this client speaks.
	CurrentProtocolVersion = "16.0"
)

// ProtocolNegotiator runs the hello exchange on a connected channel.
type ProtocolNegotiator struct {
	frames          FrameCodec
	logger          Logger
	maxVersion      string
	requiredVersion string
}

func NewProtocolNegotiator(frames FrameCodec, logger Logger, protocol ProtocolConfig) ProtocolNegotiator {
	return ProtocolNegotiator{
		frames:          frames,
		logger:          logger,
		maxVersion:      firstNonEmpty(protocol.MaxVersion, CurrentProtocolVersion),
		requiredVersion: firstNonEmpty(protocol.MinVersion, OldestProtocolVersion),
	}
}

// HelloEnvelope is the request advertised to the broker.
func (n ProtocolNegotiator) HelloEnvelope() Envelope {
	return Envelope{
		KeyClientMaxProtocolVersion:      n.maxVersion,
		KeyClientRequiredProtocolVersion: n.requiredVersion,
	}
}

func (n ProtocolNegotiator) Negotiate(ctx context.Context, channel ChannelHandle) (Negotiation, error) {
	if channel == nil {
		return Negotiation{}, NewClientError(KindClientFailure, ErrorCodeNoChannel, "no channel to negotiate on")
	}
	if n.frames == nil {
		return Negotiation{}, fmt.Errorf("core: negotiator has no frame codec")
	}
	request, err := n.frames.EncodeFrame(Frame{Kind: RequestHello, Envelope: n.HelloEnvelope()})
	if err != nil {
		return Negotiation{}, err
	}
	raw, err := channel.Send(ctx, request)
	if err != nil {
		return Negotiation{}, channelFailure("hello", err)
	}
	response, err := n.frames.DecodeFrame(raw)
	if err != nil {
		return Negotiation{}, err
	}
	negotiation, err := NegotiationFromEnvelope(response.Envelope)
	if err != nil {
		return Negotiation{}, err
	}
	if !negotiation.Supported && n.logger != nil {
		n.logger.Info("broker does not support hello, assuming oldest protocol",
			"channel_id", channel.ID(),
			"protocol_version", negotiation.Version,
		)
	}
	return negotiation, nil
}

// NegotiationFromEnvelope classifies a hello response. A negotiated version
// wins over any error fields sent alongside it.
func NegotiationFromEnvelope(envelope Envelope) (Negotiation, error) {
	if version, ok := envelope.NonEmptyString(KeyNegotiatedProtocolVersion); ok {
		return Negotiation{Version: version, Supported: true}, nil
	}

	code, hasCode := envelope.NonEmptyString(KeyOAuthError)
	description, hasDescription := envelope.NonEmptyString(KeyOAuthErrorDescription)
	if hasCode && hasDescription {
		return Negotiation{}, connectionRejectedError(code, description, nil)
	}

	if legacy, ok := envelope[KeyResult]; ok && legacy != nil {
		if _, isString := legacy.(string); !isString {
			code, message := unwrapLegacyError(legacy)
			return Negotiation{}, connectionRejectedError(code, message, nil)
		}
	}

	return Negotiation{Version: OldestProtocolVersion, Supported: false}, nil
}

// unwrapLegacyError reads the error object older brokers embedded directly
// under the result key.
func unwrapLegacyError(value any) (string, string) {
	switch typed := value.(type) {
	case ErrorEnvelope:
		return typed.Code, typed.Message
	case *ErrorEnvelope:
		if typed != nil {
			return typed.Code, typed.Message
		}
	case map[string]any:
		code := firstNonEmpty(stringField(typed, "broker_error_code"), stringField(typed, "error_code"), stringField(typed, KeyOAuthError))
		message := firstNonEmpty(stringField(typed, "broker_error_message"), stringField(typed, "error_message"), stringField(typed, KeyOAuthErrorDescription))
		return firstNonEmpty(code, ErrorCodeUnknown), message
	case Envelope:
		return unwrapLegacyError(map[string]any(typed))
	}
	return ErrorCodeUnknown, fmt.Sprintf("legacy broker error of type %T", value)
}

func stringField(values map[string]any, key string) string {
	if value, ok := values[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

// SelectProtocolVersion picks the version a broker answers with: the lower of
// the client maximum and the broker maximum. ok is false when that falls below
// the client's required minimum.
func SelectProtocolVersion(clientMax, clientRequired, brokerMax string) (string, bool) {
	selected := brokerMax
	if clientMax != "" && CompareProtocolVersions(clientMax, brokerMax) < 0 {
		selected = clientMax
	}
	if clientRequired != "" && CompareProtocolVersions(selected, clientRequired) < 0 {
		return selected, false
	}
	return selected, true
}

// CompareProtocolVersions compares dotted numeric versions. Missing or
// non-numeric segments count as zero.
func CompareProtocolVersions(a, b string) int {
	left := strings.Split(strings.TrimSpace(a), ".")
	right := strings.Split(strings.TrimSpace(b), ".")
	for i := 0; i < len(left) || i < len(right); i++ {
		l := versionSegment(left, i)
		r := versionSegment(right, i)
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		}
	}
	return 0
}

func versionSegment(parts []string, index int) int {
	if index >= len(parts) {
		return 0
	}
	value, err := strconv.Atoi(strings.TrimSpace(parts[index]))
	if err != nil {
		return 0
	}
	return value
}

func channelFailure(operation string, cause error) *ClientError {
	err := NewClientError(KindClientFailure, "broker_channel_failure", operation+" exchange failed")
	err.Cause = cause
	return err
}
