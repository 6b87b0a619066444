package core

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

type RequestKind string

const (
	RequestHello              RequestKind = "hello"
	RequestAcquireToken       RequestKind = "acquire_token"
	RequestAcquireTokenSilent RequestKind = "acquire_token_silent"
	RequestGetAccounts        RequestKind = "get_accounts"
	RequestGetDeviceMode      RequestKind = "get_device_mode"
)

func (k RequestKind) Valid() bool {
	switch k {
	case RequestHello, RequestAcquireToken, RequestAcquireTokenSilent, RequestGetAccounts, RequestGetDeviceMode:
		return true
	default:
		return false
	}
}

// Frame is one message on the channel: the request kind plus its envelope.
// Responses echo the request kind.
type Frame struct {
	Kind          RequestKind `cbor:"kind"`
	CorrelationID string      `cbor:"correlation_id,omitempty"`
	Envelope      Envelope    `cbor:"envelope"`
}

type FrameCodec interface {
	EncodeFrame(frame Frame) ([]byte, error)
	DecodeFrame(payload []byte) (Frame, error)
}

// CBORFrameCodec encodes frames with core deterministic CBOR. Decoded nested
// maps use map[string]any so envelopes stay JSON compatible.
type CBORFrameCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORFrameCodec() (*CBORFrameCodec, error) {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("core: cbor encoder init: %w", err)
	}
	decMode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("core: cbor decoder init: %w", err)
	}
	return &CBORFrameCodec{enc: encMode, dec: decMode}, nil
}

func MustCBORFrameCodec() *CBORFrameCodec {
	codec, err := NewCBORFrameCodec()
	if err != nil {
		panic(err)
	}
	return codec
}

func (c *CBORFrameCodec) EncodeFrame(frame Frame) ([]byte, error) {
	if c == nil || c.enc == nil {
		return nil, fmt.Errorf("core: cbor frame codec is not initialized")
	}
	if !frame.Kind.Valid() {
		return nil, fmt.Errorf("core: unsupported request kind %q", frame.Kind)
	}
	if frame.Envelope == nil {
		frame.Envelope = Envelope{}
	}
	payload, err := c.enc.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("core: encode frame: %w", err)
	}
	return payload, nil
}

func (c *CBORFrameCodec) DecodeFrame(payload []byte) (Frame, error) {
	if c == nil || c.dec == nil {
		return Frame{}, fmt.Errorf("core: cbor frame codec is not initialized")
	}
	if len(payload) == 0 {
		return Frame{}, decodeError(ErrorCodeNoResultReturned, "empty frame", nil)
	}
	frame := Frame{}
	if err := c.dec.Unmarshal(payload, &frame); err != nil {
		return Frame{}, decodeError(ErrorCodeDecodeFailed, "frame is not valid CBOR", err)
	}
	frame.Kind = RequestKind(strings.TrimSpace(string(frame.Kind)))
	if frame.Envelope == nil {
		frame.Envelope = Envelope{}
	}
	return frame, nil
}
