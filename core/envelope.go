package core

import (
	"strconv"
	"strings"
)

// Envelope keys shared with the broker. These are a bit-exact contract.
const (
	KeyResult                        = "broker_result_v2"
	KeyRequestSuccess                = "broker_request_v2_success"
	KeyRequest                       = "broker_request_v2"
	KeyDeviceMode                    = "broker_device_mode"
	KeyAccounts                      = "broker_accounts"
	KeyClientID                      = "client_id"
	KeyNegotiatedProtocolVersion     = "common.broker.protocol.version.name"
	KeyClientMaxProtocolVersion      = "broker.protocol.version.name"
	KeyClientRequiredProtocolVersion = "required.broker.protocol.version.name"
	KeyOAuthError                    = "error"
	KeyOAuthErrorDescription         = "error_description"
)

// Envelope is the flat key/value structure exchanged with the broker.
type Envelope map[string]any

func NewEnvelope() Envelope {
	return Envelope{}
}

func (e Envelope) Has(key string) bool {
	if e == nil {
		return false
	}
	_, ok := e[key]
	return ok
}

// String returns the string stored under key. Non-string values report false.
func (e Envelope) String(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	value, ok := e[key]
	if !ok || value == nil {
		return "", false
	}
	typed, ok := value.(string)
	return typed, ok
}

// NonEmptyString returns the trimmed string under key and whether it is non-empty.
func (e Envelope) NonEmptyString(key string) (string, bool) {
	value, ok := e.String(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (e Envelope) Bool(key string) (bool, bool) {
	if e == nil {
		return false, false
	}
	switch typed := e[key].(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}

func (e Envelope) Set(key string, value any) Envelope {
	if e == nil {
		e = Envelope{}
	}
	e[key] = value
	return e
}

func (e Envelope) Clone() Envelope {
	if len(e) == 0 {
		return Envelope{}
	}
	out := make(Envelope, len(e))
	for key, value := range e {
		out[key] = value
	}
	return out
}

// Fields returns the envelope as a log friendly map with sensitive keys redacted.
func (e Envelope) Fields() map[string]any {
	return RedactSensitiveMap(map[string]any(e))
}
