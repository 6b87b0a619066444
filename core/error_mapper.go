package core

import (
	"encoding/json"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorEnvelope is the error payload carried under broker_result_v2.
type ErrorEnvelope struct {
	Success               bool   `json:"success"`
	Code                  string `json:"broker_error_code"`
	Message               string `json:"broker_error_message,omitempty"`
	SubCode               string `json:"oauth_sub_error,omitempty"`
	CorrelationID         string `json:"correlation_id,omitempty"`
	TelemetryErrorCode    string `json:"cli_telem_error_code,omitempty"`
	TelemetrySubErrorCode string `json:"cli_telem_suberror_code,omitempty"`
	SpeRing               string `json:"spe_ring,omitempty"`
	RefreshTokenAge       string `json:"refresh_token_age,omitempty"`
	HTTPStatusCode        int    `json:"http_response_code,omitempty"`
	HTTPResponseHeaders   string `json:"http_response_headers,omitempty"`
	HTTPResponseBody      string `json:"http_response_body,omitempty"`
	TenantID              string `json:"tenant_id,omitempty"`
	Authority             string `json:"authority,omitempty"`
	Username              string `json:"username,omitempty"`
	LocalAccountID        string `json:"local_account_id,omitempty"`
}

func (e ErrorEnvelope) hasHTTPContext() bool {
	return e.HTTPStatusCode != 0 ||
		strings.TrimSpace(e.HTTPResponseHeaders) != "" ||
		strings.TrimSpace(e.HTTPResponseBody) != ""
}

func (e ErrorEnvelope) diagnostics() Diagnostics {
	return Diagnostics{
		TelemetryErrorCode:    e.TelemetryErrorCode,
		TelemetrySubErrorCode: e.TelemetrySubErrorCode,
		CorrelationID:         e.CorrelationID,
		SpeRing:               e.SpeRing,
		RefreshTokenAge:       e.RefreshTokenAge,
	}
}

// ErrorMapper translates between typed broker errors and error envelopes.
// The zero value is usable and does not log.
type ErrorMapper struct {
	logger Logger
}

func NewErrorMapper(logger Logger) ErrorMapper {
	return ErrorMapper{logger: logger}
}

// ToEnvelope projects err onto an error envelope. Errors outside the broker
// taxonomy become unknown_error with their message preserved.
func (m ErrorMapper) ToEnvelope(err error) ErrorEnvelope {
	if err == nil {
		return ErrorEnvelope{Code: ErrorCodeUnknown}
	}
	brokerErr, ok := AsBrokerError(err)
	if !ok {
		envelope := ErrorEnvelope{Code: ErrorCodeUnknown, Message: err.Error()}
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.TextCode) != "" {
			envelope.Code = strings.ToLower(richErr.TextCode)
			envelope.Message = richErr.Message
		}
		return envelope
	}

	base := brokerErr.brokerError()
	envelope := ErrorEnvelope{
		Code:                  base.Code,
		Message:               base.Message,
		CorrelationID:         base.CorrelationID,
		TelemetryErrorCode:    base.TelemetryErrorCode,
		TelemetrySubErrorCode: base.TelemetrySubErrorCode,
		SpeRing:               base.SpeRing,
		RefreshTokenAge:       base.RefreshTokenAge,
	}

	switch typed := brokerErr.(type) {
	case *UIRequiredError:
		envelope.Code = firstNonEmpty(envelope.Code, ErrorCodeInteractionRequired)
		envelope.SubCode = typed.OAuthSubError
	case *ProtectionPolicyRequiredError:
		envelope.Code = ErrorCodeUnauthorizedClient
		envelope.SubCode = ErrorCodeProtectionPolicyRequired
		envelope.TenantID = typed.TenantID
		envelope.Authority = typed.Authority
		envelope.Username = typed.Username
		envelope.LocalAccountID = typed.LocalAccountID
		m.projectHTTP(&envelope, typed.HTTPResponse)
	case *UserCancelledError:
		envelope.Code = ErrorCodeUserCancelled
	case *ArgumentError:
		envelope.Code = firstNonEmpty(envelope.Code, ErrorCodeIllegalArgument)
	case *ServiceError:
		envelope.SubCode = typed.OAuthSubError
		m.projectHTTP(&envelope, typed.HTTPResponse)
	case *ClientError:
		envelope.Code = firstNonEmpty(envelope.Code, ErrorCodeUnknown)
	}
	return envelope
}

func (m ErrorMapper) projectHTTP(envelope *ErrorEnvelope, response *HTTPResponse) {
	if envelope == nil || response == nil {
		return
	}
	envelope.HTTPStatusCode = response.StatusCode
	if len(response.Headers) > 0 {
		if raw, err := json.Marshal(response.Headers); err == nil {
			envelope.HTTPResponseHeaders = string(raw)
		} else {
			m.warn("http response headers not serializable", "error", err)
		}
	}
	if len(response.Body) > 0 {
		if raw, err := json.Marshal(response.Body); err == nil {
			envelope.HTTPResponseBody = string(raw)
		} else {
			m.warn("http response body not serializable", "error", err)
		}
	}
}

// FromEnvelope classifies an error envelope. Rules are evaluated in order and
// the first match wins; the diagnostic fields are copied onto every result.
func (m ErrorMapper) FromEnvelope(envelope ErrorEnvelope) BrokerError {
	code := strings.ToLower(strings.TrimSpace(envelope.Code))
	subCode := strings.ToLower(strings.TrimSpace(envelope.SubCode))
	base := ErrorBase{Code: envelope.Code, Message: envelope.Message}

	var out BrokerError
	switch {
	case code == ErrorCodeInteractionRequired, code == ErrorCodeInvalidGrant:
		out = &UIRequiredError{ErrorBase: base, OAuthSubError: envelope.SubCode}
	case code == ErrorCodeUnauthorizedClient && subCode == ErrorCodeProtectionPolicyRequired:
		out = &ProtectionPolicyRequiredError{
			ErrorBase:      base,
			OAuthSubError:  envelope.SubCode,
			TenantID:       envelope.TenantID,
			Authority:      envelope.Authority,
			Username:       envelope.Username,
			LocalAccountID: envelope.LocalAccountID,
			HTTPResponse:   m.parseHTTP(envelope),
		}
	case code == ErrorCodeUserCancelled:
		out = &UserCancelledError{ErrorBase: base}
	case code == ErrorCodeIllegalArgument, code == "illegal_argument":
		out = &ArgumentError{ErrorBase: base, Operation: OperationAcquireToken}
	case envelope.hasHTTPContext():
		out = &ServiceError{
			ErrorBase:     base,
			OAuthSubError: envelope.SubCode,
			HTTPResponse:  m.parseHTTP(envelope),
		}
	default:
		out = &ClientError{ErrorBase: base, kind: KindClientFailure}
	}

	out.brokerError().Diagnostics = envelope.diagnostics()
	return out
}

func (m ErrorMapper) parseHTTP(envelope ErrorEnvelope) *HTTPResponse {
	if !envelope.hasHTTPContext() {
		return nil
	}
	response := &HTTPResponse{StatusCode: envelope.HTTPStatusCode}
	if raw := strings.TrimSpace(envelope.HTTPResponseHeaders); raw != "" {
		headers := map[string][]string{}
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			m.warn("malformed http response headers in broker error", "error", err, "correlation_id", envelope.CorrelationID)
		} else {
			response.Headers = headers
		}
	}
	if raw := strings.TrimSpace(envelope.HTTPResponseBody); raw != "" {
		body := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			m.warn("malformed http response body in broker error", "error", err, "correlation_id", envelope.CorrelationID)
		} else {
			response.Body = body
		}
	}
	return response
}

func (m ErrorMapper) warn(msg string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Warn(msg, args...)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
