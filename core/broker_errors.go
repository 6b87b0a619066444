package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Wire error codes exchanged with the broker.
const (
	ErrorCodeInteractionRequired      = "interaction_required"
	ErrorCodeInvalidGrant             = "invalid_grant"
	ErrorCodeUnauthorizedClient       = "unauthorized_client"
	ErrorCodeProtectionPolicyRequired = "protection_policy_required"
	ErrorCodeUserCancelled            = "user_cancelled"
	ErrorCodeIllegalArgument          = "illegal_argument_exception"
	ErrorCodeNoAccountFound           = "no_account_found"
	ErrorCodeNoResultReturned         = "broker_no_result_returned"
	ErrorCodeDecodeFailed             = "broker_result_decode_failed"
	ErrorCodeConnectionTimedOut       = "broker_connection_timed_out"
	ErrorCodeConnectionRejected       = "broker_connection_rejected"
	ErrorCodeConnectCancelled         = "broker_connect_cancelled"
	ErrorCodeNoChannel                = "broker_no_channel"
	ErrorCodeUnknown                  = "unknown_error"
)

// OperationAcquireToken tags argument errors decoded from a broker response.
const OperationAcquireToken = "acquireToken"

type ErrorKind string

const (
	KindUIRequired               ErrorKind = "ui_required"
	KindProtectionPolicyRequired ErrorKind = "protection_policy_required"
	KindUserCancelled            ErrorKind = "user_cancelled"
	KindInvalidArgument          ErrorKind = "invalid_argument"
	KindServiceFailure           ErrorKind = "service_failure"
	KindClientFailure            ErrorKind = "client_failure"
	KindDecodeFailure            ErrorKind = "decode_failure"
	KindNoAccountFound           ErrorKind = "no_account_found"
	KindConnectionTimedOut       ErrorKind = "connection_timed_out"
	KindConnectionRejected       ErrorKind = "connection_rejected"
)

// Diagnostics is carried by every broker error regardless of kind.
type Diagnostics struct {
	TelemetryErrorCode    string
	TelemetrySubErrorCode string
	CorrelationID         string
	SpeRing               string
	RefreshTokenAge       string
}

// BrokerError is the closed set of errors produced by the protocol layer.
type BrokerError interface {
	error
	Kind() ErrorKind
	ErrorCode() string
	Diagnostic() Diagnostics
	ToServiceError() *goerrors.Error
	brokerError() *ErrorBase
}

// ErrorBase holds the fields shared by every BrokerError variant.
type ErrorBase struct {
	Code    string
	Message string
	Diagnostics
}

func (b *ErrorBase) ErrorCode() string {
	if b == nil {
		return ""
	}
	return b.Code
}

func (b *ErrorBase) Diagnostic() Diagnostics {
	if b == nil {
		return Diagnostics{}
	}
	return b.Diagnostics
}

func (b *ErrorBase) brokerError() *ErrorBase { return b }

func (b *ErrorBase) describe(kind ErrorKind) string {
	if b == nil {
		return string(kind)
	}
	switch {
	case b.Code != "" && b.Message != "":
		return fmt.Sprintf("broker: %s: %s: %s", kind, b.Code, b.Message)
	case b.Code != "":
		return fmt.Sprintf("broker: %s: %s", kind, b.Code)
	case b.Message != "":
		return fmt.Sprintf("broker: %s: %s", kind, b.Message)
	default:
		return "broker: " + string(kind)
	}
}

func (b *ErrorBase) metadata() map[string]any {
	metadata := map[string]any{}
	if b == nil {
		return metadata
	}
	if b.Code != "" {
		metadata["broker_error_code"] = b.Code
	}
	for key, value := range map[string]string{
		"correlation_id":          b.CorrelationID,
		"cli_telem_error_code":    b.TelemetryErrorCode,
		"cli_telem_suberror_code": b.TelemetrySubErrorCode,
		"spe_ring":                b.SpeRing,
		"refresh_token_age":       b.RefreshTokenAge,
	} {
		if value != "" {
			metadata[key] = value
		}
	}
	return metadata
}

// HTTPResponse is the HTTP context of a service failure. Headers and Body are
// nil when the broker sent nothing or sent malformed JSON.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string][]string
	Body       map[string]any
}

type UIRequiredError struct {
	ErrorBase
	OAuthSubError string
}

func (e *UIRequiredError) Error() string   { return e.describe(KindUIRequired) }
func (e *UIRequiredError) Kind() ErrorKind { return KindUIRequired }

func (e *UIRequiredError) ToServiceError() *goerrors.Error {
	return serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryAuth, http.StatusUnauthorized, BrokerErrorUIRequired)
}

type ProtectionPolicyRequiredError struct {
	ErrorBase
	OAuthSubError  string
	TenantID       string
	Authority      string
	Username       string
	LocalAccountID string
	HTTPResponse   *HTTPResponse
}

func (e *ProtectionPolicyRequiredError) Error() string {
	return e.describe(KindProtectionPolicyRequired)
}

func (e *ProtectionPolicyRequiredError) Kind() ErrorKind { return KindProtectionPolicyRequired }

func (e *ProtectionPolicyRequiredError) ToServiceError() *goerrors.Error {
	err := serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryAuthz, http.StatusForbidden, BrokerErrorProtectionPolicyRequired)
	metadata := map[string]any{}
	if e.TenantID != "" {
		metadata["tenant_id"] = e.TenantID
	}
	if e.Authority != "" {
		metadata["authority"] = e.Authority
	}
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

type UserCancelledError struct {
	ErrorBase
}

func (e *UserCancelledError) Error() string   { return e.describe(KindUserCancelled) }
func (e *UserCancelledError) Kind() ErrorKind { return KindUserCancelled }

func (e *UserCancelledError) ToServiceError() *goerrors.Error {
	return serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryOperation, http.StatusBadRequest, BrokerErrorUserCancelled)
}

type ArgumentError struct {
	ErrorBase
	Operation string
}

func (e *ArgumentError) Error() string   { return e.describe(KindInvalidArgument) }
func (e *ArgumentError) Kind() ErrorKind { return KindInvalidArgument }

func (e *ArgumentError) ToServiceError() *goerrors.Error {
	err := serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryBadInput, http.StatusBadRequest, BrokerErrorInvalidArgument)
	if e.Operation != "" {
		err.WithMetadata(map[string]any{"operation": e.Operation})
	}
	return err
}

type ServiceError struct {
	ErrorBase
	OAuthSubError string
	HTTPResponse  *HTTPResponse
}

func (e *ServiceError) Error() string   { return e.describe(KindServiceFailure) }
func (e *ServiceError) Kind() ErrorKind { return KindServiceFailure }

func (e *ServiceError) ToServiceError() *goerrors.Error {
	status := http.StatusBadGateway
	if e.HTTPResponse != nil && e.HTTPResponse.StatusCode >= http.StatusBadRequest {
		status = e.HTTPResponse.StatusCode
	}
	return serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryExternal, status, BrokerErrorServiceFailure)
}

// ClientError covers the failures raised on the client side of the channel:
// generic client failures, decode failures, missing accounts and connection
// problems.
type ClientError struct {
	ErrorBase
	kind  ErrorKind
	Cause error
}

func NewClientError(kind ErrorKind, code, message string) *ClientError {
	switch kind {
	case KindDecodeFailure, KindNoAccountFound, KindConnectionTimedOut, KindConnectionRejected:
	default:
		kind = KindClientFailure
	}
	return &ClientError{ErrorBase: ErrorBase{Code: code, Message: message}, kind: kind}
}

func (e *ClientError) Error() string {
	message := e.describe(e.Kind())
	if e.Cause != nil {
		return message + ": " + e.Cause.Error()
	}
	return message
}

func (e *ClientError) Kind() ErrorKind {
	if e == nil || e.kind == "" {
		return KindClientFailure
	}
	return e.kind
}

func (e *ClientError) Unwrap() error { return e.Cause }

// Retryable reports whether the caller may retry the attempt as is.
func (e *ClientError) Retryable() bool {
	return e != nil && e.Kind() == KindConnectionTimedOut
}

func (e *ClientError) ToServiceError() *goerrors.Error {
	switch e.Kind() {
	case KindNoAccountFound:
		return serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryNotFound, http.StatusNotFound, BrokerErrorNoAccountFound)
	case KindDecodeFailure:
		return serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryExternal, http.StatusBadGateway, BrokerErrorDecodeFailure)
	case KindConnectionTimedOut:
		err := serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryExternal, http.StatusGatewayTimeout, BrokerErrorConnectionTimedOut)
		err.WithMetadata(map[string]any{"retryable": true})
		return err
	case KindConnectionRejected:
		return serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryExternal, http.StatusServiceUnavailable, BrokerErrorConnectionRejected)
	default:
		return serviceErrorFor(&e.ErrorBase, e.Error(), goerrors.CategoryExternal, http.StatusBadGateway, BrokerErrorClientFailure)
	}
}

func serviceErrorFor(
	base *ErrorBase,
	message string,
	category goerrors.Category,
	code int,
	textCode string,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if metadata := base.metadata(); len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func decodeError(code, message string, cause error) *ClientError {
	err := NewClientError(KindDecodeFailure, code, message)
	err.Cause = cause
	return err
}

func noAccountFoundError() *ClientError {
	return NewClientError(KindNoAccountFound, ErrorCodeNoAccountFound, "no account returned by the broker")
}

func connectionTimedOutError(message string) *ClientError {
	return NewClientError(KindConnectionTimedOut, ErrorCodeConnectionTimedOut, message)
}

func connectionRejectedError(code, message string, cause error) *ClientError {
	if strings.TrimSpace(code) == "" {
		code = ErrorCodeConnectionRejected
	}
	err := NewClientError(KindConnectionRejected, code, message)
	err.Cause = cause
	return err
}

func invalidArgumentError(operation, message string) *ArgumentError {
	return &ArgumentError{
		ErrorBase: ErrorBase{Code: ErrorCodeIllegalArgument, Message: message},
		Operation: operation,
	}
}

// AsBrokerError unwraps err into a BrokerError when one is present in its chain.
func AsBrokerError(err error) (BrokerError, bool) {
	if err == nil {
		return nil, false
	}
	var brokerErr BrokerError
	if errors.As(err, &brokerErr) {
		return brokerErr, true
	}
	return nil, false
}

// IsKind reports whether err carries a BrokerError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	brokerErr, ok := AsBrokerError(err)
	return ok && brokerErr.Kind() == kind
}

// IsNoResult reports whether the broker answered without any result payload.
func IsNoResult(err error) bool {
	brokerErr, ok := AsBrokerError(err)
	return ok && brokerErr.Kind() == KindDecodeFailure && brokerErr.ErrorCode() == ErrorCodeNoResultReturned
}

var (
	_ BrokerError = (*UIRequiredError)(nil)
	_ BrokerError = (*ProtectionPolicyRequiredError)(nil)
	_ BrokerError = (*UserCancelledError)(nil)
	_ BrokerError = (*ArgumentError)(nil)
	_ BrokerError = (*ServiceError)(nil)
	_ BrokerError = (*ClientError)(nil)
)
