package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BrokerErrorBadInput                 = "BROKER_BAD_INPUT"
	BrokerErrorNotFound                 = "BROKER_NOT_FOUND"
	BrokerErrorUnauthorized             = "BROKER_UNAUTHORIZED"
	BrokerErrorForbidden                = "BROKER_FORBIDDEN"
	BrokerErrorOperationFailed          = "BROKER_OPERATION_FAILED"
	BrokerErrorExternalFailure          = "BROKER_EXTERNAL_FAILURE"
	BrokerErrorInternal                 = "BROKER_INTERNAL_ERROR"
	BrokerErrorUIRequired               = "BROKER_UI_REQUIRED"
	BrokerErrorProtectionPolicyRequired = "BROKER_PROTECTION_POLICY_REQUIRED"
	BrokerErrorUserCancelled            = "BROKER_USER_CANCELLED"
	BrokerErrorInvalidArgument          = "BROKER_INVALID_ARGUMENT"
	BrokerErrorServiceFailure           = "BROKER_SERVICE_FAILURE"
	BrokerErrorClientFailure            = "BROKER_CLIENT_FAILURE"
	BrokerErrorDecodeFailure            = "BROKER_DECODE_FAILURE"
	BrokerErrorNoAccountFound           = "BROKER_NO_ACCOUNT_FOUND"
	BrokerErrorConnectionTimedOut       = "BROKER_CONNECTION_TIMED_OUT"
	BrokerErrorConnectionRejected       = "BROKER_CONNECTION_REJECTED"
)

// brokerErrorMapper maps infrastructure errors (config, transport, store) to
// go-errors envelopes. Typed broker errors convert through ToServiceError.
func brokerErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBrokerErrorEnvelope(richErr)
	}
	if brokerErr, ok := AsBrokerError(err); ok {
		return brokerErr.ToServiceError()
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		return newBrokerServiceError(err.Error(), goerrors.CategoryExternal, BrokerErrorConnectionTimedOut)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such file"):
		return newBrokerServiceError(err.Error(), goerrors.CategoryExternal, BrokerErrorConnectionRejected)
	case strings.Contains(msg, "not found"):
		return newBrokerServiceError(err.Error(), goerrors.CategoryNotFound, BrokerErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return newBrokerServiceError(err.Error(), goerrors.CategoryBadInput, BrokerErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBrokerErrorEnvelope(mapped)
}

func newBrokerServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBrokerErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBrokerErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = brokerHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBrokerTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBrokerTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BrokerErrorBadInput
	case goerrors.CategoryNotFound:
		return BrokerErrorNotFound
	case goerrors.CategoryAuth:
		return BrokerErrorUnauthorized
	case goerrors.CategoryAuthz:
		return BrokerErrorForbidden
	case goerrors.CategoryOperation:
		return BrokerErrorOperationFailed
	case goerrors.CategoryExternal:
		return BrokerErrorExternalFailure
	default:
		return BrokerErrorInternal
	}
}

func brokerHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
