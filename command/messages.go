package command

import (
	"github.com/goliatone/go-broker/core"
)

const (
	TypeHello              = "broker.command.hello"
	TypeAcquireToken       = "broker.command.acquire_token"
	TypeAcquireTokenSilent = "broker.command.acquire_token_silent"
)

// HelloMessage asks the broker to negotiate a protocol version.
type HelloMessage struct{}

func (HelloMessage) Type() string { return TypeHello }

func (HelloMessage) Validate() error { return nil }

type AcquireTokenMessage struct {
	Request core.AcquireTokenRequest
}

func (AcquireTokenMessage) Type() string { return TypeAcquireToken }

func (m AcquireTokenMessage) Validate() error {
	return validateRequest(m.Request, core.RequestAcquireToken)
}

type AcquireTokenSilentMessage struct {
	Request core.AcquireTokenRequest
}

func (AcquireTokenSilentMessage) Type() string { return TypeAcquireTokenSilent }

func (m AcquireTokenSilentMessage) Validate() error {
	return validateRequest(m.Request, core.RequestAcquireTokenSilent)
}

func validateRequest(req core.AcquireTokenRequest, kind core.RequestKind) error {
	normalized := req.Normalize()
	if normalized.ClientID == "" {
		return commandValidationError("client_id", "client id is required")
	}
	if len(normalized.Scopes) == 0 {
		return commandValidationError("scopes", "at least one scope is required")
	}
	if err := normalized.Validate(kind); err != nil {
		return commandWrapValidation(err, "command: invalid token request")
	}
	return nil
}
