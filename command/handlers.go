package command

import (
	"context"

	"github.com/goliatone/go-broker/core"
	gocmd "github.com/goliatone/go-command"
)

// TokenService is the part of the broker client the commands drive.
type TokenService interface {
	Hello(ctx context.Context) (core.Negotiation, error)
	AcquireToken(ctx context.Context, req core.AcquireTokenRequest) (core.AuthenticationResult, error)
	AcquireTokenSilent(ctx context.Context, req core.AcquireTokenRequest) (core.AuthenticationResult, error)
}

type HelloCommand struct {
	service TokenService
}

func NewHelloCommand(service TokenService) *HelloCommand {
	return &HelloCommand{service: service}
}

func (c *HelloCommand) Execute(ctx context.Context, _ HelloMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: hello service is required")
	}
	out, err := c.service.Hello(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AcquireTokenCommand struct {
	service TokenService
}

func NewAcquireTokenCommand(service TokenService) *AcquireTokenCommand {
	return &AcquireTokenCommand{service: service}
}

func (c *AcquireTokenCommand) Execute(ctx context.Context, msg AcquireTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: acquire token service is required")
	}
	out, err := c.service.AcquireToken(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AcquireTokenSilentCommand struct {
	service TokenService
}

func NewAcquireTokenSilentCommand(service TokenService) *AcquireTokenSilentCommand {
	return &AcquireTokenSilentCommand{service: service}
}

func (c *AcquireTokenSilentCommand) Execute(ctx context.Context, msg AcquireTokenSilentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: acquire token silent service is required")
	}
	out, err := c.service.AcquireTokenSilent(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
