package gocommand

import (
	"context"
	"net/http"
	"strings"

	brokercommand "github.com/goliatone/go-broker/command"
	"github.com/goliatone/go-broker/core"
	brokerquery "github.com/goliatone/go-broker/query"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	goerrors "github.com/goliatone/go-errors"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// BrokerService is the client surface exposed over the command bus.
type BrokerService interface {
	brokercommand.TokenService
	brokerquery.AccountReader
	brokerquery.DeviceModeReader
}

// Bus owns the go-command registry the broker handlers are registered in.
// Resolvers added before Initialize run for every registered handler.
type Bus struct {
	registry *command.Registry
}

func NewBus(registry *command.Registry) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

// Register adds a command or query handler to the registry without
// subscribing it to the dispatcher.
func (b *Bus) Register(handler any) error {
	if b == nil || b.registry == nil {
		return busDependencyError("gocommand: bus is not configured")
	}
	if handler == nil {
		return busDependencyError("gocommand: handler is required")
	}
	return b.registry.RegisterCommand(handler)
}

func (b *Bus) AddResolver(key string, resolver command.Resolver) error {
	if b == nil || b.registry == nil {
		return busDependencyError("gocommand: bus is not configured")
	}
	return b.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered handler into a go-job queue
// registry so token work can be scheduled as jobs.
func (b *Bus) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return busDependencyError("gocommand: queue registry is required")
	}
	return b.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (b *Bus) HasResolver(key string) bool {
	if b == nil || b.registry == nil {
		return false
	}
	return b.registry.HasResolver(strings.TrimSpace(key))
}

func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return busDependencyError("gocommand: bus is not configured")
	}
	return b.registry.Initialize()
}

// Subscriptions tracks dispatcher subscriptions so they can be released
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterCommandHandler subscribes cmd and registers it on the bus. The
// subscription is released when registration fails.
func RegisterCommandHandler[T any](bus *Bus, cmd command.Commander[T], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if bus == nil || bus.registry == nil {
		return nil, busDependencyError("gocommand: bus is not configured")
	}
	if cmd == nil {
		return nil, busDependencyError("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := bus.Register(cmd); err != nil {
		subscription.Unsubscribe()
		return nil, err
	}
	return subscription, nil
}

func RegisterQueryHandler[T any, R any](bus *Bus, qry command.Querier[T, R], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if bus == nil || bus.registry == nil {
		return nil, busDependencyError("gocommand: bus is not configured")
	}
	if qry == nil {
		return nil, busDependencyError("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := bus.Register(qry); err != nil {
		subscription.Unsubscribe()
		return nil, err
	}
	return subscription, nil
}

// RegisterBrokerHandlers registers and subscribes the hello and token
// commands plus the account and device mode queries.
func RegisterBrokerHandlers(bus *Bus, service BrokerService) (Subscriptions, error) {
	if service == nil {
		return nil, busDependencyError("gocommand: broker service is required")
	}
	subs := Subscriptions{}
	add := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, subscription)
		return nil
	}

	if err := add(RegisterCommandHandler[brokercommand.HelloMessage](bus, brokercommand.NewHelloCommand(service))); err != nil {
		return nil, err
	}
	if err := add(RegisterCommandHandler[brokercommand.AcquireTokenMessage](bus, brokercommand.NewAcquireTokenCommand(service))); err != nil {
		return nil, err
	}
	if err := add(RegisterCommandHandler[brokercommand.AcquireTokenSilentMessage](bus, brokercommand.NewAcquireTokenSilentCommand(service))); err != nil {
		return nil, err
	}
	if err := add(RegisterQueryHandler[brokerquery.LoadAccountsMessage, []core.CacheRecord](bus, brokerquery.NewLoadAccountsQuery(service))); err != nil {
		return nil, err
	}
	if err := add(RegisterQueryHandler[brokerquery.LoadDeviceModeMessage, bool](bus, brokerquery.NewLoadDeviceModeQuery(service))); err != nil {
		return nil, err
	}
	return subs, nil
}

// ValidateMessageContract runs the message's Validate() when it has one and
// requires a non-empty Type().
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return busValidationError("type", "message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return busValidationError("type", "message type is required")
	}
	return nil
}

// Dispatch validates msg and sends it to its subscribed command.
func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(contextOrBackground(ctx), msg)
}

// DispatchWithResult dispatches msg and returns the value its command stored
// in the result collector.
func DispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	collector := command.NewResult[R]()
	if err := Dispatch(command.ContextWithResult(contextOrBackground(ctx), collector), msg); err != nil {
		return zero, err
	}
	value, ok := collector.Load()
	if !ok {
		return zero, goerrors.New("gocommand: command stored no result", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.BrokerErrorInternal).
			WithMetadata(map[string]any{"message_type": messageType(msg)})
	}
	return value, nil
}

// Query validates msg and runs its subscribed query.
func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](contextOrBackground(ctx), msg)
}

func Hello(ctx context.Context) (core.Negotiation, error) {
	return DispatchWithResult[brokercommand.HelloMessage, core.Negotiation](ctx, brokercommand.HelloMessage{})
}

func AcquireToken(ctx context.Context, req core.AcquireTokenRequest) (core.AuthenticationResult, error) {
	return DispatchWithResult[brokercommand.AcquireTokenMessage, core.AuthenticationResult](ctx, brokercommand.AcquireTokenMessage{Request: req})
}

func AcquireTokenSilent(ctx context.Context, req core.AcquireTokenRequest) (core.AuthenticationResult, error) {
	return DispatchWithResult[brokercommand.AcquireTokenSilentMessage, core.AuthenticationResult](ctx, brokercommand.AcquireTokenSilentMessage{Request: req})
}

func LoadAccounts(ctx context.Context, clientID string) ([]core.CacheRecord, error) {
	return Query[brokerquery.LoadAccountsMessage, []core.CacheRecord](ctx, brokerquery.LoadAccountsMessage{ClientID: clientID})
}

func LoadDeviceMode(ctx context.Context) (bool, error) {
	return Query[brokerquery.LoadDeviceModeMessage, bool](ctx, brokerquery.LoadDeviceModeMessage{})
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func messageType(msg any) string {
	if m, ok := msg.(command.Message); ok {
		return m.Type()
	}
	return ""
}

func busDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BrokerErrorInternal)
}

func busValidationError(field string, message string) error {
	return goerrors.NewValidation("gocommand: invalid message", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BrokerErrorBadInput)
}
