package broker

import (
	"fmt"

	brokercommand "github.com/goliatone/go-broker/command"
	brokerquery "github.com/goliatone/go-broker/query"
)

// CommandQueryService is the client surface the facade wraps. *Client
// satisfies it.
type CommandQueryService interface {
	brokercommand.TokenService
	brokerquery.AccountReader
	brokerquery.DeviceModeReader
}

type Commands struct {
	Hello              *brokercommand.HelloCommand
	AcquireToken       *brokercommand.AcquireTokenCommand
	AcquireTokenSilent *brokercommand.AcquireTokenSilentCommand
}

type Queries struct {
	LoadAccounts   *brokerquery.LoadAccountsQuery
	LoadDeviceMode *brokerquery.LoadDeviceModeQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	accounts   brokerquery.AccountReader
	deviceMode brokerquery.DeviceModeReader
}

// WithAccountReader serves account queries from reader instead of the
// service, e.g. a local cache store.
func WithAccountReader(reader brokerquery.AccountReader) FacadeOption {
	return func(options *facadeOptions) {
		options.accounts = reader
	}
}

func WithDeviceModeReader(reader brokerquery.DeviceModeReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deviceMode = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("broker: command/query service is required")
	}
	cfg := facadeOptions{accounts: service, deviceMode: service}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.accounts == nil {
		cfg.accounts = service
	}
	if cfg.deviceMode == nil {
		cfg.deviceMode = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Hello:              brokercommand.NewHelloCommand(service),
		AcquireToken:       brokercommand.NewAcquireTokenCommand(service),
		AcquireTokenSilent: brokercommand.NewAcquireTokenSilentCommand(service),
	}
	facade.queries = Queries{
		LoadAccounts:   brokerquery.NewLoadAccountsQuery(cfg.accounts),
		LoadDeviceMode: brokerquery.NewLoadDeviceModeQuery(cfg.deviceMode),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Client)(nil)
