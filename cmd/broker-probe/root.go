package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	broker "github.com/goliatone/go-broker"
	"github.com/goliatone/go-broker/adapters/gologger"
	"github.com/goliatone/go-broker/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const version = "0.1.0"

type rootOptions struct {
	configFile     string
	socketPath     string
	connectTimeout time.Duration
	logLevel       string

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:   "broker-probe",
		Short: "Talk to an identity broker over its local socket",
		Long: `broker-probe connects to an identity broker, negotiates the protocol
version and runs single requests against it. serve-fake starts a broker
backed by a SQL token cache for local testing.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file")
	flags.StringVar(&opts.socketPath, "socket", "", "broker socket path (overrides config)")
	flags.DurationVar(&opts.connectTimeout, "connect-timeout", 0, "connect timeout (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: trace, debug, info, warn, error")

	cmd.AddCommand(
		newHelloCommand(opts),
		newAccountsCommand(opts),
		newDeviceModeCommand(opts),
		newTokenCommand(opts),
		newServeFakeCommand(opts),
	)
	return cmd
}

func (o *rootOptions) loggers() gologger.Loggers {
	logger := newLogger(o.stderr, o.logLevel)
	return gologger.ComponentLoggers(logger, logger)
}

// runtimeConfig carries the flag overrides; config file and BROKER_*
// variables are layered beneath it by the client.
func (o *rootOptions) runtimeConfig() broker.Config {
	cfg := broker.Config{}
	if socket := strings.TrimSpace(o.socketPath); socket != "" {
		cfg.Transport.SocketPath = socket
	}
	if o.connectTimeout > 0 {
		cfg.Timeouts.ConnectMS = int(o.connectTimeout / time.Millisecond)
	}
	return cfg
}

func (o *rootOptions) configProvider() core.ConfigProvider {
	return core.NewCfgxConfigProvider(core.LayeredConfigLoader{
		core.YAMLConfigLoader{Path: o.configFile},
		core.EnvConfigLoader{},
	})
}

func (o *rootOptions) client(loggers gologger.Loggers) (*broker.Client, error) {
	return broker.Setup(o.runtimeConfig(),
		broker.WithConfigProvider(o.configProvider()),
		broker.WithLoggerProvider(loggers.Provider),
		broker.WithLogger(loggers.Client),
	)
}

func newHelloCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hello",
		Short: "Negotiate the protocol version with the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(opts.loggers())
			if err != nil {
				return err
			}
			negotiation, err := client.Hello(commandContext(cmd))
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), map[string]any{
				"protocol_version": negotiation.Version,
				"supported":        negotiation.Supported,
			})
		},
	}
}

func newAccountsCommand(opts *rootOptions) *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts known to the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(opts.loggers())
			if err != nil {
				return err
			}
			records, err := client.GetAccounts(commandContext(cmd), clientID)
			if err != nil {
				return err
			}
			accounts := make([]map[string]any, 0, len(records))
			for _, record := range records {
				account, ok := record.(core.AccountRecord)
				if !ok {
					continue
				}
				accounts = append(accounts, map[string]any{
					"home_account_id":  account.HomeAccountID,
					"environment":      account.Environment,
					"realm":            account.Realm,
					"username":         account.Username,
					"local_account_id": account.LocalAccountID,
				})
			}
			return writeYAML(cmd.OutOrStdout(), map[string]any{"accounts": accounts})
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "application client id")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

func newDeviceModeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "device-mode",
		Short: "Report whether the broker runs in shared device mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(opts.loggers())
			if err != nil {
				return err
			}
			shared, err := client.GetDeviceMode(commandContext(cmd))
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), map[string]any{"shared_device": shared})
		},
	}
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		request core.AcquireTokenRequest
		scopes  []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Acquire a token silently for a known account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(opts.loggers())
			if err != nil {
				return err
			}
			request.Scopes = scopes
			result, err := client.AcquireTokenSilent(commandContext(cmd), request)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), tokenSummary(result))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&request.ClientID, "client-id", "", "application client id")
	flags.StringVar(&request.HomeAccountID, "account", "", "home account id")
	flags.StringVar(&request.Authority, "authority", "", "authority URL")
	flags.StringSliceVar(&scopes, "scope", nil, "scope to request (repeatable)")
	flags.BoolVar(&request.ForceRefresh, "force-refresh", false, "skip cached access tokens")
	_ = cmd.MarkFlagRequired("client-id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

// tokenSummary never prints token secrets.
func tokenSummary(result core.AuthenticationResult) map[string]any {
	summary := map[string]any{
		"home_account_id": result.HomeAccountID,
		"username":        result.Username,
		"tenant_id":       result.TenantID,
		"scope":           result.Scope,
		"token_type":      result.TokenType,
		"expires_on":      time.Unix(result.ExpiresOn, 0).UTC().Format(time.RFC3339),
		"has_id_token":    result.IDToken != "",
	}
	if result.IDToken != "" {
		if claims, err := core.ParseIDTokenClaims(result.IDToken); err == nil {
			summary["id_token_subject"] = claims.Subject
		}
	}
	return summary
}

func writeYAML(w io.Writer, value any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("broker-probe: encode output: %w", err)
	}
	return encoder.Close()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var (
	_ glog.Logger         = (*glog.BaseLogger)(nil)
	_ glog.LoggerProvider = (*glog.BaseLogger)(nil)
)
