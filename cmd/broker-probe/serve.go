package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	broker "github.com/goliatone/go-broker"
	"github.com/goliatone/go-broker/core"
	sqlstore "github.com/goliatone/go-broker/store/sql"
	"github.com/goliatone/go-broker/transport"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	driver          string
	dsn             string
	legacy          bool
	sharedDevice    bool
	protocolVersion string
	seedAccount     string
	seedClientID    string
}

func newServeFakeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Serve a broker backed by a SQL token cache",
		Long: `serve-fake listens on the configured socket and answers broker requests
from the records in a SQL cache store. It never talks to an identity
provider: interactive requests fail with interaction required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeFake(ctx, cmd, root, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.driver, "driver", sqlstore.DriverSQLite, "store driver: sqlite3 or postgres")
	flags.StringVar(&opts.dsn, "dsn", "", "store DSN (default: in-memory sqlite)")
	flags.BoolVar(&opts.legacy, "legacy", false, "ignore hello requests like brokers that predate the handshake")
	flags.BoolVar(&opts.sharedDevice, "shared-device", false, "report shared device mode")
	flags.StringVar(&opts.protocolVersion, "protocol-version", "", "highest protocol version to answer with")
	flags.StringVar(&opts.seedAccount, "seed-account", "", "seed demo records for this home account id")
	flags.StringVar(&opts.seedClientID, "seed-client-id", "broker-probe", "client id used for seeded tokens")
	return cmd
}

func runServeFake(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	loggers := root.loggers()
	client, err := root.client(loggers)
	if err != nil {
		return err
	}
	cfg := client.Config()

	dsn := strings.TrimSpace(opts.dsn)
	if dsn == "" {
		dsn = fmt.Sprintf("file:broker-probe-%d?mode=memory&cache=shared", time.Now().UnixNano())
	}
	dbConfig := sqlstore.DatabaseConfig{Driver: opts.driver, DSN: dsn, PingTimeout: 5 * time.Second}
	persistence, err := sqlstore.OpenPersistence(dbConfig)
	if err != nil {
		return err
	}
	defer func() {
		_ = persistence.Close()
	}()
	if err := sqlstore.Migrate(ctx, persistence, dbConfig.Driver); err != nil {
		return err
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(persistence)
	if err != nil {
		return err
	}
	store, err := factory.CachedCacheStore(cfg.Cache)
	if err != nil {
		return err
	}
	if account := strings.TrimSpace(opts.seedAccount); account != "" {
		if err := store.SaveRecords(ctx, seedRecords(account, opts.seedClientID, time.Now())...); err != nil {
			return err
		}
		loggers.Store.Info("seeded demo records", "home_account_id", account)
	}

	responder, err := broker.NewResponder(
		core.NewCacheBackend(store, core.WithSharedDevice(opts.sharedDevice)),
		core.WithResponderLogger(loggers.Client),
		core.WithBrokerProtocolVersion(opts.protocolVersion),
		core.WithLegacyHello(opts.legacy),
	)
	if err != nil {
		return err
	}

	server := transport.NewSocketServer(cfg.Transport.SocketPath, responder.Handle, loggers.Transport, cfg.Transport.MaxFrameBytes)
	go func() {
		select {
		case <-server.Ready():
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", cfg.Transport.SocketPath)
		case <-ctx.Done():
		}
	}()
	return server.Serve(ctx)
}

// seedRecords builds an account with tokens valid for one hour.
func seedRecords(homeAccountID, clientID string, now time.Time) []core.CacheRecord {
	realm := homeAccountID
	if _, tenant, ok := strings.Cut(homeAccountID, "."); ok && tenant != "" {
		realm = tenant
	}
	header := core.RecordHeader{
		HomeAccountID: homeAccountID,
		Environment:   "login.example.com",
		Realm:         realm,
	}
	return []core.CacheRecord{
		core.AccountRecord{
			RecordHeader:   header,
			LocalAccountID: homeAccountID,
			Username:       homeAccountID + "@example.com",
			AuthorityType:  "MSSTS",
		},
		core.AccessTokenRecord{
			RecordHeader: header,
			ClientID:     clientID,
			Secret:       "fake-access-token",
			Target:       "openid profile",
			TokenType:    "Bearer",
			CachedAt:     fmt.Sprint(now.Unix()),
			ExpiresOn:    fmt.Sprint(now.Add(time.Hour).Unix()),
		},
		core.RefreshTokenRecord{
			RecordHeader: header,
			ClientID:     clientID,
			Secret:       "fake-refresh-token",
		},
	}
}
