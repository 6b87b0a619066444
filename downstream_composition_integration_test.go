package broker_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	broker "github.com/goliatone/go-broker"
	brokercommand "github.com/goliatone/go-broker/command"
	"github.com/goliatone/go-broker/core"
	brokerquery "github.com/goliatone/go-broker/query"
	sqlstore "github.com/goliatone/go-broker/store/sql"
	"github.com/goliatone/go-broker/transport"
	gocmd "github.com/goliatone/go-command"
)

func TestDownstreamComposition_SocketBrokerBackedBySQLStore(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	dsn := fmt.Sprintf("file:broker-compose-%d?mode=memory&cache=shared", time.Now().UnixNano())
	dbConfig := sqlstore.DatabaseConfig{Driver: sqlstore.DriverSQLite, DSN: dsn, PingTimeout: time.Second}
	client, err := sqlstore.OpenPersistence(dbConfig)
	if err != nil {
		t.Fatalf("open persistence: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := sqlstore.Migrate(ctx, client, dbConfig.Driver); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("repository factory: %v", err)
	}
	store, err := factory.CachedCacheStore(core.CacheConfig{TTLSeconds: 30})
	if err != nil {
		t.Fatalf("cached store: %v", err)
	}
	if err := store.SaveRecords(ctx, composedRecords("uid.utid", now.Unix()+3600)...); err != nil {
		t.Fatalf("seed records: %v", err)
	}

	responder, err := broker.NewResponder(core.NewCacheBackend(store,
		core.WithSharedDevice(true),
		core.WithClock(func() time.Time { return now }),
	))
	if err != nil {
		t.Fatalf("new responder: %v", err)
	}
	socketPath := serveBroker(t, responder.Handle)

	cfg := broker.DefaultConfig()
	cfg.Transport.SocketPath = socketPath
	cfg.Timeouts.ConnectMS = 2000
	brokerClient, err := broker.Setup(cfg)
	if err != nil {
		t.Fatalf("setup client: %v", err)
	}
	facade, err := broker.NewFacade(brokerClient)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	negotiation := gocmd.NewResult[core.Negotiation]()
	if err := facade.Commands().Hello.Execute(gocmd.ContextWithResult(ctx, negotiation), brokercommand.HelloMessage{}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	if value, ok := negotiation.Load(); !ok || !value.Supported || value.Version != core.CurrentProtocolVersion {
		t.Fatalf("unexpected negotiation %#v", value)
	}

	tokens := gocmd.NewResult[core.AuthenticationResult]()
	if err := facade.Commands().AcquireTokenSilent.Execute(gocmd.ContextWithResult(ctx, tokens), brokercommand.AcquireTokenSilentMessage{
		Request: core.AcquireTokenRequest{
			ClientID:      "client-1",
			Scopes:        []string{"user.read"},
			HomeAccountID: "uid.utid",
		},
	}); err != nil {
		t.Fatalf("silent token: %v", err)
	}
	result, ok := tokens.Load()
	if !ok || result.AccessToken != "composed-access-token" {
		t.Fatalf("unexpected token result %#v", result)
	}
	if result.HomeAccountID != "uid.utid" || len(result.TenantProfiles) == 0 {
		t.Fatalf("expected account bound result, got %#v", result)
	}

	accounts, err := facade.Queries().LoadAccounts.Query(ctx, brokerquery.LoadAccountsMessage{ClientID: "client-1"})
	if err != nil {
		t.Fatalf("load accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].(core.AccountRecord).Username != "uid.utid@example.com" {
		t.Fatalf("unexpected accounts %#v", accounts)
	}

	shared, err := facade.Queries().LoadDeviceMode.Query(ctx, brokerquery.LoadDeviceModeMessage{})
	if err != nil {
		t.Fatalf("load device mode: %v", err)
	}
	if !shared {
		t.Fatalf("expected shared device mode")
	}
}

func TestDownstreamComposition_DisabledTransportRejectsConnect(t *testing.T) {
	cfg := broker.DefaultConfig()
	cfg.Transport.Kind = transport.KindNone
	client, err := broker.Setup(cfg)
	if err != nil {
		t.Fatalf("setup client: %v", err)
	}
	if _, err := client.Hello(context.Background()); !core.IsKind(err, core.KindConnectionRejected) {
		t.Fatalf("expected connection rejected, got %v", err)
	}
}

func TestDownstreamComposition_UnknownTransportKindFailsSetup(t *testing.T) {
	cfg := broker.DefaultConfig()
	cfg.Transport.Kind = "carrier-pigeon"
	if _, err := broker.Setup(cfg); err == nil {
		t.Fatalf("expected setup error for unknown transport kind")
	}
}

func TestDownstreamComposition_ExtensionTransportPack(t *testing.T) {
	responder, err := broker.NewResponder(core.NewCacheBackend(staticStore{}))
	if err != nil {
		t.Fatalf("new responder: %v", err)
	}
	hooks := broker.NewExtensionHooks()
	if err := hooks.RegisterTransportPack(broker.TransportPack{
		Name: "in-process",
		Transports: map[string]transport.Factory{
			"memory": func(core.TransportConfig, core.Logger) (core.Transport, error) {
				return transport.NewMemoryTransport(responder.Handle), nil
			},
		},
	}); err != nil {
		t.Fatalf("register transport pack: %v", err)
	}
	registry, err := hooks.TransportRegistry()
	if err != nil {
		t.Fatalf("transport registry: %v", err)
	}

	cfg := broker.DefaultConfig()
	cfg.Transport.Kind = "memory"
	client, err := broker.SetupWithRegistry(cfg, registry)
	if err != nil {
		t.Fatalf("setup client: %v", err)
	}
	shared, err := client.GetDeviceMode(context.Background())
	if err != nil {
		t.Fatalf("device mode: %v", err)
	}
	if shared {
		t.Fatalf("expected non-shared device mode")
	}
}

func serveBroker(t *testing.T, handler transport.FrameHandler) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "broker-compose-*")
	if err != nil {
		t.Fatalf("create socket directory: %v", err)
	}
	socketPath := filepath.Join(directory, "broker.sock")
	server := transport.NewSocketServer(socketPath, handler, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		_ = os.RemoveAll(directory)
	})
	select {
	case <-server.Ready():
	case <-time.After(5 * time.Second):
		t.Fatalf("broker socket did not start")
	}
	return socketPath
}

func composedRecords(homeAccountID string, expiresOn int64) []core.CacheRecord {
	header := core.RecordHeader{
		HomeAccountID: homeAccountID,
		Environment:   "login.example.com",
		Realm:         "utid",
	}
	return []core.CacheRecord{
		core.AccountRecord{
			RecordHeader:   header,
			LocalAccountID: "local-" + homeAccountID,
			Username:       homeAccountID + "@example.com",
			AuthorityType:  "MSSTS",
		},
		core.AccessTokenRecord{
			RecordHeader: header,
			ClientID:     "client-1",
			Secret:       "composed-access-token",
			Target:       "user.read openid",
			TokenType:    "Bearer",
			CachedAt:     "1700000000",
			ExpiresOn:    fmt.Sprint(expiresOn),
		},
		core.RefreshTokenRecord{
			RecordHeader: header,
			ClientID:     "client-1",
			Secret:       "composed-refresh-token",
		},
		core.IDTokenRecord{
			RecordHeader: header,
			ClientID:     "client-1",
			Secret:       "composed-id-token",
		},
	}
}

type staticStore struct{}

func (staticStore) ListRecordsForAccount(context.Context, string) ([]core.CacheRecord, error) {
	return nil, nil
}
