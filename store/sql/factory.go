package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-broker/core"
	"github.com/goliatone/go-broker/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	defaultPingTimeout = 5 * time.Second
)

// DatabaseConfig satisfies the go-persistence-bun client config.
type DatabaseConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c DatabaseConfig) GetDebug() bool {
	return c.Debug
}

func (c DatabaseConfig) GetDriver() string {
	return normalizeDriver(c.Driver)
}

func (c DatabaseConfig) GetServer() string {
	return strings.TrimSpace(c.DSN)
}

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string {
	return "go-broker"
}

// OpenPersistence opens the database and wraps it in a persistence client
// using the dialect that matches the driver.
func OpenPersistence(cfg DatabaseConfig) (*persistence.Client, error) {
	driver := cfg.GetDriver()
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if cfg.GetServer() == "" {
		return nil, fmt.Errorf("sqlstore: database dsn is required")
	}
	sqlDB, err := sql.Open(driver, cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqlitedialect.New(), nil
	case DriverPostgres:
		return pgdialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

func normalizeDriver(driver string) string {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	default:
		return strings.TrimSpace(strings.ToLower(driver))
	}
}

// RepositoryFactory builds the cache record stores from a persistence client
// or a bun db.
type RepositoryFactory struct {
	db *bun.DB

	cacheRecordStore *CacheRecordStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.cacheRecordStore != nil {
		return nil
	}
	store, err := NewCacheRecordStore(f.db)
	if err != nil {
		return err
	}
	f.cacheRecordStore = store
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) CacheRecordStore() *CacheRecordStore {
	if f == nil {
		return nil
	}
	return f.cacheRecordStore
}

// CachedCacheStore wraps the SQL store in a read cache whose TTL comes from
// the cache section of the client config.
func (f *RepositoryFactory) CachedCacheStore(cfg core.CacheConfig) (*CachedCacheRecordStore, error) {
	if f == nil || f.cacheRecordStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not built")
	}
	cacheConfig := repositorycache.DefaultConfig()
	if cfg.TTLSeconds > 0 {
		cacheConfig.TTL = time.Duration(cfg.TTLSeconds) * time.Second
	}
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: new cache service: %w", err)
	}
	return NewCachedCacheRecordStore(f.cacheRecordStore, cacheService)
}

// Migrate registers the embedded migrations for the driver's dialect and
// applies them.
func Migrate(ctx context.Context, client *persistence.Client, driver string) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	target := migrations.DialectSQLite
	if normalizeDriver(driver) == DriverPostgres {
		target = migrations.DialectPostgres
	}
	err := migrations.Register(ctx, func(_ context.Context, schema migrations.Schema) error {
		client.RegisterSQLMigrations(schema.FS)
		return nil
	}, target)
	if err != nil {
		return err
	}
	return client.Migrate(ctx)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
