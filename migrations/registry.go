package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	broker "github.com/goliatone/go-broker"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// schemaRoot is where the cache record schema lives in the embedded tree.
// Postgres files sit at the root, sqlite variants in a subdirectory.
const schemaRoot = "data/sql/migrations"

// Schema is the migration set for one dialect.
type Schema struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc hands one dialect's migrations to a runner.
type RegisterFunc func(ctx context.Context, schema Schema) error

// ForDialect returns the embedded migrations for dialect. The set must carry
// at least one *.up.sql file.
func ForDialect(dialect string) (Schema, error) {
	return schemaFor(broker.GetMigrationsFS(), dialect)
}

// Register passes the schema of every requested dialect to registerFn, in
// the order given. No dialects means postgres then sqlite.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	if len(dialects) == 0 {
		dialects = []string{DialectPostgres, DialectSQLite}
	}
	root := broker.GetMigrationsFS()
	for _, dialect := range dialects {
		schema, err := schemaFor(root, dialect)
		if err != nil {
			return err
		}
		if err := registerFn(ctx, schema); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", schema.Dialect, schema.Path, err)
		}
	}
	return nil
}

func schemaFor(root fs.FS, dialect string) (Schema, error) {
	normalized := strings.ToLower(strings.TrimSpace(dialect))
	path := schemaRoot
	switch normalized {
	case DialectPostgres:
	case DialectSQLite:
		path = schemaRoot + "/sqlite"
	default:
		return Schema{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}

	sub, err := fs.Sub(root, path)
	if err != nil {
		return Schema{}, fmt.Errorf("migrations: resolve %s filesystem: %w", normalized, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return Schema{}, fmt.Errorf("migrations: glob %s: %w", path, err)
	}
	if len(matches) == 0 {
		return Schema{}, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", normalized, path)
	}
	return Schema{Dialect: normalized, Path: path, FS: sub}, nil
}
