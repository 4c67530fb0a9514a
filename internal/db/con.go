package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	// Postgres driver.
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	// SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/fr0stylo/synclink/internal/db/queries"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Dialect names the SQL engine behind a Database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Database wraps sqlc queries with the shared connection.
type Database struct {
	*queries.Queries
	db      *sql.DB
	dialect Dialect
	stats   *queryStats
}

// New opens the database described by dsn and applies migrations.
// postgres:// and postgresql:// DSNs use Postgres; anything else is a SQLite path.
func New(dsn string, openParams ...string) (*Database, error) {
	dialect, driverName, source := resolveDSN(dsn, openParams...)

	conn, err := sql.Open(driverName, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY under concurrent tasks.
		conn.SetMaxOpenConns(1)
	}

	if err := migrate(conn, dialect); err != nil {
		_ = conn.Close()
		return nil, err
	}

	stats := newQueryStats()
	wrapped := newInstrumentedDBTX(conn, stats, dialect)

	return &Database{db: conn, Queries: queries.New(wrapped), dialect: dialect, stats: stats}, nil
}

func migrate(conn *sql.DB, dialect Dialect) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	gooseDialect := goose.DialectSQLite3
	if dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}
	provider, err := goose.NewProvider(gooseDialect, conn, migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func resolveDSN(dsn string, openParams ...string) (Dialect, string, string) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, "postgres", dsn
	case strings.HasPrefix(lower, "sqlite://"):
		dsn = dsn[len("sqlite://"):]
	}
	if dsn == "" {
		dsn = "data/synclink"
	}
	return DialectSQLite, "sqlite", sqliteDSN(dsn, openParams...)
}

func sqliteDSN(path string, openParams ...string) string {
	values := url.Values{}
	values.Set("_fk", "1")

	values.Add("_pragma", "foreign_keys(ON)")
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "synchronous(NORMAL)")
	values.Add("_pragma", "busy_timeout(5000)")
	values.Add("_pragma", "temp_store(MEMORY)")

	for _, param := range openParams {
		part := strings.TrimSpace(strings.TrimPrefix(param, "&"))
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		values.Add(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	return fmt.Sprintf("file:%s.sqlite?%s", strings.TrimSuffix(path, ".sqlite"), values.Encode())
}

// Dialect reports the engine in use.
func (c *Database) Dialect() Dialect {
	return c.dialect
}

// Ping checks connectivity.
func (c *Database) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (c *Database) Close() error {
	return c.db.Close()
}
