package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tordrt/schemamap/internal/schema"
)

var (
	// ErrUnsupportedDatabase is returned by Open for an unknown database type
	ErrUnsupportedDatabase = errors.New("unsupported database type")

	// ErrSchemaNotFound is returned by ListSchemas when the configured schema does not exist
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrNotAvailable means the catalog had no value for a row count or size lookup
	ErrNotAvailable = schema.ErrNotAvailable

	// ErrUnknownIdentifier means an identifier was rejected before being interpolated into SQL
	ErrUnknownIdentifier = errors.New("unknown identifier")
)

// Dialect names accepted by Open after alias resolution
const (
	DialectPostgres  = "postgres"
	DialectMySQL     = "mysql"
	DialectSQLServer = "sqlserver"
	DialectSQLite    = "sqlite"
)

var dialectAliases = map[string]string{
	"postgres":   DialectPostgres,
	"postgresql": DialectPostgres,
	"mysql":      DialectMySQL,
	"sqlserver":  DialectSQLServer,
	"mssql":      DialectSQLServer,
	"sqlite":     DialectSQLite,
	"sqlite3":    DialectSQLite,
}

// DefaultPort returns the default TCP port for a dialect, or 0 if it has none
func DefaultPort(dialect string) int {
	switch dialect {
	case DialectPostgres:
		return 5432
	case DialectMySQL:
		return 3306
	case DialectSQLServer:
		return 1433
	default:
		return 0
	}
}

// ParseDialect resolves a configured database type (case-insensitive, aliases allowed)
func ParseDialect(dbType string) (string, error) {
	dialect, ok := dialectAliases[strings.ToLower(strings.TrimSpace(dbType))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDatabase, dbType)
	}
	return dialect, nil
}

// ConnConfig describes how to reach the database
type ConnConfig struct {
	Type     string
	Host     string
	Port     int
	Database string // file path for SQLite
	User     string
	Password string
	// Schema restricts the run to a single schema when set
	Schema string
	// Timeout is applied as a statement timeout where the dialect supports it (PostgreSQL)
	Timeout time.Duration
}

// Provider exposes the catalog of one database in the canonical shapes of
// package schema. Implementations never return driver rows.
//
// Per-table lookups return an error instead of swallowing it; callers decide
// whether a failure is fatal. RowCount and TableSize return ErrNotAvailable
// when the catalog has no value for the table.
type Provider interface {
	Dialect() string
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schemaName string) ([]schema.TableRef, error)
	ListColumns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error)
	ListConstraints(ctx context.Context, schemaName, table string) ([]schema.ConstraintInfo, error)
	ListIndexes(ctx context.Context, schemaName, table string) ([]schema.IndexInfo, error)
	RowCount(ctx context.Context, schemaName, table string) (int64, error)
	TableSize(ctx context.Context, schemaName, table string) (string, error)
	// ListForeignKeys returns declared foreign keys of the schema, ordered by
	// table then column order within the constraint.
	ListForeignKeys(ctx context.Context, schemaName string) ([]schema.ForeignKeyEdge, error)
	// ListKeyColumns returns columns whose name ends in _id, excluding "id".
	ListKeyColumns(ctx context.Context, schemaName string) ([]schema.ColumnRef, error)
	Close(ctx context.Context) error
}

var (
	_ Provider = (*PostgresProvider)(nil)
	_ Provider = (*MySQLProvider)(nil)
	_ Provider = (*SQLServerProvider)(nil)
	_ Provider = (*SQLiteProvider)(nil)
)

// Open connects to the database described by cfg and returns the provider for its dialect
func Open(ctx context.Context, cfg ConnConfig) (Provider, error) {
	dialect, err := ParseDialect(cfg.Type)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		pgConfig, err := postgresConnConfig(cfg)
		if err != nil {
			return nil, err
		}
		client, err := NewPostgresClient(ctx, pgConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return NewPostgresProvider(client, cfg.Schema), nil
	case DialectMySQL:
		client, err := NewMySQLClient(ctx, mysqlDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		return NewMySQLProvider(client, cfg.Database, cfg.Schema), nil
	case DialectSQLServer:
		client, err := NewSQLServerClient(ctx, sqlServerDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQL Server: %w", err)
		}
		return NewSQLServerProvider(client, cfg.Schema), nil
	case DialectSQLite:
		client, err := NewSQLiteClient(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
		return NewSQLiteProvider(client, cfg.Schema), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabase, cfg.Type)
	}
}

// hasKeySuffix filters catalog LIKE matches down to real <noun>_id columns;
// LIKE patterns are case-insensitive on some collations.
func hasKeySuffix(column string) bool {
	return column != "id" && strings.HasSuffix(column, "_id")
}
