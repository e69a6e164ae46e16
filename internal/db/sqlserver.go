package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/microsoft/go-mssqldb"
)

// SQLServerClient manages the connection to Microsoft SQL Server
type SQLServerClient struct {
	db *sql.DB
}

// NewSQLServerClient creates a new SQL Server client
func NewSQLServerClient(ctx context.Context, dsn string) (*SQLServerClient, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLServerClient{db: db}, nil
}

// Close closes the database connection
func (c *SQLServerClient) Close() error {
	return c.db.Close()
}

// GetDB returns the underlying database connection
func (c *SQLServerClient) GetDB() *sql.DB {
	return c.db
}

// sqlServerDSN renders the connection settings as a sqlserver:// URL
func sqlServerDSN(cfg ConnConfig) string {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort(DialectSQLServer)
	}

	query := url.Values{}
	if cfg.Database != "" {
		query.Set("database", cfg.Database)
	}
	query.Set("app name", "schemamap")
	if cfg.Timeout > 0 {
		query.Set("dial timeout", strconv.Itoa(int(cfg.Timeout.Seconds())))
	}

	u := url.URL{
		Scheme:   "sqlserver",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		RawQuery: query.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}
