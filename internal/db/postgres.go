package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

const defaultStatementTimeout = 60 * time.Second

// PostgresClient manages the single connection used for a PostgreSQL run
type PostgresClient struct {
	conn *pgx.Conn
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(ctx context.Context, config *pgx.ConnConfig) (*PostgresClient, error) {
	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{conn: conn}, nil
}

// Close closes the database connection
func (c *PostgresClient) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// GetConnection returns the underlying connection
func (c *PostgresClient) GetConnection() *pgx.Conn {
	return c.conn
}

// postgresConnConfig builds a pgx config for a read-only session with a
// statement timeout.
func postgresConnConfig(cfg ConnConfig) (*pgx.ConnConfig, error) {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort(DialectPostgres)
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}

	config, err := pgx.ParseConfig(u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection settings: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultStatementTimeout
	}

	if config.RuntimeParams == nil {
		config.RuntimeParams = make(map[string]string)
	}
	config.RuntimeParams["default_transaction_read_only"] = "on"
	config.RuntimeParams["statement_timeout"] = strconv.FormatInt(timeout.Milliseconds(), 10)

	return config, nil
}
