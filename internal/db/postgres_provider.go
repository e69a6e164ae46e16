package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tordrt/schemamap/internal/schema"
)

// PostgresProvider reads the PostgreSQL catalog
type PostgresProvider struct {
	client *PostgresClient
	schema string // optional single-schema restriction
}

// NewPostgresProvider creates a new PostgreSQL metadata provider
func NewPostgresProvider(client *PostgresClient, schemaName string) *PostgresProvider {
	return &PostgresProvider{
		client: client,
		schema: schemaName,
	}
}

// Client returns the underlying client
func (p *PostgresProvider) Client() *PostgresClient { return p.client }

// Dialect returns the dialect name
func (p *PostgresProvider) Dialect() string { return DialectPostgres }

// Close closes the underlying connection
func (p *PostgresProvider) Close(ctx context.Context) error {
	return p.client.Close(ctx)
}

// ListSchemas returns the configured schema, or every schema that is not
// reserved by the server (pg_* and information_schema)
func (p *PostgresProvider) ListSchemas(ctx context.Context) ([]string, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if p.schema != "" {
		rows, err = p.client.GetConnection().Query(ctx, `
			SELECT schema_name
			FROM information_schema.schemata
			WHERE schema_name = $1
		`, p.schema)
	} else {
		rows, err = p.client.GetConnection().Query(ctx, `
			SELECT schema_name
			FROM information_schema.schemata
			WHERE schema_name NOT LIKE 'pg\_%'
				AND schema_name <> 'information_schema'
			ORDER BY schema_name
		`)
	}
	if err != nil {
		return nil, err
	}

	schemas, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if p.schema != "" && len(schemas) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, p.schema)
	}
	return schemas, nil
}

// ListTables returns tables and views of a schema ordered by name
func (p *PostgresProvider) ListTables(ctx context.Context, schemaName string) ([]schema.TableRef, error) {
	query := `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		ORDER BY table_name
	`

	rows, err := p.client.GetConnection().Query(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.TableRef
	for rows.Next() {
		t := schema.TableRef{Schema: schemaName}
		if err := rows.Scan(&t.Name, &t.Kind); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

// ListColumns returns the columns of a table ordered by position
func (p *PostgresProvider) ListColumns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error) {
	query := `
		SELECT
			column_name,
			data_type,
			character_maximum_length,
			is_nullable,
			column_default,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := p.client.GetConnection().Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.ColumnInfo
	for rows.Next() {
		var col schema.ColumnInfo
		var nullable string

		if err := rows.Scan(&col.Name, &col.DataType, &col.MaxLength, &nullable, &col.Default, &col.OrdinalPosition); err != nil {
			return nil, err
		}

		col.Nullable = (nullable == "YES")
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// ListConstraints returns one row per constraint column. Multi-column foreign
// keys pair each column with its referenced column by position.
func (p *PostgresProvider) ListConstraints(ctx context.Context, schemaName, table string) ([]schema.ConstraintInfo, error) {
	query := `
		SELECT
			con.conname,
			CASE con.contype
				WHEN 'p' THEN $3::text
				WHEN 'u' THEN $4::text
				WHEN 'f' THEN $5::text
				WHEN 'c' THEN $6::text
				WHEN 'x' THEN 'EXCLUDE'
				WHEN 'n' THEN 'NOT NULL'
				ELSE con.contype::text
			END AS constraint_type,
			a.attname,
			fn.nspname,
			fcl.relname,
			fa.attname
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		LEFT JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord) ON true
		LEFT JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		LEFT JOIN pg_class fcl ON fcl.oid = con.confrelid
		LEFT JOIN pg_namespace fn ON fn.oid = fcl.relnamespace
		LEFT JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
		WHERE n.nspname = $1 AND cl.relname = $2
		ORDER BY constraint_type, con.conname, k.ord
	`

	rows, err := p.client.GetConnection().Query(ctx, query, schemaName, table,
		schema.ConstraintPrimaryKey, schema.ConstraintUnique, schema.ConstraintForeignKey, schema.ConstraintCheck)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var constraints []schema.ConstraintInfo
	for rows.Next() {
		var c schema.ConstraintInfo
		if err := rows.Scan(&c.Name, &c.Type, &c.ColumnName, &c.ReferencedSchema, &c.ReferencedTable, &c.ReferencedColumn); err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}

	return constraints, rows.Err()
}

// ListIndexes returns index definitions as rendered by pg_indexes
func (p *PostgresProvider) ListIndexes(ctx context.Context, schemaName, table string) ([]schema.IndexInfo, error) {
	query := `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = $1 AND tablename = $2
		ORDER BY indexname
	`

	rows, err := p.client.GetConnection().Query(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.IndexInfo
	for rows.Next() {
		var idx schema.IndexInfo
		if err := rows.Scan(&idx.Name, &idx.Definition); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

// RowCount returns the planner's row estimate from pg_class.reltuples.
// Tables that were never vacuumed or analyzed report -1 and are not available.
func (p *PostgresProvider) RowCount(ctx context.Context, schemaName, table string) (int64, error) {
	query := `
		SELECT c.reltuples::bigint
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`

	var count int64
	err := p.client.GetConnection().QueryRow(ctx, query, schemaName, table).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotAvailable
		}
		return 0, err
	}
	if count < 0 {
		return 0, ErrNotAvailable
	}
	return count, nil
}

// TableSize returns the total relation size (heap, indexes, toast) in pg_size_pretty form
func (p *PostgresProvider) TableSize(ctx context.Context, schemaName, table string) (string, error) {
	query := `
		SELECT pg_size_pretty(pg_total_relation_size(c.oid))
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`

	var size *string
	err := p.client.GetConnection().QueryRow(ctx, query, schemaName, table).Scan(&size)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotAvailable
		}
		return "", err
	}
	if size == nil {
		return "", ErrNotAvailable
	}
	return *size, nil
}

// ListForeignKeys returns the declared foreign keys of a schema
func (p *PostgresProvider) ListForeignKeys(ctx context.Context, schemaName string) ([]schema.ForeignKeyEdge, error) {
	query := `
		SELECT
			cl.relname,
			a.attname,
			fcl.relname,
			fa.attname,
			con.conname
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		JOIN pg_class fcl ON fcl.oid = con.confrelid
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
		WHERE con.contype = 'f' AND n.nspname = $1
		ORDER BY cl.relname, con.conname, k.ord
	`

	rows, err := p.client.GetConnection().Query(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []schema.ForeignKeyEdge
	for rows.Next() {
		var e schema.ForeignKeyEdge
		if err := rows.Scan(&e.Table, &e.Column, &e.ForeignTable, &e.ForeignColumn, &e.ConstraintName); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}

// ListKeyColumns returns every column of the schema named like <noun>_id
func (p *PostgresProvider) ListKeyColumns(ctx context.Context, schemaName string) ([]schema.ColumnRef, error) {
	query := `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1
			AND column_name LIKE '%\_id'
			AND column_name <> 'id'
		ORDER BY table_name, column_name
	`

	rows, err := p.client.GetConnection().Query(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.ColumnRef
	for rows.Next() {
		var c schema.ColumnRef
		if err := rows.Scan(&c.Table, &c.Column, &c.DataType); err != nil {
			return nil, err
		}
		if hasKeySuffix(c.Column) {
			columns = append(columns, c)
		}
	}

	return columns, rows.Err()
}
