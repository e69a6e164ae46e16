package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tordrt/schemamap/internal/schema"
)

// MySQLProvider reads the MySQL catalog. A MySQL schema is a database.
type MySQLProvider struct {
	client     *MySQLClient
	database   string
	schemaName string
}

// NewMySQLProvider creates a new MySQL metadata provider.
// With no schemaName the connected database is the only schema processed.
func NewMySQLProvider(client *MySQLClient, database, schemaName string) *MySQLProvider {
	return &MySQLProvider{
		client:     client,
		database:   database,
		schemaName: schemaName,
	}
}

// Dialect returns the dialect name
func (p *MySQLProvider) Dialect() string { return DialectMySQL }

// Close closes the underlying connection
func (p *MySQLProvider) Close(context.Context) error {
	return p.client.Close()
}

// ListSchemas returns the configured schema (or connected database) after
// checking that it exists. Without either, every non-system schema is listed.
func (p *MySQLProvider) ListSchemas(ctx context.Context) ([]string, error) {
	want := p.schemaName
	if want == "" {
		want = p.database
	}

	var (
		rows *sql.Rows
		err  error
	)
	if want != "" {
		rows, err = p.client.GetDB().QueryContext(ctx, `
			SELECT SCHEMA_NAME
			FROM information_schema.SCHEMATA
			WHERE SCHEMA_NAME = ?
		`, want)
	} else {
		rows, err = p.client.GetDB().QueryContext(ctx, `
			SELECT SCHEMA_NAME
			FROM information_schema.SCHEMATA
			WHERE SCHEMA_NAME NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
			ORDER BY SCHEMA_NAME
		`)
	}
	if err != nil {
		return nil, err
	}

	schemas, err := collectStrings(rows)
	if err != nil {
		return nil, err
	}
	if want != "" && len(schemas) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, want)
	}
	return schemas, nil
}

// ListTables returns tables and views of a schema ordered by name
func (p *MySQLProvider) ListTables(ctx context.Context, schemaName string) ([]schema.TableRef, error) {
	query := `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName)
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
func (p *MySQLProvider) ListColumns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error) {
	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			CHARACTER_MAXIMUM_LENGTH,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			ORDINAL_POSITION
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.ColumnInfo
	for rows.Next() {
		var col schema.ColumnInfo
		var maxLength sql.NullInt64
		var nullable string
		var defaultVal sql.NullString

		if err := rows.Scan(&col.Name, &col.DataType, &maxLength, &nullable, &defaultVal, &col.OrdinalPosition); err != nil {
			return nil, err
		}

		col.MaxLength = nullInt64Ptr(maxLength)
		col.Nullable = (nullable == "YES")
		col.Default = nullStringPtr(defaultVal)

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// ListConstraints returns one row per constraint column. KEY_COLUMN_USAGE
// carries the referenced columns of foreign keys directly.
func (p *MySQLProvider) ListConstraints(ctx context.Context, schemaName, table string) ([]schema.ConstraintInfo, error) {
	query := `
		SELECT
			tc.CONSTRAINT_NAME,
			tc.CONSTRAINT_TYPE,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_SCHEMA,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME
		FROM information_schema.TABLE_CONSTRAINTS AS tc
		LEFT JOIN information_schema.KEY_COLUMN_USAGE AS kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
			AND tc.TABLE_NAME = kcu.TABLE_NAME
		WHERE tc.TABLE_SCHEMA = ? AND tc.TABLE_NAME = ?
		ORDER BY tc.CONSTRAINT_TYPE, tc.CONSTRAINT_NAME, kcu.ORDINAL_POSITION
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConstraints(rows)
}

// ListIndexes renders each index as "INDEX name ON table (col,...)"
func (p *MySQLProvider) ListIndexes(ctx context.Context, schemaName, table string) ([]schema.IndexInfo, error) {
	query := `
		SELECT
			INDEX_NAME,
			CONCAT('INDEX ', INDEX_NAME, ' ON ', TABLE_NAME, ' (',
				GROUP_CONCAT(COLUMN_NAME ORDER BY SEQ_IN_INDEX), ')')
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		GROUP BY INDEX_NAME, TABLE_NAME
		ORDER BY INDEX_NAME
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.IndexInfo
	for rows.Next() {
		var idx schema.IndexInfo
		var definition sql.NullString
		if err := rows.Scan(&idx.Name, &definition); err != nil {
			return nil, err
		}
		idx.Definition = definition.String
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

// RowCount returns the storage engine's estimate (exact for MyISAM, approximate for InnoDB)
func (p *MySQLProvider) RowCount(ctx context.Context, schemaName, table string) (int64, error) {
	query := `
		SELECT TABLE_ROWS
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	`

	var count sql.NullInt64
	if err := p.client.GetDB().QueryRowContext(ctx, query, schemaName, table).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotAvailable
		}
		return 0, err
	}
	if !count.Valid {
		return 0, ErrNotAvailable
	}
	return count.Int64, nil
}

// TableSize returns data plus index length in MB
func (p *MySQLProvider) TableSize(ctx context.Context, schemaName, table string) (string, error) {
	query := `
		SELECT CONCAT(ROUND((DATA_LENGTH + INDEX_LENGTH) / 1024 / 1024, 2), ' MB')
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	`

	return queryOptionalString(ctx, p.client.GetDB(), query, schemaName, table)
}

// ListForeignKeys returns the declared foreign keys of a schema
func (p *MySQLProvider) ListForeignKeys(ctx context.Context, schemaName string) ([]schema.ForeignKeyEdge, error) {
	query := `
		SELECT
			kcu.TABLE_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME,
			kcu.CONSTRAINT_NAME
		FROM information_schema.TABLE_CONSTRAINTS AS tc
		JOIN information_schema.KEY_COLUMN_USAGE AS kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
			AND tc.TABLE_NAME = kcu.TABLE_NAME
		WHERE tc.CONSTRAINT_TYPE = 'FOREIGN KEY'
			AND tc.TABLE_SCHEMA = ?
		ORDER BY kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanForeignKeys(rows)
}

// ListKeyColumns returns every column of the schema named like <noun>_id
func (p *MySQLProvider) ListKeyColumns(ctx context.Context, schemaName string) ([]schema.ColumnRef, error) {
	query := `
		SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ?
			AND COLUMN_NAME LIKE '%\_id'
			AND COLUMN_NAME <> 'id'
		ORDER BY TABLE_NAME, COLUMN_NAME
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKeyColumns(rows)
}
