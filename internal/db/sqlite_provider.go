package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tordrt/schemamap/internal/schema"
)

// charLength extracts the declared length of character types, e.g. VARCHAR(255)
var charLength = regexp.MustCompile(`(?i)char[a-z ]*\(\s*(\d+)\s*\)`)

// SQLiteProvider reads the SQLite catalog through the pragma table-valued
// functions. Attached databases are reported as schemas.
//
// SQLite has no named constraints, so names are synthesized: <table>_pkey for
// the primary key and fk_<table>_<id> for foreign keys.
type SQLiteProvider struct {
	client *SQLiteClient
	schema string
}

// NewSQLiteProvider creates a new SQLite metadata provider
func NewSQLiteProvider(client *SQLiteClient, schemaName string) *SQLiteProvider {
	return &SQLiteProvider{
		client: client,
		schema: schemaName,
	}
}

// Dialect returns the dialect name
func (p *SQLiteProvider) Dialect() string { return DialectSQLite }

// Close closes the underlying connection
func (p *SQLiteProvider) Close(context.Context) error {
	return p.client.Close()
}

// ListSchemas returns "main" plus any attached databases, or only the
// configured one after checking that it is attached
func (p *SQLiteProvider) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := p.client.GetDB().QueryContext(ctx, `
		SELECT name
		FROM pragma_database_list
		WHERE name <> 'temp'
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}

	schemas, err := collectStrings(rows)
	if err != nil {
		return nil, err
	}
	if p.schema == "" {
		return schemas, nil
	}
	for _, s := range schemas {
		if s == p.schema {
			return []string{s}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, p.schema)
}

// ListTables returns tables and views of a schema ordered by name,
// skipping the sqlite_ internal tables
func (p *SQLiteProvider) ListTables(ctx context.Context, schemaName string) ([]schema.TableRef, error) {
	query := `
		SELECT name, type
		FROM pragma_table_list
		WHERE schema = :schema
			AND type IN ('table', 'view')
			AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, sql.Named("schema", schemaName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.TableRef
	for rows.Next() {
		var kind string
		t := schema.TableRef{Schema: schemaName}
		if err := rows.Scan(&t.Name, &kind); err != nil {
			return nil, err
		}
		t.Kind = schema.KindBaseTable
		if kind == "view" {
			t.Kind = schema.KindView
		}
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

// ListColumns returns the columns of a table ordered by position
func (p *SQLiteProvider) ListColumns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error) {
	query := `
		SELECT cid, name, type, "notnull", dflt_value
		FROM pragma_table_info(:table, :schema)
		ORDER BY cid
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query,
		sql.Named("table", table), sql.Named("schema", schemaName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.ColumnInfo
	for rows.Next() {
		var cid, notNull int
		var col schema.ColumnInfo
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &col.Name, &col.DataType, &notNull, &defaultValue); err != nil {
			return nil, err
		}

		col.OrdinalPosition = cid + 1
		col.Nullable = notNull == 0
		col.Default = nullStringPtr(defaultValue)
		col.MaxLength = declaredLength(col.DataType)

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// declaredLength returns n for character types declared as TYPE(n)
func declaredLength(dataType string) *int64 {
	m := charLength.FindStringSubmatch(dataType)
	if m == nil {
		return nil
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// ListConstraints derives primary key, foreign key and unique constraints
// from table_info, foreign_key_list and the origin of unique indexes
func (p *SQLiteProvider) ListConstraints(ctx context.Context, schemaName, table string) ([]schema.ConstraintInfo, error) {
	query := `
		SELECT constraint_name, constraint_type, column_name,
			referenced_schema, referenced_table, referenced_column
		FROM (
			SELECT
				:table || '_pkey' AS constraint_name,
				:primary_key AS constraint_type,
				name AS column_name,
				NULL AS referenced_schema,
				NULL AS referenced_table,
				NULL AS referenced_column,
				pk AS ord
			FROM pragma_table_info(:table, :schema)
			WHERE pk > 0
			UNION ALL
			SELECT
				'fk_' || :table || '_' || id,
				:foreign_key,
				"from",
				:schema,
				"table",
				"to",
				seq
			FROM pragma_foreign_key_list(:table, :schema)
			UNION ALL
			SELECT
				il.name,
				:unique,
				ii.name,
				NULL,
				NULL,
				NULL,
				ii.seqno
			FROM pragma_index_list(:table, :schema) AS il
			JOIN pragma_index_info(il.name, :schema) AS ii
			WHERE il.origin = 'u'
		)
		ORDER BY constraint_type, constraint_name, ord
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query,
		sql.Named("table", table), sql.Named("schema", schemaName),
		sql.Named("primary_key", schema.ConstraintPrimaryKey),
		sql.Named("foreign_key", schema.ConstraintForeignKey),
		sql.Named("unique", schema.ConstraintUnique))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConstraints(rows)
}

// ListIndexes renders each index as "INDEX name ON table (col,...)". The
// automatic indexes backing PRIMARY KEY and UNIQUE are skipped.
func (p *SQLiteProvider) ListIndexes(ctx context.Context, schemaName, table string) ([]schema.IndexInfo, error) {
	query := `
		SELECT
			il.name,
			'INDEX ' || il.name || ' ON ' || :table || ' (' ||
				IFNULL(group_concat(ii.name, ',' ORDER BY ii.seqno), '') || ')'
		FROM pragma_index_list(:table, :schema) AS il
		LEFT JOIN pragma_index_info(il.name, :schema) AS ii
		WHERE il.name NOT LIKE 'sqlite\_autoindex%' ESCAPE '\'
		GROUP BY il.name
		ORDER BY il.name
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query,
		sql.Named("table", table), sql.Named("schema", schemaName))
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

// RowCount runs an exact COUNT(*). SQLite keeps no row estimate, so the
// table name has to be interpolated; it must be one ListTables returned.
func (p *SQLiteProvider) RowCount(ctx context.Context, schemaName, table string) (int64, error) {
	if err := p.checkTable(ctx, schemaName, table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", quoteIdent(schemaName), quoteIdent(table))

	var count int64
	if err := p.client.GetDB().QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TableSize sums the pages of the table and its indexes from the dbstat
// virtual table. Builds without dbstat report ErrNotAvailable.
func (p *SQLiteProvider) TableSize(ctx context.Context, schemaName, table string) (string, error) {
	query := `
		SELECT SUM(pgsize)
		FROM dbstat(:schema)
		WHERE name = :table
			OR name IN (SELECT name FROM pragma_index_list(:table, :schema))
	`

	var size sql.NullInt64
	err := p.client.GetDB().QueryRowContext(ctx, query,
		sql.Named("table", table), sql.Named("schema", schemaName)).Scan(&size)
	if err != nil {
		if strings.Contains(err.Error(), "dbstat") {
			return "", fmt.Errorf("%w: %v", ErrNotAvailable, err)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotAvailable
		}
		return "", err
	}
	if !size.Valid {
		return "", ErrNotAvailable
	}
	return formatMB(size.Int64), nil
}

// ListForeignKeys returns the declared foreign keys of a schema
func (p *SQLiteProvider) ListForeignKeys(ctx context.Context, schemaName string) ([]schema.ForeignKeyEdge, error) {
	query := `
		SELECT
			t.name,
			fk."from",
			fk."table",
			fk."to",
			'fk_' || t.name || '_' || fk.id
		FROM pragma_table_list AS t
		JOIN pragma_foreign_key_list(t.name, t.schema) AS fk
		WHERE t.schema = :schema
			AND t.type = 'table'
			AND t.name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY t.name, fk.id, fk.seq
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, sql.Named("schema", schemaName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanForeignKeys(rows)
}

// ListKeyColumns returns every column of the schema named like <noun>_id
func (p *SQLiteProvider) ListKeyColumns(ctx context.Context, schemaName string) ([]schema.ColumnRef, error) {
	query := `
		SELECT t.name, c.name, c.type
		FROM pragma_table_list AS t
		JOIN pragma_table_info(t.name, t.schema) AS c
		WHERE t.schema = :schema
			AND t.type IN ('table', 'view')
			AND t.name NOT LIKE 'sqlite\_%' ESCAPE '\'
			AND c.name LIKE '%\_id' ESCAPE '\'
		ORDER BY t.name, c.name
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, sql.Named("schema", schemaName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanKeyColumns(rows)
}

// checkTable rejects identifiers that are not tables of the schema
func (p *SQLiteProvider) checkTable(ctx context.Context, schemaName, table string) error {
	tables, err := p.ListTables(ctx, schemaName)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t.Name == table {
			return nil
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrUnknownIdentifier, schemaName, table)
}

// quoteIdent wraps an identifier in double quotes, doubling embedded quotes
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// formatMB renders a byte count the way the MySQL and SQL Server catalogs do
func formatMB(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/1024/1024)
}
