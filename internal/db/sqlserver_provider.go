package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tordrt/schemamap/internal/schema"
)

// sqlServerSystemSchemas are built into every SQL Server database
var sqlServerSystemSchemas = []any{
	"sys", "information_schema", "INFORMATION_SCHEMA", "guest",
	"db_owner", "db_accessadmin", "db_securityadmin", "db_ddladmin", "db_backupoperator",
	"db_datareader", "db_datawriter", "db_denydatareader", "db_denydatawriter",
}

// SQLServerProvider reads the SQL Server catalog
type SQLServerProvider struct {
	client *SQLServerClient
	schema string
}

// NewSQLServerProvider creates a new SQL Server metadata provider
func NewSQLServerProvider(client *SQLServerClient, schemaName string) *SQLServerProvider {
	return &SQLServerProvider{
		client: client,
		schema: schemaName,
	}
}

// Dialect returns the dialect name
func (p *SQLServerProvider) Dialect() string { return DialectSQLServer }

// Close closes the underlying connection
func (p *SQLServerProvider) Close(context.Context) error {
	return p.client.Close()
}

// ListSchemas returns the configured schema, or every schema except the
// system and fixed database-role schemas
func (p *SQLServerProvider) ListSchemas(ctx context.Context) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if p.schema != "" {
		rows, err = p.client.GetDB().QueryContext(ctx, `
			SELECT SCHEMA_NAME
			FROM INFORMATION_SCHEMA.SCHEMATA
			WHERE SCHEMA_NAME = @p1
		`, p.schema)
	} else {
		rows, err = p.client.GetDB().QueryContext(ctx, fmt.Sprintf(`
			SELECT SCHEMA_NAME
			FROM INFORMATION_SCHEMA.SCHEMATA
			WHERE SCHEMA_NAME NOT IN (%s)
			ORDER BY SCHEMA_NAME
		`, placeholders(len(sqlServerSystemSchemas))), sqlServerSystemSchemas...)
	}
	if err != nil {
		return nil, err
	}

	schemas, err := collectStrings(rows)
	if err != nil {
		return nil, err
	}
	if p.schema != "" && len(schemas) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, p.schema)
	}
	return schemas, nil
}

// ListTables returns tables and views of a schema ordered by name
func (p *SQLServerProvider) ListTables(ctx context.Context, schemaName string) ([]schema.TableRef, error) {
	query := `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1
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

// ListColumns returns the columns of a table ordered by position.
// A max length of -1 means (max).
func (p *SQLServerProvider) ListColumns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error) {
	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			CHARACTER_MAXIMUM_LENGTH,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
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

// ListConstraints returns one row per constraint column. Foreign key columns
// are paired with the referenced key's columns by ordinal position.
func (p *SQLServerProvider) ListConstraints(ctx context.Context, schemaName, table string) ([]schema.ConstraintInfo, error) {
	query := `
		SELECT
			tc.CONSTRAINT_NAME,
			tc.CONSTRAINT_TYPE,
			kcu.COLUMN_NAME,
			ref.TABLE_SCHEMA,
			ref.TABLE_NAME,
			ref.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS AS tc
		LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE AS kcu
			ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
			AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		LEFT JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS AS rc
			ON rc.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
			AND rc.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE AS ref
			ON ref.CONSTRAINT_SCHEMA = rc.UNIQUE_CONSTRAINT_SCHEMA
			AND ref.CONSTRAINT_NAME = rc.UNIQUE_CONSTRAINT_NAME
			AND ref.ORDINAL_POSITION = kcu.ORDINAL_POSITION
		WHERE tc.TABLE_SCHEMA = @p1 AND tc.TABLE_NAME = @p2
		ORDER BY tc.CONSTRAINT_TYPE, tc.CONSTRAINT_NAME, kcu.ORDINAL_POSITION
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConstraints(rows)
}

// ListIndexes renders each index as "INDEX name ON schema.table (col,...)"
func (p *SQLServerProvider) ListIndexes(ctx context.Context, schemaName, table string) ([]schema.IndexInfo, error) {
	query := `
		SELECT
			i.name,
			'INDEX ' + i.name + ' ON ' + s.name + '.' + o.name + ' (' +
				ISNULL(STRING_AGG(c.name, ',') WITHIN GROUP (ORDER BY ic.key_ordinal), '') + ')'
		FROM sys.indexes AS i
		JOIN sys.objects AS o ON o.object_id = i.object_id
		JOIN sys.schemas AS s ON s.schema_id = o.schema_id
		LEFT JOIN sys.index_columns AS ic
			ON ic.object_id = i.object_id
			AND ic.index_id = i.index_id
			AND ic.is_included_column = 0
		LEFT JOIN sys.columns AS c
			ON c.object_id = ic.object_id
			AND c.column_id = ic.column_id
		WHERE s.name = @p1 AND o.name = @p2 AND i.name IS NOT NULL
		GROUP BY i.name, s.name, o.name
		ORDER BY i.name
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName, table)
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

// RowCount sums partition row counts of the heap or clustered index
func (p *SQLServerProvider) RowCount(ctx context.Context, schemaName, table string) (int64, error) {
	query := `
		SELECT SUM(p.rows)
		FROM sys.partitions AS p
		JOIN sys.tables AS t ON p.object_id = t.object_id
		JOIN sys.schemas AS s ON t.schema_id = s.schema_id
		WHERE s.name = @p1 AND t.name = @p2
			AND p.index_id IN (0, 1)
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

// TableSize returns the allocated pages of all indexes and partitions in MB
func (p *SQLServerProvider) TableSize(ctx context.Context, schemaName, table string) (string, error) {
	query := `
		SELECT CONCAT(CAST(ROUND(((SUM(a.total_pages) * 8) / 1024.00), 2) AS NUMERIC(36, 2)), ' MB')
		FROM sys.tables AS t
		JOIN sys.schemas AS s ON t.schema_id = s.schema_id
		JOIN sys.indexes AS i ON t.object_id = i.object_id
		JOIN sys.partitions AS p ON i.object_id = p.object_id AND i.index_id = p.index_id
		JOIN sys.allocation_units AS a ON p.partition_id = a.container_id
		WHERE s.name = @p1 AND t.name = @p2
		GROUP BY s.name, t.name
	`

	return queryOptionalString(ctx, p.client.GetDB(), query, schemaName, table)
}

// ListForeignKeys returns the declared foreign keys of a schema
func (p *SQLServerProvider) ListForeignKeys(ctx context.Context, schemaName string) ([]schema.ForeignKeyEdge, error) {
	query := `
		SELECT
			OBJECT_NAME(fk.parent_object_id) AS table_name,
			COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
			OBJECT_NAME(fk.referenced_object_id),
			COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id),
			fk.name AS constraint_name
		FROM sys.foreign_keys AS fk
		JOIN sys.foreign_key_columns AS fkc ON fk.object_id = fkc.constraint_object_id
		JOIN sys.tables AS t ON fk.parent_object_id = t.object_id
		JOIN sys.schemas AS s ON t.schema_id = s.schema_id
		WHERE s.name = @p1
		ORDER BY table_name, constraint_name, fkc.constraint_column_id
	`

	rows, err := p.client.GetDB().QueryContext(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanForeignKeys(rows)
}

// ListKeyColumns returns every column of the schema named like <noun>_id
func (p *SQLServerProvider) ListKeyColumns(ctx context.Context, schemaName string) ([]schema.ColumnRef, error) {
	query := `
		SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1
			AND COLUMN_NAME LIKE '%[_]id'
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

// placeholders renders "@p1, @p2, ..." for n bound parameters
func placeholders(n int) string {
	var b []byte
	for i := 1; i <= n; i++ {
		if i > 1 {
			b = append(b, ", "...)
		}
		b = append(b, fmt.Sprintf("@p%d", i)...)
	}
	return string(b)
}
