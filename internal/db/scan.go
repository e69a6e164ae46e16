package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tordrt/schemamap/internal/schema"
)

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// collectStrings reads a single-column result set and closes it
func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return values, rows.Err()
}

// queryOptionalString runs a single-value lookup; no row or NULL is ErrNotAvailable
func queryOptionalString(ctx context.Context, db *sql.DB, query string, args ...any) (string, error) {
	var v sql.NullString
	if err := db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotAvailable
		}
		return "", err
	}
	if !v.Valid {
		return "", ErrNotAvailable
	}
	return v.String, nil
}

// scanConstraints reads (name, type, column, ref schema, ref table, ref column) rows
func scanConstraints(rows *sql.Rows) ([]schema.ConstraintInfo, error) {
	var constraints []schema.ConstraintInfo
	for rows.Next() {
		var c schema.ConstraintInfo
		var column, refSchema, refTable, refColumn sql.NullString

		if err := rows.Scan(&c.Name, &c.Type, &column, &refSchema, &refTable, &refColumn); err != nil {
			return nil, err
		}

		c.ColumnName = nullStringPtr(column)
		c.ReferencedSchema = nullStringPtr(refSchema)
		c.ReferencedTable = nullStringPtr(refTable)
		c.ReferencedColumn = nullStringPtr(refColumn)

		constraints = append(constraints, c)
	}

	return constraints, rows.Err()
}

// scanForeignKeys reads (table, column, foreign table, foreign column, constraint) rows
func scanForeignKeys(rows *sql.Rows) ([]schema.ForeignKeyEdge, error) {
	var edges []schema.ForeignKeyEdge
	for rows.Next() {
		var e schema.ForeignKeyEdge
		var foreignColumn sql.NullString

		if err := rows.Scan(&e.Table, &e.Column, &e.ForeignTable, &foreignColumn, &e.ConstraintName); err != nil {
			return nil, err
		}

		e.ForeignColumn = foreignColumn.String
		edges = append(edges, e)
	}

	return edges, rows.Err()
}

// scanKeyColumns reads (table, column, data type) rows, keeping only real _id columns
func scanKeyColumns(rows *sql.Rows) ([]schema.ColumnRef, error) {
	var columns []schema.ColumnRef
	for rows.Next() {
		var c schema.ColumnRef
		var dataType sql.NullString

		if err := rows.Scan(&c.Table, &c.Column, &dataType); err != nil {
			return nil, err
		}

		c.DataType = dataType.String
		if hasKeySuffix(c.Column) {
			columns = append(columns, c)
		}
	}

	return columns, rows.Err()
}
