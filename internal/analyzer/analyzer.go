// Package analyzer turns the catalog of one database into structural records
// and relationship edges. It depends only on the Catalog interface; the
// dialect is chosen once by whoever opens the connection.
package analyzer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tordrt/schemamap/internal/inference"
	"github.com/tordrt/schemamap/internal/schema"
)

// Lookup names used in logs, metrics and TableStructure.LookupErrors
const (
	LookupColumns     = "columns"
	LookupConstraints = "constraints"
	LookupIndexes     = "indexes"
	LookupRowCount    = "row_count"
	LookupSize        = "size"
)

// Catalog is the read side of a database connection
type Catalog interface {
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schemaName string) ([]schema.TableRef, error)
	ListColumns(ctx context.Context, schemaName, table string) ([]schema.ColumnInfo, error)
	ListConstraints(ctx context.Context, schemaName, table string) ([]schema.ConstraintInfo, error)
	ListIndexes(ctx context.Context, schemaName, table string) ([]schema.IndexInfo, error)
	RowCount(ctx context.Context, schemaName, table string) (int64, error)
	TableSize(ctx context.Context, schemaName, table string) (string, error)
	ListForeignKeys(ctx context.Context, schemaName string) ([]schema.ForeignKeyEdge, error)
	ListKeyColumns(ctx context.Context, schemaName string) ([]schema.ColumnRef, error)
}

// Instrumentation records run metrics
type Instrumentation interface {
	IncrementTables(ctx context.Context, schemaName string)
	IncrementLookupErrors(ctx context.Context, lookup string)
	RecordSchemaDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) IncrementTables(context.Context, string)       {}
func (NoopInstrumentation) IncrementLookupErrors(context.Context, string) {}
func (NoopInstrumentation) RecordSchemaDuration(context.Context, float64) {}

// Options configures an Analyzer. Zero values are usable.
type Options struct {
	Ignored schema.IgnoreSet
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Inst    Instrumentation
}

// Analyzer reads one catalog strictly sequentially
type Analyzer struct {
	catalog Catalog
	ignored schema.IgnoreSet
	logger  *slog.Logger
	tracer  trace.Tracer
	inst    Instrumentation
}

// New creates an analyzer over catalog
func New(catalog Catalog, opts Options) *Analyzer {
	a := &Analyzer{
		catalog: catalog,
		ignored: opts.Ignored,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		inst:    opts.Inst,
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if a.tracer == nil {
		a.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if a.inst == nil {
		a.inst = NoopInstrumentation{}
	}
	return a
}

// Schemas returns the schemas to process in processing order.
// An error here is fatal for the run.
func (a *Analyzer) Schemas(ctx context.Context) ([]string, error) {
	ctx, span := a.tracer.Start(ctx, "Analyzer.Schemas")
	defer span.End()

	schemas, err := a.catalog.ListSchemas(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	slices.Sort(schemas)
	schemas = slices.Compact(schemas)
	span.SetAttributes(attribute.Int("schemamap.schemas", len(schemas)))
	return schemas, nil
}

// ForeignKeys returns the declared foreign keys of a schema, dropping edges
// where either end is an ignored table
func (a *Analyzer) ForeignKeys(ctx context.Context, schemaName string) ([]schema.ForeignKeyEdge, error) {
	ctx, span := a.startSchemaSpan(ctx, "Analyzer.ForeignKeys", schemaName)
	defer span.End()

	edges, err := a.catalog.ListForeignKeys(ctx, schemaName)
	if err != nil {
		return nil, a.fail(span, fmt.Errorf("failed to list foreign keys: %w", err))
	}

	kept := make([]schema.ForeignKeyEdge, 0, len(edges))
	for _, e := range edges {
		if a.ignored.Contains(e.Table) || a.ignored.Contains(e.ForeignTable) {
			continue
		}
		kept = append(kept, e)
	}

	span.SetAttributes(attribute.Int("schemamap.edges", len(kept)))
	return kept, nil
}

// InferRelationships guesses relationships from <noun>_id column names.
// Every edge points at an assumed "id" column; the referenced table's real
// primary key is never checked.
func (a *Analyzer) InferRelationships(ctx context.Context, schemaName string) ([]schema.InferredEdge, error) {
	ctx, span := a.startSchemaSpan(ctx, "Analyzer.InferRelationships", schemaName)
	defer span.End()

	columns, err := a.catalog.ListKeyColumns(ctx, schemaName)
	if err != nil {
		return nil, a.fail(span, fmt.Errorf("failed to list key columns: %w", err))
	}

	tables, err := a.catalog.ListTables(ctx, schemaName)
	if err != nil {
		return nil, a.fail(span, fmt.Errorf("failed to list tables: %w", err))
	}

	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		if t.Kind == schema.KindBaseTable {
			known[t.Name] = true
		}
	}

	// Catalogs disagree on collation; fix the order so reruns are identical.
	slices.SortStableFunc(columns, func(x, y schema.ColumnRef) int {
		return cmp.Or(cmp.Compare(x.Table, y.Table), cmp.Compare(x.Column, y.Column))
	})

	edges := inference.Infer(columns, known, a.ignored)
	span.SetAttributes(attribute.Int("schemamap.edges", len(edges)))
	return edges, nil
}

// TableStats collects row count and size for every non-ignored table.
// A table is kept if at least one lookup succeeded. The result is ordered by
// row count descending; unknown counts sort as zero.
func (a *Analyzer) TableStats(ctx context.Context, schemaName string) ([]schema.TableStat, error) {
	ctx, span := a.startSchemaSpan(ctx, "Analyzer.TableStats", schemaName)
	defer span.End()

	tables, err := a.catalog.ListTables(ctx, schemaName)
	if err != nil {
		return nil, a.fail(span, fmt.Errorf("failed to list tables: %w", err))
	}

	stats := make([]schema.TableStat, 0, len(tables))
	for _, t := range tables {
		if a.ignored.Contains(t.Name) {
			continue
		}

		stat := schema.TableStat{Table: t.Name}

		count, err := a.catalog.RowCount(ctx, schemaName, t.Name)
		if err != nil {
			a.lookupFailed(ctx, schemaName, t.Name, LookupRowCount, err)
		} else {
			stat.RowCount = &count
		}

		size, err := a.catalog.TableSize(ctx, schemaName, t.Name)
		if err != nil {
			a.lookupFailed(ctx, schemaName, t.Name, LookupSize, err)
		} else {
			stat.Size = &size
		}

		// Absent from the catalog counts as failed here.
		if stat.RowCount == nil && stat.Size == nil {
			continue
		}
		a.inst.IncrementTables(ctx, schemaName)
		stats = append(stats, stat)
	}

	slices.SortStableFunc(stats, func(x, y schema.TableStat) int {
		return cmp.Compare(rowCountOrZero(y), rowCountOrZero(x))
	})
	return stats, nil
}

func rowCountOrZero(s schema.TableStat) int64 {
	if s.RowCount == nil {
		return 0
	}
	return *s.RowCount
}

// DescribeSchema builds the structural record of every non-ignored table.
// Lookup failures leave the field empty and are recorded in LookupErrors.
func (a *Analyzer) DescribeSchema(ctx context.Context, schemaName string) (map[string]schema.TableStructure, error) {
	ctx, span := a.startSchemaSpan(ctx, "Analyzer.DescribeSchema", schemaName)
	defer span.End()

	tables, err := a.catalog.ListTables(ctx, schemaName)
	if err != nil {
		return nil, a.fail(span, fmt.Errorf("failed to list tables: %w", err))
	}

	result := make(map[string]schema.TableStructure, len(tables))
	for _, t := range tables {
		if a.ignored.Contains(t.Name) {
			continue
		}
		result[t.Name] = a.describeTable(ctx, t)
		a.inst.IncrementTables(ctx, schemaName)
	}

	span.SetAttributes(attribute.Int("schemamap.tables", len(result)))
	return result, nil
}

func (a *Analyzer) describeTable(ctx context.Context, t schema.TableRef) schema.TableStructure {
	s := schema.TableStructure{
		Type:        t.Kind,
		Columns:     []schema.ColumnInfo{},
		Constraints: []schema.ConstraintInfo{},
		Indexes:     []schema.IndexInfo{},
	}

	record := func(lookup string, err error) {
		a.lookupFailed(ctx, t.Schema, t.Name, lookup, err)
		if errors.Is(err, schema.ErrNotAvailable) {
			return
		}
		if s.LookupErrors == nil {
			s.LookupErrors = make(map[string]string)
		}
		s.LookupErrors[lookup] = err.Error()
	}

	if columns, err := a.catalog.ListColumns(ctx, t.Schema, t.Name); err != nil {
		record(LookupColumns, err)
	} else if columns != nil {
		s.Columns = columns
	}

	if constraints, err := a.catalog.ListConstraints(ctx, t.Schema, t.Name); err != nil {
		record(LookupConstraints, err)
	} else if constraints != nil {
		s.Constraints = constraints
	}

	if indexes, err := a.catalog.ListIndexes(ctx, t.Schema, t.Name); err != nil {
		record(LookupIndexes, err)
	} else if indexes != nil {
		s.Indexes = indexes
	}

	if count, err := a.catalog.RowCount(ctx, t.Schema, t.Name); err != nil {
		record(LookupRowCount, err)
	} else {
		s.RowCount = &count
	}

	if size, err := a.catalog.TableSize(ctx, t.Schema, t.Name); err != nil {
		record(LookupSize, err)
	} else {
		s.Size = &size
	}

	return s
}

func (a *Analyzer) startSchemaSpan(ctx context.Context, name, schemaName string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("db.namespace", schemaName)))
}

func (a *Analyzer) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (a *Analyzer) lookupFailed(ctx context.Context, schemaName, table, lookup string, err error) {
	if errors.Is(err, schema.ErrNotAvailable) {
		a.logger.DebugContext(ctx, "catalog value not available",
			slog.String("schema", schemaName),
			slog.String("table", table),
			slog.String("lookup", lookup),
		)
		return
	}
	a.inst.IncrementLookupErrors(ctx, lookup)
	a.logger.WarnContext(ctx, "catalog lookup failed",
		slog.String("schema", schemaName),
		slog.String("table", table),
		slog.String("lookup", lookup),
		slog.String("error", err.Error()),
	)
}
