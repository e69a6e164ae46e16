// Package schemamap introspects the catalog of a relational database and
// produces two canonical records: a structure dump (schema → table →
// columns, constraints, indexes, row count, size) and a relationship report
// (declared foreign keys, relationships inferred from column names, and
// per-table statistics).
//
// PostgreSQL, MySQL, SQL Server and SQLite are supported. The dialect is
// chosen once when the connection is opened; everything in this package
// works against the Catalog interface.
//
// # Quick Start
//
//	provider, err := db.Open(ctx, db.ConnConfig{Type: "postgres", Host: "localhost", Database: "shop"})
//	if err != nil {
//		return err
//	}
//	defer provider.Close(ctx)
//
//	report, err := schemamap.AnalyzeRelationships(ctx, provider, &schemamap.Options{
//		IgnoredTables: []string{"schema_migrations"},
//	})
//
// # Failure Handling
//
// Only failures to enumerate schemas are returned as errors. A schema that
// fails midway is recorded in the result's Failures map and the run moves on
// to the next schema. Lookups that fail for a single table are contained: the
// table stays in the output and the failed lookup is listed in its
// lookup_errors.
package schemamap

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tordrt/schemamap/internal/analyzer"
	"github.com/tordrt/schemamap/internal/schema"
)

// Catalog is the read side of a database connection. Every db.Provider
// satisfies it.
type Catalog = analyzer.Catalog

// Instrumentation records run metrics. telemetry.Instruments satisfies it.
type Instrumentation = analyzer.Instrumentation

// Options configures a run.
//
// All fields are optional:
//   - IgnoredTables: empty ignores nothing
//   - Logger: nil discards logs
//   - Tracer: nil uses a no-op tracer
//   - Inst: nil records no metrics
type Options struct {
	// IgnoredTables are dropped from every output, on both ends of an edge.
	// Example: []string{"schema_migrations", "audit_log"}
	IgnoredTables []string

	Logger *slog.Logger
	Tracer trace.Tracer
	Inst   Instrumentation
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o *Options) tracer() trace.Tracer {
	if o.Tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return o.Tracer
}

func (o *Options) instruments() Instrumentation {
	if o.Inst == nil {
		return analyzer.NoopInstrumentation{}
	}
	return o.Inst
}

func (o *Options) analyzer(catalog Catalog) *analyzer.Analyzer {
	return analyzer.New(catalog, analyzer.Options{
		Ignored: schema.NewIgnoreSet(o.IgnoredTables),
		Logger:  o.logger(),
		Tracer:  o.tracer(),
		Inst:    o.instruments(),
	})
}

// timeSchema records how long one schema took, failed or not
func (o *Options) timeSchema(ctx context.Context, start time.Time) {
	o.instruments().RecordSchemaDuration(ctx, float64(time.Since(start).Milliseconds()))
}

// DumpStructure collects the structural record of every non-ignored table
// and view of every schema.
//
// Returns an error only if the schema list cannot be read.
func DumpStructure(ctx context.Context, catalog Catalog, opts *Options) (*schema.StructureDump, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.logger()

	ctx, span := opts.tracer().Start(ctx, "DumpStructure")
	defer span.End()

	a := opts.analyzer(catalog)
	schemas, err := a.Schemas(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	dump := &schema.StructureDump{
		Schemas:  make(map[string]map[string]schema.TableStructure, len(schemas)),
		Failures: map[string]string{},
	}
	for _, name := range schemas {
		start := time.Now()
		tables, err := a.DescribeSchema(ctx, name)
		opts.timeSchema(ctx, start)
		if err != nil {
			schemaFailed(logger, dump.Failures, name, err)
			continue
		}
		dump.Schemas[name] = tables
		logger.Info("schema described", "schema", name, "tables", len(tables))
	}

	span.SetAttributes(
		attribute.Int("schemamap.schemas", len(dump.Schemas)),
		attribute.Int("schemamap.failed_schemas", len(dump.Failures)),
	)
	return dump, nil
}

// AnalyzeRelationships collects declared foreign keys, inferred
// relationships and table statistics of every schema.
//
// The three lookups run in that order. If one fails, the schema keeps the
// entries already collected and the rest are skipped.
//
// Returns an error only if the schema list cannot be read.
func AnalyzeRelationships(ctx context.Context, catalog Catalog, opts *Options) (*schema.RelationshipReport, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.logger()

	ctx, span := opts.tracer().Start(ctx, "AnalyzeRelationships")
	defer span.End()

	a := opts.analyzer(catalog)
	schemas, err := a.Schemas(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := &schema.RelationshipReport{
		ForeignKeys: make(map[string][]schema.ForeignKeyEdge, len(schemas)),
		Inferred:    make(map[string][]schema.InferredEdge, len(schemas)),
		Stats:       make(map[string][]schema.TableStat, len(schemas)),
		Failures:    map[string]string{},
	}
	for _, name := range schemas {
		start := time.Now()
		err := analyzeSchema(ctx, a, report, name)
		opts.timeSchema(ctx, start)
		if err != nil {
			schemaFailed(logger, report.Failures, name, err)
			continue
		}
		logger.Info("schema analyzed",
			"schema", name,
			"foreign_keys", len(report.ForeignKeys[name]),
			"inferred", len(report.Inferred[name]),
			"stats", len(report.Stats[name]))
	}

	span.SetAttributes(
		attribute.Int("schemamap.schemas", len(schemas)),
		attribute.Int("schemamap.failed_schemas", len(report.Failures)),
	)
	return report, nil
}

func analyzeSchema(ctx context.Context, a *analyzer.Analyzer, report *schema.RelationshipReport, name string) error {
	fks, err := a.ForeignKeys(ctx, name)
	if err != nil {
		return err
	}
	report.ForeignKeys[name] = fks

	inferred, err := a.InferRelationships(ctx, name)
	if err != nil {
		return err
	}
	report.Inferred[name] = inferred

	stats, err := a.TableStats(ctx, name)
	if err != nil {
		return err
	}
	report.Stats[name] = stats
	return nil
}

func schemaFailed(logger *slog.Logger, failures map[string]string, name string, err error) {
	failures[name] = err.Error()
	logger.Error("schema skipped", "schema", name, "error", err)
}
