package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments holds pre-created OTel metric instruments for a run.
type Instruments struct {
	TablesScanned  metric.Int64Counter
	LookupErrors   metric.Int64Counter
	SchemaDuration metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	return newInstrumentsFromMeter(otel.Meter(instrumentationName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	tables, _ := meter.Int64Counter("schemamap.tables",
		metric.WithDescription("Tables whose structure or statistics were read"),
	)
	lookupErrors, _ := meter.Int64Counter("schemamap.lookup.errors",
		metric.WithDescription("Per-table catalog lookups that failed and were contained"),
	)
	schemaDuration, _ := meter.Float64Histogram("schemamap.schema.duration",
		metric.WithDescription("Time spent analyzing one schema in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		TablesScanned:  tables,
		LookupErrors:   lookupErrors,
		SchemaDuration: schemaDuration,
	}
}

func (i *Instruments) IncrementTables(ctx context.Context, schemaName string) {
	i.TablesScanned.Add(ctx, 1, metric.WithAttributes(attribute.String("db.namespace", schemaName)))
}

func (i *Instruments) IncrementLookupErrors(ctx context.Context, lookup string) {
	i.LookupErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("schemamap.lookup", lookup)))
}

func (i *Instruments) RecordSchemaDuration(ctx context.Context, ms float64) {
	i.SchemaDuration.Record(ctx, ms)
}
