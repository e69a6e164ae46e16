package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	assert.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.NotNil(t, span)
	span.End()
}

func TestProvider_Nil(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.Tracer())
}

func TestInstruments_LookupErrors(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst := newInstrumentsFromMeter(mp.Meter("test"))

	ctx := context.Background()
	inst.IncrementLookupErrors(ctx, "size")
	inst.IncrementLookupErrors(ctx, "size")
	inst.IncrementLookupErrors(ctx, "row_count")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, "schemamap.lookup.errors", m.Name)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("schemamap.lookup"))
		counts[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"size": 2, "row_count": 1}, counts)
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), RunInfo{
		ServiceName: "schemamap",
		Version:     "1.2.3",
		Dialect:     "sqlserver",
		Database:    "shop",
	})
	require.NoError(t, err)

	set := res.Set()
	for key, want := range map[attribute.Key]string{
		"service.name":    "schemamap",
		"service.version": "1.2.3",
		"db.system":       "mssql",
		"db.namespace":    "shop",
	} {
		v, ok := set.Value(key)
		require.True(t, ok, key)
		assert.Equal(t, want, v.AsString(), key)
	}
}

func TestNewResource_UnknownDialect(t *testing.T) {
	res, err := newResource(context.Background(), RunInfo{ServiceName: "schemamap", Version: "dev"})
	require.NoError(t, err)

	_, ok := res.Set().Value("db.system")
	assert.False(t, ok)
	_, ok = res.Set().Value("db.namespace")
	assert.False(t, ok)
}
