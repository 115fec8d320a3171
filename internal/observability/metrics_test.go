package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndAggregate(t *testing.T) {
	m := NewMetricsCollector()

	start := time.Now()
	m.Record("documents_processed", 1, "count", map[string]string{"outcome": "completed"})
	m.Record("documents_processed", 1, "count", map[string]string{"outcome": "completed"})
	m.Record("documents_processed", 1, "count", map[string]string{"outcome": "failed"})

	agg := m.Aggregate("documents_processed", start)
	require.Equal(t, 3, agg.Count)
	require.Equal(t, float64(3), agg.Sum)
	require.Equal(t, float64(1), agg.Avg)
	require.Equal(t, float64(1), agg.Min)
	require.Equal(t, float64(1), agg.Max)
}

func TestAggregateOnUnknownSeriesIsZero(t *testing.T) {
	m := NewMetricsCollector()
	agg := m.Aggregate("nonexistent", time.Time{})
	require.Equal(t, Aggregate{}, agg)
}

func TestAggregateRespectsSinceWindow(t *testing.T) {
	m := NewMetricsCollector()
	m.Record("cost_usd", 10, "gauge", nil)

	future := time.Now().Add(time.Hour)
	agg := m.Aggregate("cost_usd", future)
	require.Equal(t, 0, agg.Count)
}

func TestSplitLabelsIsOrderStable(t *testing.T) {
	labels := map[string]string{"c": "3", "a": "1", "b": "2"}
	names, values := splitLabels(labels)
	require.Equal(t, []string{"a", "b", "c"}, names)
	require.Equal(t, []string{"1", "2", "3"}, values)

	// repeated calls against an equivalent map must produce the same order,
	// since the first call's order fixes the Prometheus vector's label names.
	names2, values2 := splitLabels(map[string]string{"b": "2", "c": "3", "a": "1"})
	require.Equal(t, names, names2)
	require.Equal(t, values, values2)
}

func TestRecordRoutesByUnit(t *testing.T) {
	m := NewMetricsCollector()
	m.Record("queue_depth", 5, "gauge", map[string]string{"stage": "upload"})
	m.Record("upload_attempts", 1, "count", map[string]string{"stage": "upload"})
	m.Record("extract_latency", 0.25, "seconds", map[string]string{"stage": "extract"})

	require.Contains(t, m.gauges, "queue_depth")
	require.Contains(t, m.counters, "upload_attempts")
	require.Contains(t, m.histograms, "extract_latency")

	mf, err := m.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mf)
}

func TestRingBufferWrapsAtCapacity(t *testing.T) {
	r := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.add(Point{Value: float64(i)})
	}
	all := r.all()
	require.Len(t, all, 3)
	require.Equal(t, float64(2), all[0].Value)
	require.Equal(t, float64(4), all[2].Value)
}
