// Package observability provides the process-lifetime metrics collector,
// alert deduper, and health registry shared across the pipeline's
// components. All three are intended to be constructed once at startup and
// passed down, not used as package-level globals.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Point is one recorded sample.
type Point struct {
	Value  float64
	Unit   string
	Labels map[string]string
	At     time.Time
}

// Aggregate is the result of a windowed query over a named series.
type Aggregate struct {
	Count int
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
}

// ringBuffer is a fixed-capacity, append-only circular buffer of Points.
type ringBuffer struct {
	points []Point
	next   int
	full   bool
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{points: make([]Point, capacity)}
}

func (r *ringBuffer) add(p Point) {
	r.points[r.next] = p
	r.next = (r.next + 1) % len(r.points)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ringBuffer) all() []Point {
	if !r.full {
		return r.points[:r.next]
	}
	out := make([]Point, 0, len(r.points))
	out = append(out, r.points[r.next:]...)
	out = append(out, r.points[:r.next]...)
	return out
}

// DefaultRingCapacity is the per-series point cap.
const DefaultRingCapacity = 10000

// MetricsCollector pairs an in-memory ring buffer (for ad hoc windowed
// aggregate queries the Prometheus client can't answer in-process) with a
// Prometheus registry (for external scraping).
type MetricsCollector struct {
	mu       sync.Mutex
	capacity int
	series   map[string]*ringBuffer

	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewMetricsCollector builds a collector with its own Prometheus registry
// (never the global DefaultRegisterer, so tests and multiple instances
// don't collide).
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		capacity:   DefaultRingCapacity,
		series:     make(map[string]*ringBuffer),
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying Prometheus registry, for wiring into an
// HTTP /metrics handler.
func (m *MetricsCollector) Registry() *prometheus.Registry { return m.registry }

// Record appends value to name's ring buffer with the given unit and
// labels, and to a Prometheus vector chosen by unit: "count" adds to a
// counter, "gauge" sets a gauge, and any other unit is observed in a
// histogram.
func (m *MetricsCollector) Record(name string, value float64, unit string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.series[name]
	if !ok {
		buf = newRingBuffer(m.capacity)
		m.series[name] = buf
	}
	buf.add(Point{Value: value, Unit: unit, Labels: labels, At: time.Now()})

	labelNames, labelValues := splitLabels(labels)
	switch unit {
	case "count":
		m.counterFor(name, labelNames).WithLabelValues(labelValues...).Add(value)
	case "gauge":
		m.gaugeFor(name, labelNames).WithLabelValues(labelValues...).Set(value)
	default:
		m.histogramFor(name, labelNames).WithLabelValues(labelValues...).Observe(value)
	}
}

// splitLabels returns label names sorted lexically (so the same metric name
// always sees the same label-name ordering, regardless of map iteration
// order) alongside their corresponding values.
func splitLabels(labels map[string]string) (names, values []string) {
	names = make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	values = make([]string, len(names))
	for i, k := range names {
		values[i] = labels[k]
	}
	return names, values
}

func (m *MetricsCollector) counterFor(name string, labelNames []string) *prometheus.CounterVec {
	if c, ok := m.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "docpipe_" + name + "_total", Help: name + " total"}, labelNames)
	m.registry.MustRegister(c)
	m.counters[name] = c
	return c
}

func (m *MetricsCollector) gaugeFor(name string, labelNames []string) *prometheus.GaugeVec {
	if g, ok := m.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "docpipe_" + name, Help: name}, labelNames)
	m.registry.MustRegister(g)
	m.gauges[name] = g
	return g
}

func (m *MetricsCollector) histogramFor(name string, labelNames []string) *prometheus.HistogramVec {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "docpipe_" + name + "_seconds", Help: name}, labelNames)
	m.registry.MustRegister(h)
	m.histograms[name] = h
	return h
}

// Aggregate computes count/sum/avg/min/max over name's points recorded at
// or after since.
func (m *MetricsCollector) Aggregate(name string, since time.Time) Aggregate {
	m.mu.Lock()
	buf, ok := m.series[name]
	m.mu.Unlock()
	if !ok {
		return Aggregate{}
	}

	var agg Aggregate
	first := true
	for _, p := range buf.all() {
		if p.At.Before(since) {
			continue
		}
		agg.Count++
		agg.Sum += p.Value
		if first || p.Value < agg.Min {
			agg.Min = p.Value
		}
		if first || p.Value > agg.Max {
			agg.Max = p.Value
		}
		first = false
	}
	if agg.Count > 0 {
		agg.Avg = agg.Sum / float64(agg.Count)
	}
	return agg
}
