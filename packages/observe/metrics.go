package observe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vogtb/go-spreadsheet/packages/value"
)

const (
	namespace = "spreadsheet"
	subsystem = "calc"
)

// Metrics exports calculation telemetry as prometheus collectors.
type Metrics struct {
	parseTime       *prometheus.HistogramVec
	compileTime     prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	evaluationTime  *prometheus.HistogramVec
	recalcTime      prometheus.Histogram
	recalcCells     prometheus.Counter
	recalcCycles    prometheus.Counter
	recalcSpills    prometheus.Counter
	recalcLevelSize prometheus.Histogram
}

// NewMetrics creates unregistered collectors; call MustRegister to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		parseTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parse_duration_seconds",
				Help:      "Formula parse time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 12),
			},
			[]string{"result"},
		),
		compileTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "compile_duration_seconds",
			Help:      "Expression compilation time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 12),
		}),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "compile_cache_lookups_total",
				Help:      "Compiled program cache lookups.",
			},
			[]string{"result"}, // "hit" or "miss"
		),
		evaluationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Per-cell evaluation time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 12),
			},
			[]string{"result"}, // "value" or "error"
		),
		recalcTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "recalculate_duration_seconds",
			Help:      "Recalculation pass time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		recalcCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "recalculated_cells_total",
			Help:      "Formula cells evaluated by recalculation.",
		}),
		recalcCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_cells_total",
			Help:      "Formula cells found on or behind a circular reference.",
		}),
		recalcSpills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "spills_total",
			Help:      "Array results written to a spill range.",
		}),
		recalcLevelSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "recalculate_levels",
			Help:      "Number of dependency levels per recalculation.",
			Buckets:   prometheus.LinearBuckets(1, 4, 10),
		}),
	}
}

// MustRegister registers all collectors with the given registry.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(
		m.parseTime,
		m.compileTime,
		m.cacheLookups,
		m.evaluationTime,
		m.recalcTime,
		m.recalcCells,
		m.recalcCycles,
		m.recalcSpills,
		m.recalcLevelSize,
	)
}

func (m *Metrics) ObserveParse(d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.parseTime.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) ObserveCompile(d time.Duration) {
	m.compileTime.Observe(d.Seconds())
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvaluate(d time.Duration, result value.Value) {
	label := "value"
	if result.IsError() {
		label = "error"
	}
	m.evaluationTime.WithLabelValues(label).Observe(d.Seconds())
}

func (m *Metrics) ObserveRecalculate(stats RecalcStats, d time.Duration) {
	m.recalcTime.Observe(d.Seconds())
	m.recalcCells.Add(float64(stats.Cells))
	m.recalcCycles.Add(float64(stats.CycleCells))
	m.recalcSpills.Add(float64(stats.Spills))
	m.recalcLevelSize.Observe(float64(stats.Levels))
}

var _ Observer = (*Metrics)(nil)
