package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcome label values.
const (
	OutcomeLoaded     = "loaded"
	OutcomeRejected   = "rejected"
	OutcomeLoadFailed = "load_failed"
	OutcomeFault      = "fault"
	OutcomeSkipped    = "skipped"
)

// Collector groups the Prometheus collectors of the ingestion pipeline.
// A nil *Collector is valid and records nothing.
type Collector struct {
	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	RetainedRecords prometheus.Gauge
	LastTemperature prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_cycles_total",
			Help: "Total number of ingestion cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "etl_cycle_duration_seconds",
			Help:    "Duration of ingestion cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		RetainedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etl_retained_records",
			Help: "Number of records currently held in the history store",
		}),
		LastTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etl_last_temperature_celsius",
			Help: "Temperature of the most recently loaded record",
		}),
	}

	if reg != nil {
		reg.MustRegister(c.Cycles, c.CycleDuration, c.RetainedRecords, c.LastTemperature)
	}
	return c
}

// ObserveCycle records one finished cycle.
func (c *Collector) ObserveCycle(outcome string, d time.Duration, retained int) {
	if c == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	c.Cycles.WithLabelValues(outcome).Inc()
	c.CycleDuration.Observe(d.Seconds())
	c.RetainedRecords.Set(float64(retained))
}

// ObserveSkip records a tick dropped because the previous cycle was still running.
func (c *Collector) ObserveSkip() {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(OutcomeSkipped).Inc()
}

// SetLastTemperature updates the last loaded temperature gauge.
func (c *Collector) SetLastTemperature(v float64) {
	if c == nil {
		return
	}
	c.LastTemperature.Set(v)
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
