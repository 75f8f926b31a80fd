// Package metrics records fetch, pipeline and HTTP metrics with Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/stream"
)

// Recorder holds the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry   prometheus.Gatherer
	registerer prometheus.Registerer

	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	pipelineSlots *prometheus.GaugeVec
	dropped       *prometheus.CounterVec
	latestTrend   *prometheus.GaugeVec
	cacheLookups  *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
	streamConns  prometheus.Gauge
}

// New registers the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		registry:   reg,
		registerer: reg,
		fetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeks_fetch_total",
				Help: "Backend sample fetches by index and result",
			},
			[]string{"index", "result"},
		),
		fetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "greeks_fetch_duration_seconds",
				Help:    "Duration of backend sample fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"index"},
		),
		pipelineSlots: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "greeks_pipeline_slots",
				Help: "Slots in the latest derived series by kind (total, filled)",
			},
			[]string{"index", "kind"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeks_dropped_samples_total",
				Help: "Raw samples dropped for unparseable timestamps",
			},
			[]string{"index"},
		),
		latestTrend: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "greeks_latest_trend",
				Help: "1 for the trend of the latest filled slot, 0 otherwise",
			},
			[]string{"index", "trend"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeks_cache_lookups_total",
				Help: "Cache lookups by layer and result",
			},
			[]string{"layer", "result"},
		),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "greeks_circuit_breaker_state",
				Help: "1 for the current circuit breaker state",
			},
			[]string{"name", "state"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "greeks_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "greeks_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method", "class"},
		),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "greeks_http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		streamConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "greeks_stream_connections",
			Help: "Open websocket stream connections",
		}),
	}
}

// Gatherer returns the registry for the /metrics handler.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// RegisterHub exposes the counters of a stream hub, read at scrape time.
func (r *Recorder) RegisterHub(stats func() stream.HubMetrics) error {
	if r == nil {
		return nil
	}
	snapshots := func(outcome string, pick func(stream.HubMetrics) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "greeks_stream_snapshots_total",
			Help:        "Snapshots handled by the stream hub by outcome",
			ConstLabels: prometheus.Labels{"outcome": outcome},
		}, func() float64 { return float64(pick(stats())) })
	}
	gauge := func(name, help string, pick func(stream.HubMetrics) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(pick(stats())) })
	}

	for _, c := range []prometheus.Collector{
		snapshots("received", func(m stream.HubMetrics) uint64 { return m.Received }),
		snapshots("delivered", func(m stream.HubMetrics) uint64 { return m.Delivered }),
		snapshots("dropped", func(m stream.HubMetrics) uint64 { return m.Dropped }),
		gauge("greeks_stream_subscribers", "Current stream hub subscribers",
			func(m stream.HubMetrics) int { return m.Subscribers }),
		gauge("greeks_stream_topics", "Topics with at least one subscriber",
			func(m stream.HubMetrics) int { return m.Topics }),
		gauge("greeks_stream_retained_snapshots", "Topics holding a latest snapshot",
			func(m stream.HubMetrics) int { return m.Retained }),
	} {
		if err := r.registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordFetch records one backend fetch.
func (r *Recorder) RecordFetch(index models.Index, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.fetchTotal.WithLabelValues(string(index), result).Inc()
	r.fetchDuration.WithLabelValues(string(index)).Observe(duration.Seconds())
}

// RecordSeries records the shape and latest trend of a derived series.
func (r *Recorder) RecordSeries(series *models.Series) {
	if r == nil || series == nil {
		return
	}
	index := string(series.Query.Index)
	r.pipelineSlots.WithLabelValues(index, "total").Set(float64(series.Summary.TotalSlots))
	r.pipelineSlots.WithLabelValues(index, "filled").Set(float64(series.Summary.FilledSlots))
	if series.Dropped > 0 {
		r.dropped.WithLabelValues(index).Add(float64(series.Dropped))
	}
	for _, t := range models.AllTrends {
		v := 0.0
		if t == series.Summary.LatestTrend {
			v = 1
		}
		r.latestTrend.WithLabelValues(index, string(t)).Set(v)
	}
}

// RecordCacheLookup records a hit or miss on a cache layer (response, store).
func (r *Recorder) RecordCacheLookup(layer string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(layer, result).Inc()
}

// RecordBreakerState marks the current state of a circuit breaker.
func (r *Recorder) RecordBreakerState(name string, state string, all []string) {
	if r == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		r.breakerState.WithLabelValues(name, s).Set(v)
	}
}

// RecordHTTP records one served request.
func (r *Recorder) RecordHTTP(route, method string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method, StatusClass(status)).Observe(duration.Seconds())
}

// InFlight adjusts the in-flight request gauge by delta.
func (r *Recorder) InFlight(delta float64) {
	if r == nil {
		return
	}
	r.httpInFlight.Add(delta)
}

// StreamConnections adjusts the open websocket gauge by delta.
func (r *Recorder) StreamConnections(delta float64) {
	if r == nil {
		return
	}
	r.streamConns.Add(delta)
}

// StatusClass buckets an HTTP status code as 1xx..5xx.
func StatusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
