package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Heartbeat metrics
	HeartbeatsTotal      *prometheus.CounterVec
	DirectoryErrorsTotal prometheus.Counter
	GossipEventsTotal    *prometheus.CounterVec

	// Lease metrics
	LivePeers      *prometheus.GaugeVec
	EvictionsTotal prometheus.Counter

	// Selection metrics
	SelectionsTotal   *prometheus.CounterVec
	SelectionDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HeartbeatsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasrv_heartbeats_total",
				Help: "Total number of heartbeats handled",
			},
			[]string{"namespace", "result"},
		),

		DirectoryErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "metasrv_directory_errors_total",
				Help: "Total number of failed peer directory writes",
			},
		),

		GossipEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasrv_gossip_events_total",
				Help: "Total number of memberlist events received",
			},
			[]string{"event"},
		),

		LivePeers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "metasrv_live_peers",
				Help: "Number of peers holding an unexpired lease",
			},
			[]string{"namespace"},
		),

		EvictionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "metasrv_lease_evictions_total",
				Help: "Total number of expired leases removed from the registry",
			},
		),

		SelectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metasrv_selections_total",
				Help: "Total number of peer selections",
			},
			[]string{"selector", "namespace", "outcome"},
		),

		SelectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metasrv_selection_duration_seconds",
				Help:    "Duration of peer selection",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
			[]string{"selector"},
		),
	}
}

// RecordHeartbeat records a handled heartbeat
func (m *Metrics) RecordHeartbeat(namespace, result string) {
	m.HeartbeatsTotal.WithLabelValues(namespace, result).Inc()
}

// RecordDirectoryError records a failed directory write
func (m *Metrics) RecordDirectoryError() {
	m.DirectoryErrorsTotal.Inc()
}

// RecordGossipEvent records a memberlist event
func (m *Metrics) RecordGossipEvent(event string) {
	m.GossipEventsTotal.WithLabelValues(event).Inc()
}

// RecordEvictions records evicted leases
func (m *Metrics) RecordEvictions(count int) {
	m.EvictionsTotal.Add(float64(count))
}

// UpdateLivePeers updates the live peer count of a namespace
func (m *Metrics) UpdateLivePeers(namespace string, count int) {
	m.LivePeers.WithLabelValues(namespace).Set(float64(count))
}

// ForgetNamespace removes every series labelled with namespace
func (m *Metrics) ForgetNamespace(namespace string) {
	labels := prometheus.Labels{"namespace": namespace}
	m.HeartbeatsTotal.DeletePartialMatch(labels)
	m.LivePeers.DeletePartialMatch(labels)
	m.SelectionsTotal.DeletePartialMatch(labels)
}

// RecordSelection records a selection outcome and latency
func (m *Metrics) RecordSelection(selector, namespace, outcome string, duration float64) {
	m.SelectionsTotal.WithLabelValues(selector, namespace, outcome).Inc()
	m.SelectionDuration.WithLabelValues(selector).Observe(duration)
}
