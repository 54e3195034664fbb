// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evgrid"

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds every collector on a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messages          *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
	costUpdates       *prometheus.CounterVec
	costUpdaters      prometheus.Gauge
	signatureFailures *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
	stations          prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocpp_messages_total",
			Help:      "OCPP frames by action and direction.",
		}, []string{"action", "direction"}),
		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ocpp_handler_duration_seconds",
			Help:      "Time spent handling station calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action", "outcome"}),
		costUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_updates_total",
			Help:      "Periodic cost update ticks by result.",
		}, []string{"result"}),
		costUpdaters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost_updaters_active",
			Help:      "Transactions with an armed periodic cost update.",
		}),
		signatureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signed_meter_value_failures_total",
			Help:      "Meter value submissions whose signatures did not verify.",
		}, []string{"source"}),
		publishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Transaction lifecycle events that could not be published.",
		}, []string{"subject"}),
		stations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_stations",
			Help:      "Stations with an open websocket.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Message(action, direction string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(action, direction).Inc()
}

func (m *Metrics) HandlerDone(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(action, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) CostUpdate(result string) {
	if m == nil {
		return
	}
	m.costUpdates.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCostUpdaters(n int) {
	if m == nil {
		return
	}
	m.costUpdaters.Set(float64(n))
}

func (m *Metrics) SignatureFailure(source string) {
	if m == nil {
		return
	}
	m.signatureFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) PublishFailure(subject string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(subject).Inc()
}

func (m *Metrics) StationConnected() {
	if m == nil {
		return
	}
	m.stations.Inc()
}

func (m *Metrics) StationDisconnected() {
	if m == nil {
		return
	}
	m.stations.Dec()
}
