// Package metrics exposes the relay's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded on signaling_dropped_events_total.
const (
	DropReasonMalformed     = "malformed"
	DropReasonUnknownEvent  = "unknown_event"
	DropReasonMissingField  = "missing_field"
	DropReasonNotJoined     = "not_joined"
	DropReasonAlreadyJoined = "already_joined"
	DropReasonNoSuchRoom    = "no_such_room"
	DropReasonRoomFull      = "room_full"
	DropReasonNotSharer     = "not_sharer"
	DropReasonRateLimited   = "rate_limited"
	DropReasonOversized     = "oversized"
)

// Metrics holds the relay's collectors on an isolated registry so tests can
// construct independent instances. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	connections prometheus.Gauge
	rooms       prometheus.Gauge
	events      *prometheus.CounterVec
	dropped     *prometheus.CounterVec

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_connections",
			Help: "A gauge of currently open signaling connections.",
		}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_rooms",
			Help: "A gauge of currently live rooms.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_events_total",
			Help: "A counter of inbound signaling events by event name.",
		}, []string{"event"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_dropped_events_total",
			Help: "A counter of silently dropped inbound events by reason.",
		}, []string{"reason"}),
		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_http_in_flight_requests",
			Help: "A gauge of requests being handled by the HTTP server.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_http_requests_total",
			Help: "A counter for requests to the HTTP server.",
		}, []string{"code", "method"}),
	}
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *Metrics) IncEvent(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with in-flight and request-count
// instrumentation.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return promhttp.InstrumentHandlerInFlight(m.httpInFlight,
		promhttp.InstrumentHandlerCounter(m.httpRequests, next))
}
