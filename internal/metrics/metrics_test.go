package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.SetRooms(3)
	m.IncEvent("join-room")
	m.IncEvent("join-room")
	m.IncDropped(DropReasonMalformed)

	if got := testutil.ToFloat64(m.connections); got != 1 {
		t.Errorf("connections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rooms); got != 3 {
		t.Errorf("rooms = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("join-room")); got != 2 {
		t.Errorf("events{join-room} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues(DropReasonMalformed)); got != 1 {
		t.Errorf("dropped{malformed} = %v, want 1", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	m.ConnOpened()
	m.ConnClosed()
	m.SetRooms(1)
	m.IncEvent("join-room")
	m.IncDropped(DropReasonMalformed)

	if m.Handler() == nil {
		t.Errorf("nil metrics Handler must still serve")
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if h := m.InstrumentHandler(inner); h == nil {
		t.Errorf("nil metrics InstrumentHandler must pass through")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ConnOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "signaling_connections 1") {
		t.Errorf("exposition missing signaling_connections:\n%s", rec.Body.String())
	}
}

func TestInstrumentHandler(t *testing.T) {
	m := New()
	h := m.InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("204", "get")); got != 1 {
		t.Errorf("http_requests{204,get} = %v, want 1", got)
	}
}
