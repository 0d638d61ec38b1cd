package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotent(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestHelpersRecord(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := testutil.ToFloat64(serverStops.WithLabelValues("closed_nicely"))
	IncStop("closed_nicely")
	if got := testutil.ToFloat64(serverStops.WithLabelValues("closed_nicely")); got != before+1 {
		t.Fatalf("stops: got %v want %v", got, before+1)
	}

	ObserveProbe("idle", true, 7)
	if got := testutil.ToFloat64(playersOnline); got != 7 {
		t.Fatalf("players_online: %v", got)
	}
	ObserveProbe("idle", false, 0)
	if got := testutil.ToFloat64(playersOnline); got != 7 {
		t.Fatalf("an unreachable probe must not reset players_online, got %v", got)
	}

	SetServiceActive(true)
	if got := testutil.ToFloat64(serviceActive); got != 1 {
		t.Fatalf("service_active: %v", got)
	}
	SetServiceActive(false)
	if got := testutil.ToFloat64(serviceActive); got != 0 {
		t.Fatalf("service_active: %v", got)
	}

	w := testutil.ToFloat64(watchdogAlerts)
	IncWatchdogAlert()
	if got := testutil.ToFloat64(watchdogAlerts); got != w+1 {
		t.Fatalf("watchdog alerts: %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("register: %v", err)
	}
	IncCommand("status", "ok")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `mcwarden_commands_total{result="ok",verb="status"}`) {
		t.Fatalf("commands_total missing from exposition")
	}
}
