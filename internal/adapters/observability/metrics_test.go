package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomsync/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample per family so counters are non-zero
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveExternal("crs", "reservation", 200, 30*time.Millisecond)
	observability.ObserveSweep("confirmed")
	observability.SetAtRisk(2)
	observability.ObserveRateLimit("denied")

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, family := range []string{
		"roomsync_http_requests_total",
		"roomsync_external_requests_total",
		"roomsync_sweep_outcomes_total",
		"roomsync_at_risk_bookings 2",
		"roomsync_rate_limit_decisions_total",
	} {
		if !strings.Contains(out, family) {
			t.Fatalf("expected %s in output", family)
		}
	}
}

func TestLabelErr(t *testing.T) {
	if got := observability.LabelErr(nil); got != "none" {
		t.Fatalf("LabelErr(nil) = %q", got)
	}
	if got := observability.LabelErr(io.EOF); got == "none" || got == "" {
		t.Fatalf("LabelErr(EOF) = %q", got)
	}
}
