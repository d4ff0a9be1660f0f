package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestRecordRequestIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("GET", "/api/v1/admin/summary", 200)
	c.RecordRequest("GET", "/api/v1/admin/summary", 200)
	c.RecordRequest("POST", "/api/v1/admin/gate/admin/verify", 403)

	if got := counterValue(t, reg, "kitbox_requests_total"); got != 3 {
		t.Errorf("kitbox_requests_total = %v, want 3", got)
	}
}

func TestRecordGateAttemptAndLockout(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGateAttempt("admin", "success")
	c.RecordGateAttempt("admin", "denied")
	c.RecordLockoutTrip("admin")

	if got := counterValue(t, reg, "kitbox_gate_attempts_total"); got != 2 {
		t.Errorf("kitbox_gate_attempts_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "kitbox_lockout_trips_total"); got != 1 {
		t.Errorf("kitbox_lockout_trips_total = %v, want 1", got)
	}
}

func TestRecordRateLimited(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRateLimited("gate")
	c.RecordRateLimited("ip")
	c.RecordRateLimited("ip")

	if got := counterValue(t, reg, "kitbox_rate_limited_total"); got != 3 {
		t.Errorf("kitbox_rate_limited_total = %v, want 3", got)
	}
}

func TestHandlerServesScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRequest("GET", "/health", 200)
	c.RecordRequestLatency(15 * time.Millisecond)
	c.RecordAggregation(80 * time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scraping: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	for _, name := range []string{"kitbox_requests_total", "kitbox_request_latency_seconds", "kitbox_aggregation_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("scrape output missing %s", name)
		}
	}
}
