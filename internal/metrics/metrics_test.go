package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestInstrumentHandlerRecordsMetrics(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/provision/job-123/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	if !metricCounterGreaterOrEqual(t, "beacon_http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/api/provision/:id/status",
		"status": "202",
	}, 1) {
		t.Fatalf("expected http request counter to increment")
	}

	if !metricHistogramCountGreaterOrEqual(t, "beacon_http_request_duration_seconds", map[string]string{
		"method": "GET",
		"path":   "/api/provision/:id/status",
	}, 1) {
		t.Fatalf("expected http duration histogram to record samples")
	}
}

func TestInstrumentHandlerMetricsPathPassthrough(t *testing.T) {
	called := false
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected /metrics path to pass through to handler")
	}
}

func TestRecordPhaseTransitionAndDuration(t *testing.T) {
	RecordPhaseTransition("configuring_dns", "completed")
	if !metricCounterGreaterOrEqual(t, "beacon_provisioning_phase_transitions_total", map[string]string{
		"phase":   "configuring_dns",
		"outcome": "completed",
	}, 1) {
		t.Fatal("expected phase transition counter to increment")
	}

	RecordPhaseDuration("configuring_dns", 2*time.Second)
	if !metricHistogramCountGreaterOrEqual(t, "beacon_provisioning_phase_duration_seconds", map[string]string{
		"phase": "configuring_dns",
	}, 1) {
		t.Fatal("expected phase duration histogram to record")
	}
}

func TestRecordProviderCall(t *testing.T) {
	RecordProviderCall("hetzner", "provision", nil)
	if !metricCounterGreaterOrEqual(t, "beacon_provider_calls_total", map[string]string{
		"provider":  "hetzner",
		"operation": "provision",
		"outcome":   "success",
	}, 1) {
		t.Fatal("expected provider call success counter to increment")
	}

	RecordProviderCall("hetzner", "provision", fmt.Errorf("boom"))
	if !metricCounterGreaterOrEqual(t, "beacon_provider_calls_total", map[string]string{
		"provider":  "hetzner",
		"operation": "provision",
		"outcome":   "error",
	}, 1) {
		t.Fatal("expected provider call error counter to increment")
	}
}

func TestRecordDunningEscalation(t *testing.T) {
	RecordDunningEscalation("suspended")
	if !metricCounterGreaterOrEqual(t, "beacon_dunning_escalations_total", map[string]string{
		"stage": "suspended",
	}, 1) {
		t.Fatal("expected dunning escalation counter to increment")
	}
}

func TestSetActiveJobs(t *testing.T) {
	SetActiveJobs(3)
	if !metricGaugeEquals(t, "beacon_provisioning_jobs_active", nil, 3) {
		t.Fatal("expected jobs active gauge to be set")
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/", "/"},
		{"/api/health", "/api/health"},
		{"/api/provision", "/api/provision"},
		{"/api/provision/job-1", "/api/provision/job-1"},
		{"/api/provision/job-1/status", "/api/provision/:id/status"},
		{"/api/provision/job-1/status/", "/api/provision/:id/status"},
		{"/metrics", "/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := canonicalPath(tt.input)
			if result != tt.expected {
				t.Errorf("canonicalPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	sr.WriteHeader(http.StatusNotFound)
	if sr.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", sr.status)
	}

	rec2 := httptest.NewRecorder()
	sr2 := &statusRecorder{ResponseWriter: rec2, status: 0}
	n, err := sr2.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes written, got %d", n)
	}
	if sr2.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", sr2.status)
	}
}

func TestHandler(t *testing.T) {
	h := Handler()
	if h == nil {
		t.Fatal("Handler() should return non-nil handler")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected non-empty metrics response")
	}
}

func metricCounterGreaterOrEqual(t *testing.T, name string, labels map[string]string, min float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue() >= min
			}
		}
	}
	return false
}

func metricGaugeEquals(t *testing.T, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetGauge() != nil {
				return metric.GetGauge().GetValue() == expected
			}
		}
	}
	return false
}

func metricHistogramCountGreaterOrEqual(t *testing.T, name string, labels map[string]string, min uint64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetHistogram() != nil {
				return metric.GetHistogram().GetSampleCount() >= min
			}
		}
	}
	return false
}

func labelsMatch(metric *io_prometheus_client.Metric, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	matched := 0
	for _, lbl := range metric.GetLabel() {
		if val, ok := labels[lbl.GetName()]; ok && val == lbl.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}
