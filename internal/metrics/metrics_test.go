package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func healthzStatus(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("healthz body is not JSON: %v\n%s", err, rec.Body.String())
	}
	return rec.Code, body
}

func TestHealthz_HealthyAtStartup(t *testing.T) {
	h := NewHealthStatus()

	code, body := healthzStatus(t, h)
	if code != http.StatusOK {
		t.Fatalf("fresh process: code = %d, want 200", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy before first cycle", body["status"])
	}
}

func TestHealthz_DegradesAndRecovers(t *testing.T) {
	h := NewHealthStatus()

	h.SetBrokerOK(false)
	code, body := healthzStatus(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("broker down: code=%d status=%v, want 503 degraded", code, body["status"])
	}
	if body["broker_ok"] != false {
		t.Errorf("broker_ok = %v, want false", body["broker_ok"])
	}

	h.SetBrokerOK(true)
	h.MarkCycle()
	code, body = healthzStatus(t, h)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("after recovery: code=%d status=%v, want 200 healthy", code, body["status"])
	}

	h.SetMarkerStoreOK(false)
	code, _ = healthzStatus(t, h)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("marker store down: code = %d, want 503", code)
	}
}
