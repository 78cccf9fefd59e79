package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/phase-dimmer/internal/status"
)

func newTestTracker() *status.Tracker {
	tr := status.NewTracker(time.Now(), status.Config{
		TickMicros: 50,
		PollMs:     50,
		Broker:     "tcp://broker:1883",
		HTTPAddr:   ":8080",
	})
	tr.SetCalibration(status.Calibration{MinDelay: 61, MaxDelay: 157, AvgHalfCycle: 166})
	tr.Update(109, 50, "DELAY", false, status.Counts{EdgesAccepted: 42, Triggers: 40})
	return tr
}

func serveRequest(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	srv := New(":0", newTestTracker())
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestIndexPage(t *testing.T) {
	rec := serveRequest(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}

	body, _ := io.ReadAll(rec.Body)
	page := string(body)
	for _, want := range []string{"Phase Dimmer", "DELAY", "min=61", "max=157", "50.0%"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIndexPageBeforeCalibration(t *testing.T) {
	srv := New(":0", status.NewTracker(time.Now(), status.Config{}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "CALIBRATING") {
		t.Error("page should show calibration in progress")
	}
}

func TestJSONEndpoint(t *testing.T) {
	rec := serveRequest(t, "/index.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var parsed status.StatusJSON
	if err := json.NewDecoder(rec.Body).Decode(&parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Level != 109 {
		t.Errorf("level = %d", parsed.Status.Level)
	}
	if parsed.Status.Counts.EdgesAccepted != 42 {
		t.Errorf("counts = %+v", parsed.Status.Counts)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	rec := serveRequest(t, "/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
