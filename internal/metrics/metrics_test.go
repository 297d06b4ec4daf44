package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/formatsync/internal/format"
)

func TestCountersAndSummary(t *testing.T) {
	before := Snapshot()

	RecordLine("format-described")
	RecordLine("format-described")
	RecordRequest("described-in-window")
	RecordOutcome("applied")
	RecordDroppedRequest()
	RecordLogSourceRestart("exit")

	if v := testutil.ToFloat64(linesClassified.WithLabelValues("format-described")); v < 2 {
		t.Errorf("lines counter = %v, want >= 2", v)
	}
	if v := testutil.ToFloat64(negotiationOutcomes.WithLabelValues("applied")); v < 1 {
		t.Errorf("outcomes counter = %v, want >= 1", v)
	}

	after := Snapshot()
	if got := after.Lines["format-described"] - before.Lines["format-described"]; got != 2 {
		t.Errorf("summary lines delta = %d, want 2", got)
	}
	if after.Superseded-before.Superseded != 1 {
		t.Errorf("superseded delta = %d, want 1", after.Superseded-before.Superseded)
	}
	if after.Restarts-before.Restarts != 1 {
		t.Errorf("restarts delta = %d, want 1", after.Restarts-before.Restarts)
	}

	// Returned maps are copies
	after.Lines["format-described"] = 0
	if Snapshot().Lines["format-described"] == 0 {
		t.Error("summary cache was modified through snapshot")
	}
}

func TestActiveFormatGauges(t *testing.T) {
	SetActiveFormat("dac", format.Descriptor{BitDepth: 24, SampleRateHz: 96000, Channels: 2, Tag: "lpcm"})

	if v := testutil.ToFloat64(activeSampleRate.WithLabelValues("dac")); v != 96000 {
		t.Errorf("sample rate gauge = %v, want 96000", v)
	}
	if v := testutil.ToFloat64(activeBitDepth.WithLabelValues("dac")); v != 24 {
		t.Errorf("bit depth gauge = %v, want 24", v)
	}

	SetDevices(3)
	if v := testutil.ToFloat64(devicesGauge); v != 3 {
		t.Errorf("devices gauge = %v, want 3", v)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordRequest("advance-marker")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `formatsync_detection_requests_total{reason="advance-marker"}`) {
		t.Error("request counter missing from exposition")
	}
}
