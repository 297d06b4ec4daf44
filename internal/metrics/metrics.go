// Package metrics provides Prometheus metrics for the format pipeline.
package metrics

import (
	"maps"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/formatsync/internal/format"
)

const namespace = "formatsync"

var (
	linesClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "lines_total",
		Help:      "Log lines seen, by recognized signal kind",
	}, []string{"kind"})

	formatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "detection",
		Name:      "requests_total",
		Help:      "Format requests emitted by detection, by reason",
	}, []string{"reason"})

	droppedRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "superseded_requests_total",
		Help:      "Requests dropped from a full apply queue",
	})

	negotiationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "negotiation",
		Name:      "outcomes_total",
		Help:      "Negotiation outcomes",
	}, []string{"outcome"})

	applyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "negotiation",
		Name:      "apply_duration_seconds",
		Help:      "Time spent reconfiguring the output device",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	logSourceRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "logsource",
		Name:      "restarts_total",
		Help:      "Log source restarts, by reason",
	}, []string{"reason"})

	devicesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "devices",
		Name:      "eligible",
		Help:      "Output devices eligible for synchronization",
	})

	activeSampleRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "sample_rate_hz",
		Help:      "Sample rate last applied to the device",
	}, []string{"device_id"})

	activeBitDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "bit_depth",
		Help:      "Bit depth last applied to the device",
	}, []string{"device_id"})

	// Local cache for the status API.
	summary   Summary
	summaryMu sync.RWMutex
)

// Summary holds counter totals for the status API.
type Summary struct {
	Lines      map[string]uint64 `json:"lines"`
	Requests   map[string]uint64 `json:"requests"`
	Outcomes   map[string]uint64 `json:"outcomes"`
	Superseded uint64            `json:"superseded"`
	Restarts   uint64            `json:"log_source_restarts"`
	Devices    int               `json:"devices"`
}

func bump(m *map[string]uint64, key string) {
	summaryMu.Lock()
	defer summaryMu.Unlock()
	if *m == nil {
		*m = make(map[string]uint64)
	}
	(*m)[key]++
}

// RecordLine counts a log line by signal kind ("unrecognized" for none).
func RecordLine(kind string) {
	linesClassified.WithLabelValues(kind).Inc()
	bump(&summary.Lines, kind)
}

// RecordRequest counts an emitted format request.
func RecordRequest(reason string) {
	formatRequests.WithLabelValues(reason).Inc()
	bump(&summary.Requests, reason)
}

// RecordDroppedRequest counts a request superseded in the apply queue.
func RecordDroppedRequest() {
	droppedRequests.Inc()
	summaryMu.Lock()
	summary.Superseded++
	summaryMu.Unlock()
}

// RecordOutcome counts a negotiation outcome.
func RecordOutcome(outcome string) {
	negotiationOutcomes.WithLabelValues(outcome).Inc()
	bump(&summary.Outcomes, outcome)
}

// ObserveApply records how long a device write took.
func ObserveApply(seconds float64) {
	applyDuration.Observe(seconds)
}

// RecordLogSourceRestart counts a log source restart.
func RecordLogSourceRestart(reason string) {
	logSourceRestarts.WithLabelValues(reason).Inc()
	summaryMu.Lock()
	summary.Restarts++
	summaryMu.Unlock()
}

// SetDevices sets the number of eligible devices.
func SetDevices(n int) {
	devicesGauge.Set(float64(n))
	summaryMu.Lock()
	summary.Devices = n
	summaryMu.Unlock()
}

// SetActiveFormat records the format applied to a device.
func SetActiveFormat(deviceID string, f format.Descriptor) {
	activeSampleRate.WithLabelValues(deviceID).Set(f.SampleRateHz)
	activeBitDepth.WithLabelValues(deviceID).Set(float64(f.BitDepth))
}

// Snapshot returns a copy of the counter totals.
func Snapshot() Summary {
	summaryMu.RLock()
	defer summaryMu.RUnlock()
	return Summary{
		Lines:      cloneCounts(summary.Lines),
		Requests:   cloneCounts(summary.Requests),
		Outcomes:   cloneCounts(summary.Outcomes),
		Superseded: summary.Superseded,
		Restarts:   summary.Restarts,
		Devices:    summary.Devices,
	}
}

func cloneCounts(m map[string]uint64) map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	return maps.Clone(m)
}

// Handler returns the Prometheus metrics HTTP handler.
// This collects all promauto-registered metrics automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}
