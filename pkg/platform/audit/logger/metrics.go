package logger

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"clinicaudit/pkg/platform/sentinel"
)

// Metrics holds Prometheus metrics for the audit write path.
type Metrics struct {
	EventsRecorded *prometheus.CounterVec
	WriteFailures  *prometheus.CounterVec
	WriteDuration  prometheus.Histogram
	Exports        *prometheus.CounterVec
	Purged         prometheus.Counter
}

// NewMetrics registers the audit metrics on reg. Pass a fresh registry in
// tests so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicaudit_events_recorded_total",
			Help: "Total number of audit events persisted",
		}, []string{"event_type"}),
		WriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicaudit_write_failures_total",
			Help: "Total number of audit events that could not be persisted",
		}, []string{"event_type", "reason"}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinicaudit_write_duration_seconds",
			Help:    "Time spent persisting one audit event",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicaudit_exports_total",
			Help: "Total number of audit exports by format and outcome",
		}, []string{"format", "outcome"}),
		Purged: factory.NewCounter(prometheus.CounterOpts{
			Name: "clinicaudit_events_purged_total",
			Help: "Total number of audit events removed by retention runs",
		}),
	}
}

func (m *Metrics) incRecorded(eventType string) {
	if m == nil {
		return
	}
	m.EventsRecorded.WithLabelValues(eventType).Inc()
}

func (m *Metrics) incWriteFailure(eventType string, err error) {
	if m == nil {
		return
	}
	m.WriteFailures.WithLabelValues(eventType, failureReason(err)).Inc()
}

func (m *Metrics) observeWrite(seconds float64) {
	if m == nil {
		return
	}
	m.WriteDuration.Observe(seconds)
}

func (m *Metrics) incExport(format, outcome string) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(format, outcome).Inc()
}

func (m *Metrics) addPurged(n int64) {
	if m == nil {
		return
	}
	m.Purged.Add(float64(n))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrWriteConflict):
		return "conflict"
	case errors.Is(err, sentinel.ErrDuplicateEvent):
		return "duplicate"
	case errors.Is(err, sentinel.ErrInvalidEvent):
		return "invalid"
	case errors.Is(err, sentinel.ErrStorageUnavailable):
		return "unavailable"
	}
	return "other"
}
