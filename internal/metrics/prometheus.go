// Package metrics registers and records Prometheus metrics for the RNG
// monitor: assessment counts, per-test outcomes and p-value distributions,
// entropy source consumption, and verdict report delivery.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssessmentsRun     prometheus.Counter
	TestRuns           *prometheus.CounterVec
	TestFailures       *prometheus.CounterVec
	TestPValue         *prometheus.HistogramVec
	SourceBitsConsumed prometheus.Counter
	SourceReadErrors   prometheus.Counter
	ReportsPublished   prometheus.Counter
	ReportErrors       prometheus.Counter
	BrokerConnected    prometheus.Gauge
	BrokerReconnects   prometheus.Counter
	LastAssessmentTime prometheus.Gauge
	HealthTestFailures *prometheus.CounterVec
	MinEntropyEstimate prometheus.Gauge

	metricsMu         sync.RWMutex
	currentRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
)

func init() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	initializeMetrics(prometheus.DefaultRegisterer)
}

// SetRegisterer sets a new registerer and reinitialises all metrics,
// returning the previous registerer so it can be restored. It exists so
// tests can run against an isolated registry.
func SetRegisterer(registerer prometheus.Registerer) prometheus.Registerer {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	previous := currentRegisterer
	if currentRegisterer != nil {
		unregisterAll(currentRegisterer)
	}

	currentRegisterer = registerer
	initializeMetrics(registerer)

	return previous
}

// initializeMetrics creates all metrics using the provided registerer.
// Must be called while holding metricsMu.
func initializeMetrics(registerer prometheus.Registerer) {
	factory := promauto.With(registerer)

	AssessmentsRun = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rngcheck_assessments_total",
			Help: "Total number of assessment rounds executed",
		},
	)

	TestRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rngcheck_test_runs_total",
			Help: "Total number of statistical test executions",
		},
		[]string{"test"},
	)

	TestFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rngcheck_test_failures_total",
			Help: "Total number of statistical test failures by reason",
		},
		[]string{"test", "reason"},
	)

	TestPValue = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rngcheck_test_p_value",
			Help:    "Distribution of computed p-values per test",
			Buckets: prometheus.LinearBuckets(0, 0.05, 21),
		},
		[]string{"test"},
	)

	SourceBitsConsumed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rngcheck_source_bits_consumed_total",
			Help: "Total number of bits drawn from the entropy source",
		},
	)

	SourceReadErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rngcheck_source_read_errors_total",
			Help: "Total number of entropy source read failures",
		},
	)

	ReportsPublished = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rngcheck_reports_published_total",
			Help: "Total number of verdicts published to the broker",
		},
	)

	ReportErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rngcheck_report_errors_total",
			Help: "Total number of verdict publish failures",
		},
	)

	BrokerConnected = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "rngcheck_broker_connected",
			Help: "Whether the MQTT report broker is connected (1) or not (0)",
		},
	)

	BrokerReconnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rngcheck_broker_reconnects_total",
			Help: "Total number of MQTT broker reconnections",
		},
	)

	LastAssessmentTime = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "rngcheck_last_assessment_timestamp_seconds",
			Help: "Unix timestamp of the most recent assessment round",
		},
	)

	HealthTestFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rngcheck_health_test_failures_total",
			Help: "Total number of continuous health test failures",
		},
		[]string{"test"},
	)

	MinEntropyEstimate = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "rngcheck_min_entropy_bits_per_byte",
			Help: "Conservative min-entropy estimate of the latest sample, in bits per byte",
		},
	)
}

// unregisterAll removes all metrics from the given registerer.
// Must be called while holding metricsMu.
func unregisterAll(registerer prometheus.Registerer) {
	collectors := []prometheus.Collector{
		AssessmentsRun,
		TestRuns,
		TestFailures,
		TestPValue,
		SourceBitsConsumed,
		SourceReadErrors,
		ReportsPublished,
		ReportErrors,
		BrokerConnected,
		BrokerReconnects,
		LastAssessmentTime,
		HealthTestFailures,
		MinEntropyEstimate,
	}

	for _, collector := range collectors {
		if collector != nil {
			registerer.Unregister(collector)
		}
	}
}

// RecordAssessment counts one completed assessment round and stamps its
// completion time.
func RecordAssessment(at time.Time) {
	AssessmentsRun.Inc()
	LastAssessmentTime.Set(float64(at.Unix()))
}

// RecordTestPass records a passing test run together with its p-value.
func RecordTestPass(test string, pValue float64) {
	TestRuns.WithLabelValues(test).Inc()
	TestPValue.WithLabelValues(test).Observe(pValue)
}

// RecordTestFailure records a failed test run with the failure reason.
// A finite p-value (bad_p_value rejections) is still observed so the
// histogram covers the full distribution.
func RecordTestFailure(test, reason string, pValue float64, pValueKnown bool) {
	TestRuns.WithLabelValues(test).Inc()
	TestFailures.WithLabelValues(test, reason).Inc()
	if pValueKnown {
		TestPValue.WithLabelValues(test).Observe(pValue)
	}
}

// RecordSourceBits counts bits drawn from the entropy source.
func RecordSourceBits(bits int) {
	SourceBitsConsumed.Add(float64(bits))
}

// RecordSourceReadError counts one entropy source read failure.
func RecordSourceReadError() {
	SourceReadErrors.Inc()
}

// RecordReportPublished counts one successfully published verdict.
func RecordReportPublished() {
	ReportsPublished.Inc()
}

// RecordReportError counts one failed verdict publish attempt.
func RecordReportError() {
	ReportErrors.Inc()
}

// SetBrokerConnected updates the broker connectivity gauge.
func SetBrokerConnected(connected bool) {
	if connected {
		BrokerConnected.Set(1)
	} else {
		BrokerConnected.Set(0)
	}
}

// RecordBrokerReconnect counts one broker reconnection.
func RecordBrokerReconnect() {
	BrokerReconnects.Inc()
}

// RecordHealthTestFailure counts one continuous health test failure.
func RecordHealthTestFailure(test string) {
	HealthTestFailures.WithLabelValues(test).Inc()
}

// SetMinEntropyEstimate updates the min-entropy gauge for the latest
// sample, in bits per byte.
func SetMinEntropyEstimate(bitsPerByte float64) {
	MinEntropyEstimate.Set(bitsPerByte)
}
