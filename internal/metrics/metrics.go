// Package metrics exposes measurements and scheduler activity as Prometheus
// collectors.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hazz-dev/linkmon/internal/report"
)

const namespace = "linkmon"

// Metrics implements report.Sink and scheduler.Observer.
type Metrics struct {
	mResults     *prometheus.CounterVec
	mLatency     *prometheus.HistogramVec
	mLastLatency *prometheus.GaugeVec
	mUp          *prometheus.GaugeVec
	mDownMbps    prometheus.Gauge
	mUpMbps      prometheus.Gauge

	mFires    *prometheus.CounterVec
	mMissed   *prometheus.CounterVec
	mFailures *prometheus.CounterVec
	mTaskTime *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		mResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "probe_results_total",
			Help: "Latency probe results by host and result (up, down, unparsed)",
		}, []string{"host", "result"}),
		mLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "latency_seconds",
			Help:    "Mean round-trip time per probe",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}, []string{"host"}),
		mLastLatency: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_latency_milliseconds",
			Help: "Most recent mean round-trip time",
		}, []string{"host"}),
		mUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "up",
			Help: "1 if the last measurement succeeded, 0 otherwise",
		}, []string{"host", "kind"}),
		mDownMbps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "download_mbps",
			Help: "Most recent download throughput",
		}),
		mUpMbps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "upload_mbps",
			Help: "Most recent upload throughput",
		}),
		mFires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "fires_total",
			Help: "Task callbacks invoked",
		}, []string{"task"}),
		mMissed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "missed_periods_total",
			Help: "Task periods skipped because the process was stalled or suspended",
		}, []string{"task"}),
		mFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "failures_total",
			Help: "Task callbacks that returned an error or panicked",
		}, []string{"task"}),
		mTaskTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "task_duration_seconds",
			Help:    "Task callback duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
	}
}

func (m *Metrics) Report(_ context.Context, r report.Record) {
	m.mUp.WithLabelValues(r.Host, string(r.Kind)).Set(boolGauge(r.IsUp))

	switch r.Kind {
	case report.KindLatency:
		switch {
		case !r.IsUp:
			m.mResults.WithLabelValues(r.Host, "down").Inc()
		case r.LatencyMs == nil:
			m.mResults.WithLabelValues(r.Host, "unparsed").Inc()
		default:
			m.mResults.WithLabelValues(r.Host, "up").Inc()
			m.mLatency.WithLabelValues(r.Host).Observe(*r.LatencyMs / 1000)
			m.mLastLatency.WithLabelValues(r.Host).Set(*r.LatencyMs)
		}
	case report.KindBandwidth:
		if r.DownMbps != nil {
			m.mDownMbps.Set(*r.DownMbps)
		}
		if r.UpMbps != nil {
			m.mUpMbps.Set(*r.UpMbps)
		}
	}
}

func (m *Metrics) TaskFired(task string, missed int, took time.Duration) {
	m.mFires.WithLabelValues(task).Inc()
	m.mTaskTime.WithLabelValues(task).Observe(took.Seconds())
	if missed > 0 {
		m.mMissed.WithLabelValues(task).Add(float64(missed))
	}
}

func (m *Metrics) TaskFailed(task string) {
	m.mFailures.WithLabelValues(task).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
