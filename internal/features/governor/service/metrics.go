package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tools-cx-app/gpu-governor/internal/features/governor/domain"
)

// MetricsCollector manages Prometheus metrics for the governor
type MetricsCollector struct {
	indexGauge       prometheus.Gauge
	freqGauge        prometheus.Gauge
	utilizationGauge *prometheus.GaugeVec
	temperatureGauge prometheus.Gauge
	appliedCounter   prometheus.Counter
	errorCounter     *prometheus.CounterVec
	reloadCounter    prometheus.Counter
	tickLatency      prometheus.Histogram
	registered       bool
	mu               sync.Mutex
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		indexGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpu_governor_opp_index",
			Help: "Currently commanded OPP table index",
		}),
		freqGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpu_governor_frequency_khz",
			Help: "Currently commanded GPU frequency in KHz",
		}),
		utilizationGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gpu_governor_utilization_percent",
				Help: "GPU utilization in percent",
			},
			[]string{"type"}, // type is "current" or "window_avg"
		),
		temperatureGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpu_governor_temperature_milli_c",
			Help: "GPU thermal zone temperature in milli-degrees Celsius",
		}),
		appliedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpu_governor_changes_applied_total",
			Help: "Count of operating point changes written to hardware",
		}),
		errorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpu_governor_hardware_errors_total",
				Help: "Count of hardware access failures by kind",
			},
			[]string{"kind"}, // kind is "read" or "write"
		),
		reloadCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpu_governor_config_reloads_total",
			Help: "Count of policy configuration hot reloads",
		}),
		tickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpu_governor_tick_duration_seconds",
			Help:    "Duration of one control loop tick",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs to ~400ms
		}),
	}
}

// Register registers metrics with Prometheus
func (m *MetricsCollector) Register() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return
	}

	prometheus.MustRegister(m.indexGauge)
	prometheus.MustRegister(m.freqGauge)
	prometheus.MustRegister(m.utilizationGauge)
	prometheus.MustRegister(m.temperatureGauge)
	prometheus.MustRegister(m.appliedCounter)
	prometheus.MustRegister(m.errorCounter)
	prometheus.MustRegister(m.reloadCounter)
	prometheus.MustRegister(m.tickLatency)

	m.registered = true
}

// ObserveSnapshot updates the gauges from a published tick snapshot
func (m *MetricsCollector) ObserveSnapshot(snapshot *domain.Snapshot) {
	m.indexGauge.Set(float64(snapshot.State.CurrentIndex))
	m.freqGauge.Set(float64(snapshot.CurrentFreqKHz))
	m.utilizationGauge.WithLabelValues("current").Set(float64(snapshot.LastSample.Utilization))
	m.utilizationGauge.WithLabelValues("window_avg").Set(snapshot.AvgUtilization)
	if snapshot.LastSample.TempValid {
		m.temperatureGauge.Set(float64(snapshot.LastSample.TempMilliC))
	}
}

// RecordApplied counts an applied operating point change
func (m *MetricsCollector) RecordApplied() {
	m.appliedCounter.Inc()
}

// RecordReadError counts a hardware read failure
func (m *MetricsCollector) RecordReadError() {
	m.errorCounter.WithLabelValues("read").Inc()
}

// RecordWriteError counts a hardware write failure
func (m *MetricsCollector) RecordWriteError() {
	m.errorCounter.WithLabelValues("write").Inc()
}

// RecordReload counts a configuration hot reload
func (m *MetricsCollector) RecordReload() {
	m.reloadCounter.Inc()
}

// ObserveTickDuration records one tick's duration in seconds
func (m *MetricsCollector) ObserveTickDuration(seconds float64) {
	m.tickLatency.Observe(seconds)
}
