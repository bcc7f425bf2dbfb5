package signer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "txsign"
	metricsSubsystem = "signer"
)

// Metrics holds the counters updated while signing. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	inputsProcessed prometheus.Counter
	inputsComplete  prometheus.Counter
	inputErrors     *prometheus.CounterVec
	sigsExtracted   prometheus.Counter
	signDuration    prometheus.Histogram
}

// NewMetrics creates the signer metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		inputsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "inputs_processed_total",
			Help:      "Number of transaction inputs processed",
		}),
		inputsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "inputs_complete_total",
			Help:      "Number of inputs left completely signed",
		}),
		inputErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "input_errors_total",
				Help:      "Number of incomplete inputs by reason",
			},
			[]string{"reason"},
		),
		sigsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "signatures_extracted_total",
			Help:      "Number of signatures recovered from inputs",
		}),
		signDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sign_duration_seconds",
			Help:      "Time spent signing a transaction or packet",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	collectors := []prometheus.Collector{
		m.inputsProcessed, m.inputsComplete, m.inputErrors,
		m.sigsExtracted, m.signDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// observeInput records the outcome of one input.
func (m *Metrics) observeInput(complete bool, reason string,
	extracted int) {

	if m == nil {
		return
	}

	m.inputsProcessed.Inc()
	m.sigsExtracted.Add(float64(extracted))
	if complete {
		m.inputsComplete.Inc()
		return
	}
	m.inputErrors.WithLabelValues(reason).Inc()
}

// observeDuration records the time spent on one signing call.
func (m *Metrics) observeDuration(seconds float64) {
	if m == nil {
		return
	}

	m.signDuration.Observe(seconds)
}
