package metrics

import "github.com/prometheus/client_golang/prometheus"

// FunnelMetrics exposes counters/histograms for the booking funnel.
type FunnelMetrics struct {
	probeDuration *prometheus.HistogramVec
	probeDays     *prometheus.CounterVec
	staleProbes   prometheus.Counter
	intents       *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	transitions   *prometheus.CounterVec
}

func NewFunnelMetrics(reg prometheus.Registerer) *FunnelMetrics {
	m := &FunnelMetrics{
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "probe_duration_seconds",
			Help:      "Duration of a full month availability probe",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		probeDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "probe_days_total",
			Help:      "Per-day availability query results",
		}, []string{"result"}),
		staleProbes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "calendar",
			Name:      "stale_probes_total",
			Help:      "Probe results discarded because the displayed month changed",
		}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "payments",
			Name:      "intents_total",
			Help:      "Payment intent creation attempts",
		}, []string{"status"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "payments",
			Name:      "confirmations_total",
			Help:      "Payment confirmation attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "funnel",
			Name:      "transitions_total",
			Help:      "Funnel stage transitions",
		}, []string{"from", "to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.probeDuration, m.probeDays, m.staleProbes, m.intents, m.confirmations, m.transitions)
	return m
}

func (m *FunnelMetrics) ObserveProbe(result string, seconds float64) {
	if m == nil {
		return
	}
	m.probeDuration.WithLabelValues(result).Observe(seconds)
}

func (m *FunnelMetrics) ObserveProbeDay(result string) {
	if m == nil {
		return
	}
	m.probeDays.WithLabelValues(result).Inc()
}

func (m *FunnelMetrics) ObserveStaleProbe() {
	if m == nil {
		return
	}
	m.staleProbes.Inc()
}

func (m *FunnelMetrics) ObserveIntent(status string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(status).Inc()
}

func (m *FunnelMetrics) ObserveConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

func (m *FunnelMetrics) ObserveTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}
