package flow

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	verdicts       *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	lookupFailures *prometheus.CounterVec
	active         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authwidget", Name: "access_verdicts_total",
			Help: "Reputation verdicts by result.",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authwidget", Name: "submissions_total",
			Help: "Form submissions by form type and outcome.",
		}, []string{"form", "outcome"}),
		lookupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authwidget", Name: "lookup_failures_total",
			Help: "Tenant, branding, text and role lookups that failed.",
		}, []string{"lookup"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "authwidget", Name: "sessions_active",
			Help: "Form sessions currently held in the registry.",
		}),
	}
	reg.MustRegister(m.verdicts, m.submissions, m.lookupFailures, m.active)
	return m
}

func (m *Metrics) verdict(blocked bool) {
	if m == nil {
		return
	}
	if blocked {
		m.verdicts.WithLabelValues("blocked").Inc()
	} else {
		m.verdicts.WithLabelValues("allowed").Inc()
	}
}

func (m *Metrics) submission(form, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(form, outcome).Inc()
}

// LookupFailed is handed to the render config loader as its failure hook.
func (m *Metrics) LookupFailed(lookup string) {
	if m == nil {
		return
	}
	m.lookupFailures.WithLabelValues(lookup).Inc()
}

func (m *Metrics) sessions(delta float64) {
	if m == nil {
		return
	}
	m.active.Add(delta)
}
