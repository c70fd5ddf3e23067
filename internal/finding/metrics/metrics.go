// Package metrics exposes the finding workflow counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	opened    *prometheus.CounterVec
	generated prometheus.Counter
	actions   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_findings_opened_total",
			Help: "Findings opened, by severity.",
		}, []string{"severity"}),
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conforma_findings_generated_total",
			Help: "Findings opened by the assessment generator.",
		}),
		actions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conforma_remediation_actions_total",
			Help: "Remediation actions created.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.opened, m.generated, m.actions)
	}
	return m
}

func (m *Metrics) IncFindingsOpened(severity string) {
	if m == nil {
		return
	}
	m.opened.WithLabelValues(severity).Inc()
}

func (m *Metrics) IncGenerated() {
	if m == nil {
		return
	}
	m.generated.Inc()
}

func (m *Metrics) IncActionsCreated() {
	if m == nil {
		return
	}
	m.actions.Inc()
}
