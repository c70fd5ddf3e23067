// Package metrics exposes the response workflow counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	submitted        prometheus.Counter
	evidenceUploaded prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conforma_responses_submitted_total",
			Help: "Responses submitted for review.",
		}),
		evidenceUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conforma_evidence_uploaded_total",
			Help: "Evidence files uploaded.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submitted, m.evidenceUploaded)
	}
	return m
}

func (m *Metrics) IncSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *Metrics) IncEvidenceUploaded() {
	if m == nil {
		return
	}
	m.evidenceUploaded.Inc()
}
