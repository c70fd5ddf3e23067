// Package metrics exposes assessment counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	assessmentsCreated    prometheus.Counter
	questionsMaterialized prometheus.Counter
	transitions           *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		assessmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conforma_assessments_created_total",
			Help: "Assessments created.",
		}),
		questionsMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conforma_assessment_questions_materialized_total",
			Help: "Questions materialized into assessments.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_assessment_transitions_total",
			Help: "Assessment status transitions.",
		}, []string{"to"}),
	}
	if reg != nil {
		reg.MustRegister(m.assessmentsCreated, m.questionsMaterialized, m.transitions)
	}
	return m
}

func (m *Metrics) IncAssessmentsCreated() {
	if m == nil {
		return
	}
	m.assessmentsCreated.Inc()
}

func (m *Metrics) AddQuestionsMaterialized(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.questionsMaterialized.Add(float64(n))
}

func (m *Metrics) IncTransitions(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}
