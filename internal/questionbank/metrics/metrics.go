// Package metrics exposes question bank counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	questionsCreated prometheus.Counter
	mapsCreated      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		questionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conforma_questions_created_total",
			Help: "Bank questions created.",
		}),
		mapsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conforma_control_question_maps_created_total",
			Help: "Control-question mappings created.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.questionsCreated, m.mapsCreated)
	}
	return m
}

func (m *Metrics) IncQuestionsCreated() {
	if m == nil {
		return
	}
	m.questionsCreated.Inc()
}

func (m *Metrics) IncMapsCreated() {
	if m == nil {
		return
	}
	m.mapsCreated.Inc()
}

func (m *Metrics) AddMapsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mapsCreated.Add(float64(n))
}
