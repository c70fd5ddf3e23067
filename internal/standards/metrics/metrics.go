package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	standardsCreated prometheus.Counter
	versionsLocked   prometheus.Counter
	controlsImported prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		standardsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_standards_created_total",
			Help: "Number of standards created",
		}),
		versionsLocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_standard_versions_locked_total",
			Help: "Number of standard versions locked",
		}),
		controlsImported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_controls_imported_total",
			Help: "Number of control nodes bulk-imported",
		}),
	}
}

func (m *Metrics) IncrementStandardsCreated() {
	if m == nil {
		return
	}
	m.standardsCreated.Inc()
}

func (m *Metrics) IncrementVersionsLocked() {
	if m == nil {
		return
	}
	m.versionsLocked.Inc()
}

func (m *Metrics) AddControlsImported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.controlsImported.Add(float64(n))
}
