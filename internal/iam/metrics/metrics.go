package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts account and login activity. A nil receiver is safe so
// callers can skip wiring in tests.
type Metrics struct {
	usersCreated prometheus.Counter
	logins       *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		usersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_users_created_total",
			Help: "Number of user accounts created",
		}),
		logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementUsersCreated() {
	if m == nil {
		return
	}
	m.usersCreated.Inc()
}

func (m *Metrics) IncrementLogins(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}
