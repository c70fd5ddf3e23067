package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tenancy module.
type Metrics struct {
	TenantsCreated    prometheus.Counter
	TenantTransitions *prometheus.CounterVec
}

// New creates a Metrics instance with all tenancy metrics registered.
func New() *Metrics {
	return &Metrics{
		TenantsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "conforma_tenants_created_total",
			Help: "Total number of tenants created",
		}),
		TenantTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "conforma_tenant_transitions_total",
			Help: "Total tenant status transitions by target status",
		}, []string{"target"}),
	}
}

// IncrementTenantsCreated records a successful tenant creation.
func (m *Metrics) IncrementTenantsCreated() {
	m.TenantsCreated.Inc()
}

// IncrementTransition records a tenant status transition.
func (m *Metrics) IncrementTransition(target string) {
	m.TenantTransitions.WithLabelValues(target).Inc()
}
