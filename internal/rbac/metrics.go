package rbac

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Gate names used as the "gate" label.
const (
	gatePermission = "permission"
	gateAdmin      = "admin"
	gateProject    = "project"
)

// Decision outcomes used as the "outcome" label.
const (
	outcomeAllowed         = "allowed"
	outcomeDenied          = "denied"
	outcomeUnauthenticated = "unauthenticated"
	outcomeBadRequest      = "bad_request"
	outcomeError           = "error"
)

// Metrics holds the authorization counters. A nil *Metrics records nothing.
type Metrics struct {
	Decisions        *prometheus.CounterVec
	UnknownRoles     prometheus.Counter
	MembershipLookup *prometheus.HistogramVec
}

// NewMetrics creates the authorization metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ot2net_authz_decisions_total",
				Help: "Authorization gate decisions by gate and outcome",
			},
			[]string{"gate", "outcome"},
		),
		UnknownRoles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ot2net_authz_unknown_role_total",
				Help: "Evaluations for roles with no permission matrix entry",
			},
		),
		MembershipLookup: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ot2net_authz_membership_lookup_seconds",
				Help:    "Project membership lookup latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(m.Decisions, m.UnknownRoles, m.MembershipLookup)
	return m
}

func (m *Metrics) decision(gate, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(gate, outcome).Inc()
}

func (m *Metrics) unknownRole() {
	if m == nil {
		return
	}
	m.UnknownRoles.Inc()
}

func (m *Metrics) membershipLookup(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.MembershipLookup.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}
