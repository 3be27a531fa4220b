package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the bot.
type Metrics struct {
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	Preconditions    *prometheus.CounterVec
	RoleGrants       *prometheus.CounterVec
	PanelClicks      *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	AuditWrites      *prometheus.CounterVec
}

// NewMetrics registers all collectors on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SessionsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "authbot_sessions_started_total",
				Help: "Total number of authentication sessions opened",
			},
		),
		SessionsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authbot_sessions_finished_total",
				Help: "Total number of sessions by terminal state",
			},
			[]string{"state"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "authbot_sessions_active",
				Help: "Number of sessions waiting for a response",
			},
		),
		Preconditions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authbot_precondition_failures_total",
				Help: "Total number of rejected invocations by reason",
			},
			[]string{"reason"},
		),
		RoleGrants: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authbot_role_grants_total",
				Help: "Total number of role grant attempts by outcome",
			},
			[]string{"outcome"},
		),
		PanelClicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authbot_panel_clicks_total",
				Help: "Total number of panel clicks by result",
			},
			[]string{"result"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authbot_direct_messages_total",
				Help: "Total number of direct message notifications by result",
			},
			[]string{"result"},
		),
		AuditWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authbot_audit_writes_total",
				Help: "Total number of audit log writes by result",
			},
			[]string{"result"},
		),
	}
}

// NewNopMetrics returns collectors registered on a throwaway registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
