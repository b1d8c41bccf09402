package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engine"

var (
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_ingested_total", Help: "Market events persisted"},
		[]string{"type"},
	)
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_dropped_total", Help: "Market events that failed to persist or arrived after close"},
		[]string{"type"},
	)
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "scheduler_job_runs_total", Help: "Scheduler ticks by outcome"},
		[]string{"job", "status"},
	)
	Recommendations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "recommendations_total", Help: "Recommendations published"},
		[]string{"symbol", "action"},
	)
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "orders_total", Help: "Order placement attempts"},
		[]string{"symbol", "side", "result"},
	)
	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "active_subscriptions", Help: "Symbols with live market streams"},
	)
	TeamMembers = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "team_members", Help: "Live analyst/broker pairs"},
	)
	UserSessionResets = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "user_session_resets_total", Help: "Dead listen keys replaced"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsIngested,
		EventsDropped,
		JobRuns,
		Recommendations,
		Orders,
		ActiveSubscriptions,
		TeamMembers,
		UserSessionResets,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
