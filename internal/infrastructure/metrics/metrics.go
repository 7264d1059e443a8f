// Package metrics exposes dispatcher and executor counters via the
// standard Prometheus client, scraped from the webhook listeners'
// /webhook/metrics route alongside /webhook/health.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Invocations counts every rule invocation the dispatcher hands to the
	// executor, labeled by module filename and outcome ("ok", "trap",
	// "error").
	Invocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plaid_rule_invocations_total",
		Help: "Total rule invocations, by module and outcome.",
	}, []string{"module", "outcome"})

	// Saturated counts Enqueue calls that returned dispatcher.ErrSaturated.
	Saturated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plaid_dispatcher_saturated_total",
		Help: "Total Enqueue calls rejected because the chosen worker queue was full.",
	})

	// LogbacksEnqueued counts messages the dispatcher scheduled via LogBack.
	LogbacksEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plaid_logbacks_enqueued_total",
		Help: "Total logback-sourced messages enqueued by rule invocations.",
	})
)

func init() {
	prometheus.MustRegister(Invocations, Saturated, LogbacksEnqueued)
}

// Handler serves the registered collectors in the Prometheus exposition
// format, mounted at /webhook/metrics by the webhook generator.
func Handler() http.Handler {
	return promhttp.Handler()
}
