// Package metrics exposes Prometheus counters for the recurrence engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SweepMaterialized counts occurrences written by the catch-up sweep.
	SweepMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spendify_sweep_materialized_total",
		Help: "Occurrences materialized by the catch-up sweep.",
	})

	// SweepSkipped counts templates another sweep advanced first.
	SweepSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spendify_sweep_skipped_total",
		Help: "Templates skipped because a concurrent sweep already advanced them.",
	})

	// SweepFailures counts per-template failures the sweep isolated.
	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spendify_sweep_failures_total",
		Help: "Templates that failed to materialize or advance.",
	})

	// ExpensesCreated counts records written through the add-expense path,
	// labeled occurrence or template.
	ExpensesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spendify_expenses_created_total",
		Help: "Expense records created, by record kind.",
	}, []string{"kind"})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
