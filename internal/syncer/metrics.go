package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "register_sync_runs_total",
		Help: "Full sync passes, by outcome (completed, skipped).",
	}, []string{"outcome"})

	pullErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "register_sync_pull_errors_total",
		Help: "Failed remote pulls by collection.",
	}, []string{"collection"})

	pushedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "register_sync_pushed_records_total",
		Help: "Records successfully pushed to the remote mirror, by collection.",
	}, []string{"collection"})

	pushErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "register_sync_push_errors_total",
		Help: "Failed remote pushes by collection.",
	}, []string{"collection"})
)
