package register

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	awardsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "register_awards_unlocked_total",
		Help: "Award unlocks minted, by award and decider.",
	}, []string{"award", "decided_by"})

	onTimeGrants = promauto.NewCounter(prometheus.CounterOpts{
		Name: "register_on_time_grants_total",
		Help: "On Time bonus point events granted at register close.",
	})
)
