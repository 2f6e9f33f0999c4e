package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts ledger operations by name and outcome code ("ok" or the error code).
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league",
		Name:      "operations_total",
		Help:      "Ledger operations by operation and result.",
	}, []string{"op", "result"})

	// PayoutsEther accumulates the ether value paid out, by transfer kind.
	PayoutsEther = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league",
		Name:      "payouts_ether_total",
		Help:      "Ether paid out of league custody, by kind.",
	}, []string{"kind"})

	// Settlements counts finalized leagues by result ("winner", "push", "arbitrated").
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league",
		Name:      "settlements_total",
		Help:      "Settled leagues by resolution path.",
	}, []string{"result"})

	// DroppedEvents counts observer events discarded because the queue was full.
	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "league",
		Name:      "dropped_events_total",
		Help:      "Observer events dropped on a full queue.",
	})

	KeeperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league",
		Name:      "keeper_finalizations_total",
		Help:      "Keeper finalize attempts by result.",
	}, []string{"result"})
)
