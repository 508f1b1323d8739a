//nolint:gochecknoglobals
package meetings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	joinsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moim",
		Name:      "meeting_joins_total",
		Help:      "The total number of successful meeting joins",
	})

	leavesMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moim",
		Name:      "meeting_leaves_total",
		Help:      "The total number of voluntary leaves",
	})

	cancelsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moim",
		Name:      "meeting_cancels_total",
		Help:      "The total number of host cancellations",
	})

	noShowsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moim",
		Name:      "meeting_no_shows_total",
		Help:      "The total number of no-show marks",
	})

	settlementMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moim",
		Name:      "settlement_points_total",
		Help:      "Points settled, by ledger entry type",
	}, []string{"type"})
)
