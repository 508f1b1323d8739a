package missions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moim",
		Name:      "verifications_total",
		Help:      "Step photo verification results by status",
	}, []string{"status"})

	rewardsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moim",
		Name:      "mission_rewards_total",
		Help:      "Successful mission finalizations",
	})
)
