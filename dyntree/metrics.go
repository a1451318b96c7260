package dyntree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	treeLabel  = "tree"
	queryLabel = "query"
	hitLabel   = "hit"
)

const (
	queryFirstHit    = "first_hit"
	queryIsVisible   = "is_visible"
	queryHitPosition = "hit_position"
	queryHeight      = "ground_height"
)

var (
	dyntreeLeafCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dyntree_leaf_count",
		Help: "The number of leaves stored in dynamic trees.",
	}, []string{treeLabel})

	dyntreeRebalances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyntree_rebalances_total",
		Help: "The number of rebalance passes.",
	}, []string{treeLabel})

	dyntreeRebuiltCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyntree_rebuilt_cells_total",
		Help: "The number of grid cells rebuilt by rebalance passes.",
	}, []string{treeLabel})

	dyntreeRebalanceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dyntree_rebalance_duration",
		Help:    "The time to run a rebalance pass.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{treeLabel})

	dyntreeQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyntree_queries_total",
		Help: "The number of ray queries.",
	}, []string{
		treeLabel,
		queryLabel,
		hitLabel,
	})
)

func instrumentLeafCount(tree string, count int) {
	dyntreeLeafCount.
		With(prometheus.Labels{treeLabel: tree}).
		Set(float64(count))
}

func instrumentRebalance(tree string, cells int, duration time.Duration) {
	labels := prometheus.Labels{treeLabel: tree}
	dyntreeRebalances.With(labels).Inc()
	dyntreeRebuiltCells.With(labels).Add(float64(cells))
	dyntreeRebalanceDuration.With(labels).Observe(duration.Seconds())
}

func instrumentQuery(tree string, query string, hit bool) {
	hitValue := "false"
	if hit {
		hitValue = "true"
	}

	dyntreeQueries.
		With(prometheus.Labels{
			treeLabel:  tree,
			queryLabel: query,
			hitLabel:   hitValue,
		}).
		Inc()
}
