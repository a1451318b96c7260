package world

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	mapLabel = "map"
)

var (
	worldMapCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_map_count",
		Help: "The number of running maps.",
	})

	worldMapCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "world_map_count_total",
		Help: "The total number of maps.",
	})

	worldObjectCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "world_object_count",
		Help: "The number of game objects.",
	}, []string{mapLabel})

	worldObjectCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "world_object_count_total",
		Help: "The total number of spawned game objects.",
	}, []string{mapLabel})
)

func instrumentIncreaseMapGauge() {
	worldMapCount.Inc()
	worldMapCountTotal.Inc()
}

func instrumentDecreaseMapGauge() {
	worldMapCount.Dec()
}

func instrumentObjectCount(mapName string, delta int) {
	worldObjectCount.
		With(prometheus.Labels{mapLabel: mapName}).
		Add(float64(delta))

	if delta > 0 {
		worldObjectCountTotal.
			With(prometheus.Labels{mapLabel: mapName}).
			Add(float64(delta))
	}
}

func instrumentResetObjectGauge(mapName string) {
	worldObjectCount.DeleteLabelValues(mapName)
}
