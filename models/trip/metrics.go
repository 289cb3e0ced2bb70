package trip

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds Prometheus metrics for the trip model.
type metrics struct {
	tripsCreated     prometheus.Counter
	tripsUpdated     prometheus.Counter
	versionConflicts prometheus.Counter
	mergeDetections  prometheus.Counter
}

var (
	metricsInstance *metrics
	metricsOnce     sync.Once
)

func getMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			tripsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "trips_created_total",
				Help: "Trips created",
			}),
			tripsUpdated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "trip_updates_total",
				Help: "Accepted trip updates",
			}),
			versionConflicts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "trip_version_conflicts_total",
				Help: "Updates rejected for a stale version token",
			}),
			mergeDetections: promauto.NewCounter(prometheus.CounterOpts{
				Name: "trip_merge_detections_total",
				Help: "Merge candidate detection runs",
			}),
		}
	})
	return metricsInstance
}
