// Package metrics registers the Prometheus gauges SyncRoom exposes on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rooms is the number of live rooms in the registry.
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncroom",
		Name:      "rooms",
		Help:      "Number of active rooms.",
	})

	// Participants is the total number of participants across all rooms.
	Participants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncroom",
		Name:      "participants",
		Help:      "Number of active participants across all rooms.",
	})

	// SFURouters is the number of live per-room SFU routers.
	SFURouters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncroom",
		Subsystem: "sfu",
		Name:      "routers",
		Help:      "Number of active SFU routers.",
	})

	// SFUProducers is the number of live producers across all routers.
	SFUProducers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncroom",
		Subsystem: "sfu",
		Name:      "producers",
		Help:      "Number of active producers across all SFU routers.",
	})

	// SFUWorkersBusy is the number of workers whose circuit breaker is
	// currently open (i.e. considered unhealthy).
	SFUWorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncroom",
		Subsystem: "sfu",
		Name:      "workers_busy",
		Help:      "Number of SFU workers with an open circuit breaker.",
	})
)
