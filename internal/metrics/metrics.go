// Package metrics declares the Prometheus collectors of the engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_bookings_total",
			Help: "Booking lifecycle transitions by outcome",
		},
		[]string{"outcome"},
	)

	SeatConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_seat_conflicts_total",
			Help: "Hold acquisitions rejected because a seat was taken or disabled",
		},
	)

	SweepReclaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_sweep_reclaimed_total",
			Help: "Entities reclaimed by the expiry sweeper",
		},
		[]string{"kind"},
	)

	WaitlistNotifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_waitlist_notified_total",
			Help: "Waiting-list entries offered capacity, by allocation type",
		},
		[]string{"type"},
	)

	BroadcastFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_broadcast_failures_total",
			Help: "Realtime publishes that failed",
		},
		[]string{"publisher"},
	)

	PoolAvailableUnits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reservation_pool_available_units",
			Help: "Last computed available units per pool",
		},
		[]string{"pool_id"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reservation_operation_duration_seconds",
			Help:    "Latency of engine operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// ObserveSince records the time elapsed since start for an operation.
// Use it as: defer metrics.ObserveSince("create", time.Now())
func ObserveSince(operation string, start time.Time) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// SetAvailable records the latest available count of a pool.
func SetAvailable(poolID uint64, available int) {
	PoolAvailableUnits.WithLabelValues(strconv.FormatUint(poolID, 10)).Set(float64(available))
}
