package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	entriesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "darshan",
			Name:      "gate_entries_total",
			Help:      "Count of successful gate entries by temple.",
		},
		[]string{"temple_id"},
	)

	exitsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "darshan",
			Name:      "gate_exits_total",
			Help:      "Count of successful gate exits by temple.",
		},
		[]string{"temple_id"},
	)

	scanConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "darshan",
			Name:      "scan_conflicts_total",
			Help:      "Count of scans rejected by the conditional status update.",
		},
	)

	capacityRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "darshan",
			Name:      "capacity_rejections_total",
			Help:      "Count of bookings rejected because the slot was full.",
		},
	)

	counterAnomalies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "darshan",
			Name:      "counter_anomalies_total",
			Help:      "Count of live counter anomalies (clamped negatives, failed increments).",
		},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "darshan",
			Name:      "reconcile_runs_total",
			Help:      "Count of counter reconciliations by trigger.",
		},
		[]string{"trigger"},
	)

	liveOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "darshan",
			Name:      "live_occupancy",
			Help:      "Current live occupancy by temple.",
		},
		[]string{"temple_id"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			entriesRecorded, exitsRecorded, scanConflicts,
			capacityRejections, counterAnomalies, reconcileRuns, liveOccupancy,
		)
	})
}

func IncEntry(templeID string) {
	entriesRecorded.WithLabelValues(templeID).Inc()
}

func IncExit(templeID string) {
	exitsRecorded.WithLabelValues(templeID).Inc()
}

func IncScanConflict() {
	scanConflicts.Inc()
}

func IncCapacityRejection() {
	capacityRejections.Inc()
}

func IncCounterAnomaly() {
	counterAnomalies.Inc()
}

func IncReconcileRun(trigger string) {
	reconcileRuns.WithLabelValues(trigger).Inc()
}

func SetLiveOccupancy(templeID string, count int64) {
	liveOccupancy.WithLabelValues(templeID).Set(float64(count))
}
