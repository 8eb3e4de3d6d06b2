package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salonsched"

var (
	once sync.Once

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Count of bookings committed by status.",
		},
		[]string{"status"},
	)

	conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Count of rejected availability checks by conflict kind.",
		},
		[]string{"kind"},
	)

	slotsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_generated_total",
			Help:      "Count of slots materialised from templates.",
		},
	)

	assignmentConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_conflicts_total",
			Help:      "Count of rejected service assignments.",
		},
	)

	commissionResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_resolved_total",
			Help:      "Count of commission resolutions by policy type.",
		},
		[]string{"type"},
	)

	integrityWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_warnings_total",
			Help:      "Count of data integrity warnings resolved by tie-break.",
		},
		[]string{"kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route.",
		},
		[]string{"route"},
	)

	exportRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_records_total",
			Help:      "Count of calendar event records pushed to sinks by result.",
		},
		[]string{"sink", "result"},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring booking locks.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookings,
			conflicts,
			slotsGenerated,
			assignmentConflicts,
			commissionResolved,
			integrityWarnings,
			httpRequests,
			exportRecords,
			lockWait,
		)
	})
}

func IncBooking(status string) {
	bookings.WithLabelValues(status).Inc()
}

func IncConflict(kind string) {
	conflicts.WithLabelValues(kind).Inc()
}

func AddSlotsGenerated(n int) {
	slotsGenerated.Add(float64(n))
}

func IncAssignmentConflict() {
	assignmentConflicts.Inc()
}

func IncCommissionResolved(policyType string) {
	commissionResolved.WithLabelValues(policyType).Inc()
}

func IncIntegrityWarning(kind string) {
	integrityWarnings.WithLabelValues(kind).Inc()
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func IncExportRecord(sink, result string) {
	exportRecords.WithLabelValues(sink, result).Inc()
}

func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}
