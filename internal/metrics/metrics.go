package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks the latency of ledger operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "loyalty_operation_duration_seconds",
			Help: "Duration of loyalty operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
		[]string{"operation", "status"}, // status: success or failure
	)

	// PointsTotal counts points moved through the ledger
	PointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_points_total",
			Help: "Points applied to loyalty accounts",
		},
		[]string{"direction"}, // earned or spent
	)

	// OrphanedDiscounts counts external discounts created without a local record
	OrphanedDiscounts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_orphaned_discounts_total",
			Help: "Discounts created on the commerce platform whose local persistence failed",
		},
	)

	// NotificationFailures counts emails that could not be sent
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_notification_failures_total",
			Help: "Failed email notifications by template",
		},
		[]string{"template"},
	)
)

// RecordOperationDuration records the duration of a ledger operation
func RecordOperationDuration(operation, status string, duration float64) {
	OperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordPoints adds a signed point delta to the earned or spent counter
func RecordPoints(delta int64) {
	switch {
	case delta > 0:
		PointsTotal.WithLabelValues("earned").Add(float64(delta))
	case delta < 0:
		PointsTotal.WithLabelValues("spent").Add(float64(-delta))
	}
}

// RecordOrphanedDiscount counts an external discount left without a local row
func RecordOrphanedDiscount() {
	OrphanedDiscounts.Inc()
}

// RecordNotificationFailure counts a failed email
func RecordNotificationFailure(template string) {
	NotificationFailures.WithLabelValues(template).Inc()
}
