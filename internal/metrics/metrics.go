package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "campspots"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	reservationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Pending reservations persisted.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Booking requests rejected because the site was unavailable.",
		},
	)

	paymentsReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_reconciled_total",
			Help:      "Payment reconciliation outcomes.",
		},
		[]string{"outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	pendingExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_expired_total",
			Help:      "Stale pending reservations cancelled by the sweeper.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationsCreated,
			bookingConflicts,
			paymentsReconciled,
			gatewayDuration,
			pendingExpired,
		)
	})
}

// IncHTTP increments the counter for an endpoint and status code.
func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncReservationCreated() {
	reservationsCreated.Inc()
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

// IncReconciled records a reconciliation outcome: confirmed, noop, unpaid, rejected, gateway_error.
func IncReconciled(outcome string) {
	paymentsReconciled.WithLabelValues(outcome).Inc()
}

func IncPendingExpired(n int) {
	pendingExpired.Add(float64(n))
}

// ObserveGateway records the latency of one gateway operation.
func ObserveGateway(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayDuration.WithLabelValues(operation, result).Observe(time.Since(started).Seconds())
}
