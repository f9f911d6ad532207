package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("GET /healthz", "200")
		ObserveGateway("create_session", time.Now(), nil)
		ObserveGateway("get_settlement", time.Now(), errors.New("boom"))
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(reservationsCreated)
	IncReservationCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(reservationsCreated))

	conflicts := testutil.ToFloat64(bookingConflicts)
	IncBookingConflict()
	assert.Equal(t, conflicts+1, testutil.ToFloat64(bookingConflicts))

	confirmed := testutil.ToFloat64(paymentsReconciled.WithLabelValues("confirmed"))
	IncReconciled("confirmed")
	assert.Equal(t, confirmed+1, testutil.ToFloat64(paymentsReconciled.WithLabelValues("confirmed")))

	expired := testutil.ToFloat64(pendingExpired)
	IncPendingExpired(3)
	assert.Equal(t, expired+3, testutil.ToFloat64(pendingExpired))
}
