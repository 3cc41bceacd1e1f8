package observability

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"flashsettle/core/events"
)

func TestEventsCountsByType(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.committed.WithLabelValues(events.TypeFlashSettled))
	m.Emit(events.FlashLoanSettled{BackendID: 1})
	m.Emit(events.FlashLoanSettled{BackendID: 2})
	m.Emit(nil)
	if got := testutil.ToFloat64(m.committed.WithLabelValues(events.TypeFlashSettled)) - before; got != 2 {
		t.Fatalf("settled count delta = %v, want 2", got)
	}
}

func TestAPIObserve(t *testing.T) {
	m := API()
	before := testutil.ToFloat64(m.errors.WithLabelValues("/v1/quote", http.MethodGet, "400"))
	m.Observe("/v1/quote", http.MethodGet, http.StatusBadRequest, time.Millisecond)
	m.Observe("/v1/quote", http.MethodGet, http.StatusOK, time.Millisecond)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("/v1/quote", http.MethodGet, "400")) - before; got != 1 {
		t.Fatalf("error delta = %v, want 1", got)
	}
	m.RecordThrottle("")
	if testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")) < 1 {
		t.Fatalf("expected throttle to be recorded")
	}
}
