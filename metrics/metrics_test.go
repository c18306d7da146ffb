package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe("event", "responded", http.StatusNoContent, 10*time.Millisecond)
	m.Observe("event", "timed_out", http.StatusGatewayTimeout, time.Second)
	m.Observe("event", "responded", http.StatusNoContent, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Invocations.WithLabelValues("event", "responded", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations.WithLabelValues("event", "timed_out", "504")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Duration))
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Ignored.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Ignored))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Ignored))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Timeouts.Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "funcframe_timeouts_total 1"))
}
