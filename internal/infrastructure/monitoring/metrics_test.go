package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	t.Cleanup(m.Close)
	return m
}

func TestSnapshot(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordFrame(2048, 10*time.Millisecond)
	m.RecordFrame(4096, 12*time.Millisecond)
	m.RecordCaptureFailure()
	m.RecordInput("click", "success")
	m.RecordInput("keydown", "error")
	m.RecordLaunch("isolated", "error")
	m.SetSessionsActive(3)
	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.FramesCaptured)
	assert.Equal(t, int64(1), snap.CaptureFailures)
	assert.Equal(t, int64(2), snap.InputEvents)
	assert.Equal(t, int64(1), snap.InputFailures)
	assert.Equal(t, int64(1), snap.LaunchFailures)
	assert.Equal(t, int64(3), snap.ActiveSessions)
	assert.Equal(t, int64(1), snap.ActiveConnections)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesCaptured))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InputEvents.WithLabelValues("keydown", "error")))
}

func TestSeparateRegistries(t *testing.T) {
	// Two collectors on distinct registries must not collide
	a := newTestMetrics(t)
	b := newTestMetrics(t)
	a.RecordNavigation("success")

	assert.Equal(t, float64(1), testutil.ToFloat64(a.Navigations.WithLabelValues("success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Navigations.WithLabelValues("success")))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestMetrics(t)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	for _, path := range []string{"/health", "/missing"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}

func TestTimer(t *testing.T) {
	m := newTestMetrics(t)

	timer := NewTimer(m, "browser", "navigate")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.Stop("success")

	require.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationCalls.WithLabelValues("browser", "navigate", "success")))
}
