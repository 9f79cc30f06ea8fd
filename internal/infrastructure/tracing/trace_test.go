package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedTracer(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	tracer := New("relay", zap.New(core))
	return tracer, logs
}

func TestStartSpanPropagatesTrace(t *testing.T) {
	tracer, _ := newObservedTracer(t)
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.Equal(t, parent.TraceID, GetTraceID(childCtx))
}

func TestTraceRecordsError(t *testing.T) {
	tracer, logs := newObservedTracer(t)

	boom := errors.New("boom")
	err := tracer.Trace(context.Background(), "session.create", func(ctx context.Context, span *Span) error {
		span.SetTag("mode", "isolated")
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Close drains the collector
	tracer.Close()

	entries := logs.FilterMessage("span completed with error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "session.create", entries[0].ContextMap()["operation"])
	assert.Equal(t, "isolated", entries[0].ContextMap()["mode"])
}

func TestSpanEvents(t *testing.T) {
	tracer, logs := newObservedTracer(t)

	err := tracer.Trace(context.Background(), "session.create", func(ctx context.Context, span *Span) error {
		require.Same(t, span, SpanFromContext(ctx))
		SpanFromContext(ctx).Event("browser.launched")
		return nil
	})
	require.NoError(t, err)
	tracer.Close()

	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 1)
	events, ok := entries[0].ContextMap()["events"].([]interface{})
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Contains(t, events[0], "browser.launched@")
}

func TestSpanFromContextWithoutSpan(t *testing.T) {
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderTraceID, "req_a")
	h.Set(HeaderSpanID, "req_b")

	traceID, spanID := FromHeaders(h)
	assert.Equal(t, TraceID("req_a"), traceID)
	assert.Equal(t, SpanID("req_b"), spanID)

	traceID, spanID = FromHeaders(http.Header{})
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestSubmitAfterClose(t *testing.T) {
	tracer, _ := newObservedTracer(t)
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	span.Finish()
	assert.NotPanics(t, func() { tracer.Submit(span) })
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObservedTracer(t)

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "req_upstream")
	router.ServeHTTP(w, req)

	assert.Equal(t, "req_upstream", w.Header().Get("X-Trace-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Span-ID"))

	tracer.Close()
	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "200", entries[0].ContextMap()["http.status"])
}
