package http

import (
	_ "embed"
	"net/http"

	"github.com/GriffinCanCode/browserrelay/internal/domain/session"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed static/index.html
var indexHTML []byte

// Handlers contains all HTTP handlers
type Handlers struct {
	registry *session.Registry
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
	index    http.Handler
}

// NewHandlers creates a new handler set. gatherer backs GET /metrics.
func NewHandlers(registry *session.Registry, metrics *monitoring.Metrics, gatherer prometheus.Gatherer) *Handlers {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{
		registry: registry,
		metrics:  metrics,
		gatherer: gatherer,
		index:    gzhttp.GzipHandler(http.HandlerFunc(serveIndex)),
	}
}

// Register mounts every route on router.
func (h *Handlers) Register(router gin.IRoutes) {
	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.GET("/sessions", h.ListSessions)
	router.GET("/stats", h.Stats)
	router.GET("/metrics", h.Metrics())
}

// Index serves the viewer page.
func (h *Handlers) Index(c *gin.Context) {
	h.index.ServeHTTP(c.Writer, c.Request)
}

func serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}

// Health handles liveness checks
func (h *Handlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// ListSessions lists all registered sessions
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"mode":     h.registry.Mode(),
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// Stats returns the JSON metrics summary
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// Metrics returns the Prometheus exposition handler
func (h *Handlers) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}
