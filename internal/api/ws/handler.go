package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/browserrelay/internal/domain/session"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browserrelay/internal/shared/id"
	"github.com/GriffinCanCode/browserrelay/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options tunes every connection.
type Options struct {
	DefaultURL      string
	SendBuffer      int
	MaxMessageBytes int64
	PongWait        time.Duration
	WriteWait       time.Duration
	// DetachTimeout bounds session teardown when a connection closes.
	DetachTimeout time.Duration
	CheckOrigin   func(r *http.Request) bool
}

// DefaultOptions returns the stock connection settings.
func DefaultOptions() Options {
	return Options{
		DefaultURL:      "https://example.com",
		SendBuffer:      16,
		MaxMessageBytes: 64 * 1024,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		DetachTimeout:   10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DefaultURL == "" {
		o.DefaultURL = d.DefaultURL
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.DetachTimeout <= 0 {
		o.DetachTimeout = d.DetachTimeout
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return o
}

// Handler upgrades viewer connections and dispatches their messages to the
// session registry.
type Handler struct {
	registry *session.Registry
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a websocket handler.
func NewHandler(registry *session.Registry, opts Options, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		registry: registry,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// HandleConnection upgrades the request and serves the connection until it
// closes. The connection's session is released on return.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := id.NewConnectionID().String()
	cl := &client{
		id:         connID,
		conn:       conn,
		send:       make(chan []byte, h.opts.SendBuffer),
		reserve:    h.opts.SendBuffer / 4,
		done:       make(chan struct{}),
		writeWait:  h.opts.WriteWait,
		pingPeriod: h.opts.PongWait * 9 / 10,
		logger:     h.logger.With(zap.String("connection_id", connID)),
		metrics:    h.metrics,
	}
	go cl.writePump()

	h.metrics.IncWSConnections()
	cl.logger.Info("client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		cl.close()
		h.metrics.DecWSConnections()

		detachCtx, detachCancel := context.WithTimeout(context.Background(), h.opts.DetachTimeout)
		defer detachCancel()
		if err := h.registry.Detach(detachCtx, connID); err != nil {
			cl.logger.Warn("failed to release session", zap.Error(err))
		}
		cl.logger.Info("client disconnected")
	}()

	if s := h.registry.Attach(cl); s != nil {
		cl.sendStatus(string(s.State()), s)
		cl.queue(MsgSettings, SettingsPayload{Framerate: s.FrameRate()})
	}

	h.readLoop(ctx, cl)
}

func (h *Handler) readLoop(ctx context.Context, cl *client) {
	conn := cl.conn
	conn.SetReadLimit(h.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cl.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))

		msg, err := Decode(raw)
		if err != nil {
			h.metrics.RecordWSMessage("in", "invalid")
			cl.sendError(errors.New("malformed message"))
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)
		h.dispatch(ctx, cl, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, cl *client, msg Inbound) {
	switch msg.Type {
	case MsgStartBrowser:
		h.handleStart(ctx, cl, msg.Data)
	case MsgNavigateBrowser:
		h.handleNavigate(ctx, cl, msg.Data)
	case MsgInputEvent:
		if err := h.registry.Input(ctx, cl.id, msg.Data.Input); err != nil {
			cl.sendError(err)
		}
	case MsgSettingsChange:
		h.handleSettings(cl, msg.Data)
	case MsgPing:
		cl.queue(MsgPong, nil)
	default:
		cl.sendError(errors.New("unknown message type: " + msg.Type))
	}
}

// targetURL validates the requested url, falling back to the default start url.
func (h *Handler) targetURL(requested string) (string, error) {
	if requested == "" {
		requested = h.opts.DefaultURL
	}
	return utils.NormalizeURL(requested)
}

func (h *Handler) handleStart(ctx context.Context, cl *client, data InboundData) {
	url, err := h.targetURL(data.URL)
	if err != nil {
		cl.sendError(err)
		return
	}

	// Starting again replaces the connection's own browser.
	if h.registry.Mode() == session.ModeIsolated {
		if err := h.registry.Destroy(ctx, cl.id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			cl.logger.Warn("failed to stop previous session", zap.Error(err))
		}
	}

	cl.sendStatus(string(session.StateStarting), nil)
	s, err := h.registry.Create(ctx, cl.id, url, session.CreateOptions{
		Width:  data.Width,
		Height: data.Height,
	})
	if err != nil {
		cl.logger.Warn("failed to start browser", zap.String("url", url), zap.Error(err))
		cl.sendError(err)
		return
	}

	cl.sendStatus(string(session.StateRunning), s)
	cl.queue(MsgSettings, SettingsPayload{Framerate: s.FrameRate()})
}

func (h *Handler) handleNavigate(ctx context.Context, cl *client, data InboundData) {
	url, err := h.targetURL(data.URL)
	if err != nil {
		cl.sendError(err)
		return
	}
	if err := h.registry.Navigate(ctx, cl.id, url); err != nil {
		cl.sendError(err)
	}
}

func (h *Handler) handleSettings(cl *client, data InboundData) {
	if data.Framerate == nil {
		cl.sendError(errors.New("settings_change requires framerate"))
		return
	}
	rate, err := h.registry.UpdateFrameRate(cl.id, *data.Framerate)
	if err != nil {
		cl.sendError(err)
		return
	}
	cl.queue(MsgSettings, SettingsPayload{Framerate: rate})
}
