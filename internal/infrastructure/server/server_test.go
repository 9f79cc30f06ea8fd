package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/browserrelay/internal/domain/browser/browsertest"
	"github.com/GriffinCanCode/browserrelay/internal/domain/session"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/config"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *browsertest.Launcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	launcher := browsertest.NewLauncher()
	srv, err := NewServer(cfg, WithLauncher(launcher), WithLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, launcher
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Relay.Mode = "broadcast"

	_, err := NewServer(cfg, WithLauncher(browsertest.NewLauncher()), WithLogger(logging.NewNop()))
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/", "/health", "/sessions", "/stats", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutoStartSharedBrowser(t *testing.T) {
	srv, launcher := newTestServer(t, func(cfg *config.Config) {
		cfg.Relay.Mode = config.ModeShared
		cfg.Browser.AutoStart = true
		cfg.Browser.StartURL = "https://example.com"
	})

	srv.Start(context.Background())
	require.Equal(t, 1, launcher.Launches())

	infos := srv.Registry().List()
	require.Len(t, infos, 1)
	assert.Equal(t, session.SharedOwner, infos[0].Owner)
	assert.Equal(t, session.StateRunning, infos[0].State)

	// A viewer sees the auto-started browser without sending start_browser.
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		if strings.Contains(string(raw), `"type":"screenshot"`) {
			break
		}
	}
}

func TestShutdownStopsSessions(t *testing.T) {
	srv, launcher := newTestServer(t, func(cfg *config.Config) {
		cfg.Relay.Mode = config.ModeShared
		cfg.Browser.AutoStart = true
	})
	srv.Start(context.Background())
	require.Equal(t, 1, launcher.LiveHandles())

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Zero(t, launcher.LiveHandles())

	// Idempotent.
	assert.NoError(t, srv.Shutdown(context.Background()))
}
