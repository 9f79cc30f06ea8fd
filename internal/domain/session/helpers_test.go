package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/browserrelay/internal/domain/browser"
	"github.com/GriffinCanCode/browserrelay/internal/domain/browser/browsertest"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 2 * time.Second

// recorder is a Subscriber that keeps everything it receives.
type recorder struct {
	id string

	mu      sync.Mutex
	frames  []Frame
	stopped int
	errs    []error
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ConnectionID() string { return r.id }

func (r *recorder) OnFrame(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) OnStopped() {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func (r *recorder) Stopped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newTestMetrics(t *testing.T) *monitoring.Metrics {
	t.Helper()
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	t.Cleanup(m.Close)
	return m
}

func newTestRegistry(t *testing.T, mode Mode) (*Registry, *browsertest.Launcher) {
	t.Helper()
	launcher := browsertest.NewLauncher()
	tracer := tracing.New("test", zap.NewNop())
	t.Cleanup(tracer.Close)

	reg := NewRegistry(launcher, Options{
		Mode:             mode,
		Launch:           browser.LaunchOptions{Width: 800, Height: 600},
		DefaultFrameRate: 10,
		CommandBuffer:    8,
		CommandTimeout:   200 * time.Millisecond,
	}, zap.NewNop(), newTestMetrics(t), tracer)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = reg.Close(ctx)
	})
	return reg, launcher
}

func waitForFrames(t *testing.T, r *recorder, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.Frames()) >= n
	}, waitFor, 10*time.Millisecond)
}

func waitForState(t *testing.T, s *Session, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State() == state
	}, waitFor, 10*time.Millisecond)
}
