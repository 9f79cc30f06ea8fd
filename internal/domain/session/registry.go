package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/browserrelay/internal/domain/browser"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/browserrelay/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SharedOwner is the owner recorded on the shared session.
const SharedOwner = "shared"

// ServerConnectionID subscribes the server itself to an auto-started session.
const ServerConnectionID = "server"

// Options configures a Registry.
type Options struct {
	Mode             Mode
	Launch           browser.LaunchOptions
	DefaultFrameRate int
	CommandBuffer    int
	CommandTimeout   time.Duration
}

// CreateOptions overrides launch settings for one session.
type CreateOptions struct {
	Width  int
	Height int
}

// Registry maps connections to sessions. In isolated mode every connection
// owns at most one session; in shared mode one refcounted session serves
// every subscriber.
type Registry struct {
	launcher browser.Launcher
	opts     Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer

	mu       sync.Mutex
	sessions map[string]*Session
	shared   *Session
	attached map[string]Subscriber
	rates    map[string]int
	closed   bool
}

// NewRegistry creates a registry that launches browsers with launcher.
func NewRegistry(launcher browser.Launcher, opts Options, logger *zap.Logger, metrics *monitoring.Metrics, tracer *tracing.Tracer) *Registry {
	if opts.Mode == "" {
		opts.Mode = ModeIsolated
	}
	if opts.DefaultFrameRate == 0 {
		opts.DefaultFrameRate = 5
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 2 * time.Second
	}

	return &Registry{
		launcher: launcher,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		sessions: make(map[string]*Session),
		attached: make(map[string]Subscriber),
		rates:    make(map[string]int),
	}
}

// Mode returns the relay mode.
func (r *Registry) Mode() Mode {
	return r.opts.Mode
}

// Attach registers a connected client. In shared mode a client joining while
// the shared session runs is subscribed immediately and that session is
// returned.
func (r *Registry) Attach(sub Subscriber) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attached[sub.ConnectionID()] = sub
	if r.opts.Mode == ModeShared && r.shared != nil && r.shared.State() == StateRunning {
		r.shared.subscribe(sub)
		return r.shared
	}
	return nil
}

// Detach forgets a disconnected client and releases its session.
func (r *Registry) Detach(ctx context.Context, connID string) error {
	r.mu.Lock()
	delete(r.attached, connID)
	delete(r.rates, connID)
	r.mu.Unlock()

	if err := r.Destroy(ctx, connID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

// Create starts a session for connID at url.
//
// Isolated mode fails with ErrSessionExists while the connection owns a live
// session. Shared mode subscribes connID and navigates the running session
// instead of launching a second browser; a stopped shared session is
// replaced. Launch errors are returned as ErrLaunchFailure and leave the
// session absent. A launch cut short by Destroy or by ctx returns
// ErrSessionStopped.
func (r *Registry) Create(ctx context.Context, connID, url string, opts CreateOptions) (*Session, error) {
	var sess *Session
	err := r.tracer.Trace(ctx, "session.create", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("mode", string(r.opts.Mode))
		span.SetTag("connection_id", connID)

		var err error
		if r.opts.Mode == ModeShared {
			sess, err = r.createShared(ctx, connID, url, opts)
		} else {
			sess, err = r.createIsolated(ctx, connID, url, opts)
		}
		if sess != nil {
			span.SetTag("session_id", sess.ID())
		}
		return err
	})
	return sess, err
}

func (r *Registry) createIsolated(ctx context.Context, connID, url string, opts CreateOptions) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrSessionStopped
	}
	sub, ok := r.attached[connID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotAttached
	}
	old, exists := r.sessions[connID]
	if exists && old.State() != StateStopped {
		r.mu.Unlock()
		return nil, newError(ErrSessionExists, old.ID(), nil)
	}

	s := r.newSession(connID, ModeIsolated, r.rateFor(connID))
	s.subscribe(sub)
	r.sessions[connID] = s
	r.mu.Unlock()

	if exists {
		// Already stopped; wait for its goroutine to finish closing the handle.
		_ = old.stop(ctx)
	}

	return r.launch(ctx, s, connID, url, opts)
}

func (r *Registry) createShared(ctx context.Context, connID, url string, opts CreateOptions) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrSessionStopped
	}
	sub, ok := r.attached[connID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotAttached
	}

	cur := r.shared
	if cur != nil && cur.State() != StateStopped {
		cur.subscribe(sub)
		r.mu.Unlock()

		if span := tracing.SpanFromContext(ctx); span != nil {
			span.Event("shared.joined")
		}
		r.logger.Debug("joined shared session",
			zap.String("session_id", cur.ID()),
			zap.String("connection_id", connID),
		)
		if url != "" {
			if err := cur.Navigate(ctx, url, sub); err != nil {
				return cur, err
			}
		}
		return cur, nil
	}

	s := r.newSession(SharedOwner, ModeShared, r.rateFor(connID))
	if cur != nil {
		// Subscribers of the stopped session move to its replacement.
		for _, prev := range cur.subscribers() {
			if _, still := r.attached[prev.ConnectionID()]; still {
				s.subscribe(prev)
			}
		}
		s.pinned = cur.isPinned()
	}
	s.subscribe(sub)
	r.shared = s
	r.mu.Unlock()

	if cur != nil {
		_ = cur.stop(ctx)
	}

	return r.launch(ctx, s, connID, url, opts)
}

// rateFor returns the frame rate a new session for connID starts with. Callers hold r.mu.
func (r *Registry) rateFor(connID string) int {
	if rate, ok := r.rates[connID]; ok {
		return rate
	}
	return r.opts.DefaultFrameRate
}

func (r *Registry) newSession(owner string, mode Mode, rate int) *Session {
	sid := id.NewSessionID().String()
	s := newSession(sid, owner, mode, rate, r.opts.CommandBuffer, r.opts.CommandTimeout, r.logger, r.metrics)
	s.onExit = r.onSessionExit
	return s
}

// launch creates the handle for s. Destroying s while the launch is in
// flight cancels it.
func (r *Registry) launch(ctx context.Context, s *Session, connID, url string, opts CreateOptions) (*Session, error) {
	lopts := r.opts.Launch
	lopts.URL = url
	if opts.Width > 0 {
		lopts.Width = opts.Width
	}
	if opts.Height > 0 {
		lopts.Height = opts.Height
	}

	launchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopLaunch := context.AfterFunc(s.ctx, cancel)
	defer stopLaunch()

	timer := monitoring.NewTimer(r.metrics, "browser", "launch")
	h, err := r.launcher.Launch(launchCtx, lopts)
	if err != nil {
		// Destroyed or abandoned by the requester mid-launch.
		aborted := s.ctx.Err() != nil || ctx.Err() != nil
		r.remove(s)
		_ = s.stop(context.Background())

		if aborted {
			timer.Stop("aborted")
			r.metrics.RecordLaunch(string(s.mode), "aborted")
			r.logger.Debug("browser launch aborted",
				zap.String("session_id", s.ID()),
				zap.String("url", url),
			)
			for _, sub := range s.subscribers() {
				if sub.ConnectionID() != connID {
					sub.OnStopped()
				}
			}
			return nil, newError(ErrSessionStopped, s.ID(), err)
		}

		timer.Stop("error")
		r.metrics.RecordLaunch(string(s.mode), "error")
		launchErr := newError(ErrLaunchFailure, s.ID(), err)
		r.logger.Warn("browser launch failed",
			zap.String("session_id", s.ID()),
			zap.String("url", url),
			zap.Error(err),
		)
		// Other subscribers waiting on a shared launch hear about it too.
		for _, sub := range s.subscribers() {
			if sub.ConnectionID() != connID {
				sub.OnError(launchErr)
			}
		}
		return nil, launchErr
	}

	if span := tracing.SpanFromContext(ctx); span != nil {
		span.Event("browser.launched")
	}

	if !s.start(h, url) {
		timer.Stop("aborted")
		r.metrics.RecordLaunch(string(s.mode), "aborted")
		if err := h.Close(); err != nil {
			r.logger.Warn("failed to close abandoned browser", zap.Error(err))
		}
		return nil, newError(ErrSessionStopped, s.ID(), nil)
	}

	elapsed := timer.Stop("success")
	r.metrics.RecordLaunch(string(s.mode), "success")
	r.updateGauge()

	r.logger.Info("session started",
		zap.String("session_id", s.ID()),
		zap.String("owner", s.Owner()),
		zap.String("mode", string(s.mode)),
		zap.String("url", url),
		zap.Duration("launch_time", elapsed),
	)
	return s, nil
}

// remove drops s from the registry if it is still registered.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shared == s {
		r.shared = nil
	}
	if cur, ok := r.sessions[s.owner]; ok && cur == s {
		delete(r.sessions, s.owner)
	}
}

// Lookup returns the session serving connID.
func (r *Registry) Lookup(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(connID)
}

func (r *Registry) lookupLocked(connID string) (*Session, bool) {
	if r.opts.Mode == ModeShared {
		s := r.shared
		if s == nil {
			return nil, false
		}
		if s.hasSubscriber(connID) {
			return s, true
		}
		if _, ok := r.attached[connID]; ok && s.isPinned() {
			return s, true
		}
		return nil, false
	}

	s, ok := r.sessions[connID]
	return s, ok
}

// Destroy releases connID's session. In isolated mode the session is stopped
// and removed. In shared mode connID is unsubscribed, and only the last
// subscriber leaving stops the session and notifies the remaining clients.
func (r *Registry) Destroy(ctx context.Context, connID string) error {
	if r.opts.Mode == ModeShared {
		return r.destroyShared(ctx, connID)
	}

	r.mu.Lock()
	s, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	err := s.stop(ctx)
	r.updateGauge()
	r.logger.Info("session destroyed",
		zap.String("session_id", s.ID()),
		zap.String("connection_id", connID),
	)
	return err
}

func (r *Registry) destroyShared(ctx context.Context, connID string) error {
	r.mu.Lock()
	s := r.shared
	if s == nil || !s.hasSubscriber(connID) {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	if remaining := s.unsubscribe(connID); remaining > 0 {
		r.mu.Unlock()
		r.logger.Debug("left shared session",
			zap.String("session_id", s.ID()),
			zap.String("connection_id", connID),
			zap.Int("remaining", remaining),
		)
		return nil
	}

	r.shared = nil
	stragglers := make([]Subscriber, 0, len(r.attached))
	for cid, sub := range r.attached {
		if cid != connID {
			stragglers = append(stragglers, sub)
		}
	}
	r.mu.Unlock()

	err := s.stop(ctx)
	for _, sub := range stragglers {
		sub.OnStopped()
	}
	r.updateGauge()

	r.logger.Info("shared session destroyed",
		zap.String("session_id", s.ID()),
		zap.Int("notified", len(stragglers)),
	)
	return err
}

// UpdateFrameRate clamps rate to [1,10] and stores it on connID's session,
// or remembers it for the next session connID creates.
func (r *Registry) UpdateFrameRate(connID string, rate int) (int, error) {
	rate = ClampFrameRate(rate)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.lookupLocked(connID); ok && s.State() != StateStopped {
		return s.SetFrameRate(rate), nil
	}
	if _, ok := r.attached[connID]; !ok {
		return 0, ErrNotAttached
	}
	r.rates[connID] = rate
	return rate, nil
}

// Navigate queues a navigation on connID's session.
func (r *Registry) Navigate(ctx context.Context, connID, url string) error {
	r.mu.Lock()
	s, ok := r.lookupLocked(connID)
	sub := r.attached[connID]
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return s.Navigate(ctx, url, sub)
}

// Input queues an input event on connID's session.
func (r *Registry) Input(ctx context.Context, connID string, in Input) error {
	s, ok := r.Lookup(connID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Input(ctx, in)
}

// AutoStart launches the shared session at boot. The server holds its own
// subscription, so the session runs until Close and every client can drive it.
func (r *Registry) AutoStart(ctx context.Context, url string) (*Session, error) {
	if r.opts.Mode != ModeShared {
		return nil, errors.New("auto start requires shared mode")
	}

	r.Attach(serverSubscriber{logger: r.logger})
	s, err := r.Create(ctx, ServerConnectionID, url, CreateOptions{})
	if err != nil {
		return nil, err
	}
	s.setPinned()
	return s, nil
}

// List returns a snapshot of every registered session, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	sessions := r.allLocked()
	r.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

func (r *Registry) allLocked() []*Session {
	sessions := make([]*Session, 0, len(r.sessions)+1)
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	if r.shared != nil {
		sessions = append(sessions, r.shared)
	}
	return sessions
}

// Close stops every session concurrently and rejects further creates.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := r.allLocked()
	r.sessions = make(map[string]*Session)
	r.shared = nil
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			return s.stop(ctx)
		})
	}
	err := g.Wait()
	r.updateGauge()

	r.logger.Info("session registry closed", zap.Int("sessions", len(sessions)))
	return err
}

func (r *Registry) onSessionExit(s *Session, err error) {
	if err != nil {
		r.logger.Warn("session stopped",
			zap.String("session_id", s.ID()),
			zap.Error(err),
		)
	}
	r.updateGauge()
}

func (r *Registry) updateGauge() {
	r.mu.Lock()
	sessions := r.allLocked()
	r.mu.Unlock()

	running := 0
	for _, s := range sessions {
		if s.State() == StateRunning {
			running++
		}
	}
	r.metrics.SetSessionsActive(running)
}

func (s *Session) isPinned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pinned
}

func (s *Session) setPinned() {
	s.mu.Lock()
	s.pinned = true
	s.mu.Unlock()
}

// serverSubscriber keeps an auto-started session alive and discards frames.
type serverSubscriber struct {
	logger *zap.Logger
}

func (serverSubscriber) ConnectionID() string { return ServerConnectionID }
func (serverSubscriber) OnFrame(Frame)        {}
func (serverSubscriber) OnStopped()           {}
func (s serverSubscriber) OnError(err error) {
	s.logger.Warn("auto-started session error", zap.Error(err))
}
