package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/browserrelay/internal/domain/browser"
	"github.com/GriffinCanCode/browserrelay/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Frame rate bounds in frames per second.
const (
	MinFrameRate = 1
	MaxFrameRate = 10
)

// Mode selects how connections map to sessions.
type Mode string

const (
	ModeIsolated Mode = "isolated"
	ModeShared   Mode = "shared"
)

// State is the lifecycle state of a session.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
)

// Subscriber receives the output of a session. Implementations must not block.
type Subscriber interface {
	ConnectionID() string
	OnFrame(frame Frame)
	OnStopped()
	OnError(err error)
}

// ClampFrameRate bounds rate to [MinFrameRate, MaxFrameRate].
func ClampFrameRate(rate int) int {
	if rate < MinFrameRate {
		return MinFrameRate
	}
	if rate > MaxFrameRate {
		return MaxFrameRate
	}
	return rate
}

type commandKind int

const (
	cmdNavigate commandKind = iota
	cmdInput
)

type command struct {
	kind  commandKind
	url   string
	input Input
	from  Subscriber
}

// Session pairs one browser handle with its subscribers. A single goroutine
// owns the handle from start until the session stops.
type Session struct {
	id        string
	owner     string
	mode      Mode
	createdAt time.Time

	logger  *zap.Logger
	metrics *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan command
	done   chan struct{}

	commandTimeout time.Duration
	frameRate      atomic.Int32
	seq            atomic.Uint64
	pumps          atomic.Int32

	startOnce sync.Once
	doneOnce  sync.Once
	handle    browser.Handle
	onExit    func(s *Session, err error)

	mu     sync.RWMutex
	state  State
	url    string
	title  string
	subs   map[string]Subscriber
	pinned bool
	err    error
}

func newSession(id, owner string, mode Mode, frameRate int, buffer int, commandTimeout time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if buffer <= 0 {
		buffer = 32
	}
	s := &Session{
		id:             id,
		owner:          owner,
		mode:           mode,
		createdAt:      time.Now(),
		logger:         logger.With(zap.String("session_id", id)),
		metrics:        metrics,
		ctx:            ctx,
		cancel:         cancel,
		cmds:           make(chan command, buffer),
		done:           make(chan struct{}),
		commandTimeout: commandTimeout,
		state:          StateStarting,
		subs:           make(map[string]Subscriber),
	}
	s.frameRate.Store(int32(ClampFrameRate(frameRate)))
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the owning connection id, or "shared".
func (s *Session) Owner() string { return s.owner }

// Mode returns the relay mode the session was created in.
func (s *Session) Mode() Mode { return s.mode }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that stopped the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// FrameRate returns the current frame rate.
func (s *Session) FrameRate() int {
	return int(s.frameRate.Load())
}

// SetFrameRate clamps and stores rate, returning the stored value. The pump
// picks it up on its next wait.
func (s *Session) SetFrameRate(rate int) int {
	rate = ClampFrameRate(rate)
	s.frameRate.Store(int32(rate))
	return rate
}

// Interval is the wait between captures at the current frame rate.
func (s *Session) Interval() time.Duration {
	return time.Second / time.Duration(s.FrameRate())
}

// Page returns the last observed url and title.
func (s *Session) Page() (url, title string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url, s.title
}

// Done is closed when the session goroutine exits.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// subscribe adds sub and reports whether it was new.
func (s *Session) subscribe(sub Subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ConnectionID()]; ok {
		return false
	}
	s.subs[sub.ConnectionID()] = sub
	return true
}

// unsubscribe removes connID and returns the remaining count.
func (s *Session) unsubscribe(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, connID)
	return len(s.subs)
}

func (s *Session) hasSubscriber(connID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subs[connID]
	return ok
}

func (s *Session) subscribers() []Subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

// SubscriberCount returns the number of subscribers.
func (s *Session) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// start hands the handle to the session goroutine. Only the first call
// starts a pump; later calls, or calls after stop, return false and leave h
// to the caller.
func (s *Session) start(h browser.Handle, url string) bool {
	started := false
	s.startOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == StateStopped {
			return
		}
		s.handle = h
		s.state = StateRunning
		s.url = url
		started = true
	})
	if started {
		go s.run()
	}
	return started
}

// stop cancels the session and waits for its goroutine to exit.
func (s *Session) stop(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	running := s.handle != nil
	if !running {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if !running {
		s.closeDone()
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) markStopped(err error) {
	s.mu.Lock()
	s.state = StateStopped
	if err != nil && s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// enqueue hands cmd to the session goroutine, waiting at most the command timeout.
func (s *Session) enqueue(ctx context.Context, cmd command) error {
	if s.State() == StateStopped {
		return newError(ErrSessionStopped, s.id, nil)
	}

	select {
	case s.cmds <- cmd:
		return nil
	default:
	}

	timer := time.NewTimer(s.commandTimeout)
	defer timer.Stop()

	select {
	case s.cmds <- cmd:
		return nil
	case <-s.done:
		return newError(ErrSessionStopped, s.id, nil)
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return newError(ErrBusy, s.id, nil)
	}
}

// Navigate queues a navigation. Failures are reported to from.
func (s *Session) Navigate(ctx context.Context, url string, from Subscriber) error {
	return s.enqueue(ctx, command{kind: cmdNavigate, url: url, from: from})
}

// Input queues an input event. Failures are logged and counted only.
func (s *Session) Input(ctx context.Context, in Input) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return s.enqueue(ctx, command{kind: cmdInput, input: in})
}

// run is the single owner of the handle: it captures frames on a timer and
// executes queued commands between captures.
func (s *Session) run() {
	s.pumps.Add(1)
	var exitErr error
	defer func() {
		if err := s.handle.Close(); err != nil {
			s.logger.Warn("failed to close browser", zap.Error(err))
		}
		s.markStopped(exitErr)
		s.closeDone()
		if s.onExit != nil {
			s.onExit(s, exitErr)
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.cmds:
			s.execute(cmd)
		case <-timer.C:
			if err := s.pump(); err != nil {
				if s.ctx.Err() != nil {
					return
				}
				exitErr = newError(ErrCaptureFailure, s.id, err)
				s.metrics.RecordCaptureFailure()
				s.logger.Warn("frame pump stopped", zap.Error(err))
				return
			}
			timer.Reset(s.Interval())
		}
	}
}

func (s *Session) execute(cmd command) {
	switch cmd.kind {
	case cmdNavigate:
		err := s.handle.Navigate(s.ctx, cmd.url)
		if err != nil {
			s.metrics.RecordNavigation("error")
			s.logger.Warn("navigation failed", zap.String("url", cmd.url), zap.Error(err))
			if cmd.from != nil {
				cmd.from.OnError(err)
			}
			return
		}
		s.metrics.RecordNavigation("success")
		s.mu.Lock()
		s.url = cmd.url
		s.mu.Unlock()
	case cmdInput:
		if err := s.relay(s.ctx, cmd.input); err != nil {
			s.metrics.RecordInput(string(cmd.input.Type), "error")
			s.logger.Warn("input dispatch failed",
				zap.String("type", string(cmd.input.Type)),
				zap.Error(newError(ErrInputDispatch, s.id, err)),
			)
			return
		}
		s.metrics.RecordInput(string(cmd.input.Type), "success")
	}
}

// Info is a point-in-time view of a session.
type Info struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Mode        Mode      `json:"mode"`
	State       State     `json:"state"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	FrameRate   int       `json:"frame_rate"`
	Subscribers int       `json:"subscribers"`
	Frames      uint64    `json:"frames"`
	CreatedAt   time.Time `json:"created_at"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:          s.id,
		Owner:       s.owner,
		Mode:        s.mode,
		State:       s.state,
		URL:         s.url,
		Title:       s.title,
		FrameRate:   s.FrameRate(),
		Subscribers: len(s.subs),
		Frames:      s.seq.Load(),
		CreatedAt:   s.createdAt,
	}
}
