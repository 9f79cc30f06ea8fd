// Package browsertest provides in-memory browser launchers for tests.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/browserrelay/internal/domain/browser"
)

// JPEG is the smallest byte prefix detected as image/jpeg.
var JPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// ErrLaunch is returned by a Launcher configured to fail.
var ErrLaunch = errors.New("fake launch failure")

// Launcher creates Handles and records every launch.
type Launcher struct {
	// FailLaunch makes Launch return ErrLaunch.
	FailLaunch atomic.Bool
	// LaunchDelay is slept before each launch returns.
	LaunchDelay time.Duration

	mu      sync.Mutex
	handles []*Handle
	options []browser.LaunchOptions
}

// NewLauncher returns a launcher whose handles succeed by default.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// Launch implements browser.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Handle, error) {
	if l.LaunchDelay > 0 {
		select {
		case <-time.After(l.LaunchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.FailLaunch.Load() {
		return nil, ErrLaunch
	}

	h := NewHandle(opts.URL)

	l.mu.Lock()
	l.handles = append(l.handles, h)
	l.options = append(l.options, opts)
	l.mu.Unlock()

	return h, nil
}

// Launches returns how many handles were created.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

// Handles returns every handle created so far.
func (l *Launcher) Handles() []*Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Handle(nil), l.handles...)
}

// Last returns the most recent handle, or nil.
func (l *Launcher) Last() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}

// Options returns the options of every launch.
func (l *Launcher) Options() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.options...)
}

// LiveHandles counts handles that have not been closed.
func (l *Launcher) LiveHandles() int {
	n := 0
	for _, h := range l.Handles() {
		if !h.Closed() {
			n++
		}
	}
	return n
}

// Handle is an in-memory page. Titles follow the navigated host.
type Handle struct {
	// FailScreenshot makes Screenshot return an error.
	FailScreenshot atomic.Bool
	// FailInput makes Click, Scroll and SendKey return an error.
	FailInput atomic.Bool

	mu          sync.Mutex
	url         string
	navigations []string
	clicks      [][2]float64
	scrolls     []float64
	keys        []browser.KeyEvent
	shots       []time.Time
	closed      bool
	closeCount  int
}

// NewHandle returns a handle already at url.
func NewHandle(url string) *Handle {
	return &Handle{url: url}
}

func (h *Handle) Navigate(ctx context.Context, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return browser.ErrHandleClosed
	}
	h.url = url
	h.navigations = append(h.navigations, url)
	return nil
}

func (h *Handle) Screenshot(ctx context.Context) (browser.Capture, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return browser.Capture{}, browser.ErrHandleClosed
	}
	if h.FailScreenshot.Load() {
		return browser.Capture{}, errors.New("fake screenshot failure")
	}
	h.shots = append(h.shots, time.Now())
	return browser.Capture{Data: append([]byte(nil), JPEG...), Format: browser.FormatJPEG}, nil
}

func (h *Handle) PageInfo(ctx context.Context) (browser.PageInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return browser.PageInfo{}, browser.ErrHandleClosed
	}
	return browser.PageInfo{URL: h.url, Title: TitleFor(h.url)}, nil
}

func (h *Handle) Click(ctx context.Context, x, y float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return browser.ErrHandleClosed
	}
	if h.FailInput.Load() {
		return errors.New("fake click failure")
	}
	h.clicks = append(h.clicks, [2]float64{x, y})
	return nil
}

func (h *Handle) Scroll(ctx context.Context, deltaY float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return browser.ErrHandleClosed
	}
	if h.FailInput.Load() {
		return errors.New("fake scroll failure")
	}
	h.scrolls = append(h.scrolls, deltaY)
	return nil
}

func (h *Handle) SendKey(ctx context.Context, ev browser.KeyEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return browser.ErrHandleClosed
	}
	if h.FailInput.Load() {
		return errors.New("fake key failure")
	}
	h.keys = append(h.keys, ev)
	return nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.closeCount++
	return nil
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// CloseCount reports how many times Close was called.
func (h *Handle) CloseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCount
}

// URL returns the current location.
func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// Navigations returns every URL passed to Navigate.
func (h *Handle) Navigations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.navigations...)
}

// Clicks returns recorded click coordinates.
func (h *Handle) Clicks() [][2]float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][2]float64(nil), h.clicks...)
}

// Scrolls returns recorded scroll deltas.
func (h *Handle) Scrolls() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.scrolls...)
}

// Keys returns recorded key events.
func (h *Handle) Keys() []browser.KeyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]browser.KeyEvent(nil), h.keys...)
}

// ScreenshotTimes returns when each screenshot was taken.
func (h *Handle) ScreenshotTimes() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.shots...)
}

// TitleFor returns the title the fake reports for url.
func TitleFor(url string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	host = strings.SplitN(host, "/", 2)[0]
	if host == "example.com" || host == "www.example.com" {
		return "Example Domain"
	}
	return host
}
