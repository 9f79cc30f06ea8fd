package browser

import (
	"context"
	"time"
)

// Capture formats.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// LaunchOptions configures a single browser launch.
type LaunchOptions struct {
	URL           string
	Width         int
	Height        int
	Headless      bool
	ExecPath      string
	RemoteURL     string
	Format        string
	Quality       int
	ActionTimeout time.Duration
}

// withDefaults fills unset fields.
func (o LaunchOptions) withDefaults() LaunchOptions {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.Format == "jpg" {
		o.Format = FormatJPEG
	}
	if o.Format == "" {
		o.Format = FormatJPEG
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 70
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 30 * time.Second
	}
	return o
}

// PageInfo is the current location and title of the page.
type PageInfo struct {
	URL   string
	Title string
}

// Capture is one encoded screenshot.
type Capture struct {
	Data   []byte
	Format string
}

// KeyEvent is a single key press with modifier state.
type KeyEvent struct {
	Key   string
	Code  string
	Ctrl  bool
	Meta  bool
	Shift bool
	Alt   bool
}

// Handle controls one browser page.
type Handle interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) (Capture, error)
	PageInfo(ctx context.Context) (PageInfo, error)
	Click(ctx context.Context, x, y float64) error
	Scroll(ctx context.Context, deltaY float64) error
	SendKey(ctx context.Context, ev KeyEvent) error
	Close() error
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Handle, error)
}
