package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ChromeLauncher launches Chrome through chromedp, either as a local
// process or by attaching to a remote DevTools endpoint.
type ChromeLauncher struct {
	logger *zap.Logger
	client *resty.Client
}

// NewChromeLauncher creates a launcher.
func NewChromeLauncher(logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{
		logger: logger,
		client: newDevToolsClient(),
	}
}

// Launch starts a browser, opens a page and navigates it to opts.URL.
// The browser outlives ctx; ctx only bounds the launch itself.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Handle, error) {
	opts = opts.withDefaults()
	format, err := NormalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	opts.Format = format

	allocCtx, allocCancel, err := l.allocator(ctx, opts)
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(l.logger.Sugar().Errorf),
	)

	h := &chromeHandle{
		opts:        opts,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}

	// The first Run allocates the browser and binds it to tabCtx, so it
	// must not run under a derived timeout context.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)))
	}()

	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		_ = h.Close()
		return nil, opErr("start", err)
	}

	if opts.URL != "" {
		if err := h.Navigate(ctx, opts.URL); err != nil {
			_ = h.Close()
			return nil, err
		}
	}

	l.logger.Info("browser launched",
		zap.String("url", opts.URL),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
		zap.Bool("remote", opts.RemoteURL != ""),
	)

	return h, nil
}

func (l *ChromeLauncher) allocator(ctx context.Context, opts LaunchOptions) (context.Context, context.CancelFunc, error) {
	if opts.RemoteURL != "" {
		wsURL, err := ResolveDevToolsURL(ctx, l.client, opts.RemoteURL)
		if err != nil {
			return nil, nil, err
		}
		allocCtx, cancel := chromedp.NewRemoteAllocator(context.Background(), wsURL)
		return allocCtx, cancel, nil
	}

	execPath, err := ResolveExecPath(opts.ExecPath)
	if err != nil {
		return nil, nil, err
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts, execPath)...)
	return allocCtx, cancel, nil
}

// allocatorOptions builds the Chrome command line.
func allocatorOptions(opts LaunchOptions, execPath string) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.ExecPath(execPath),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	return allocOpts
}

type chromeHandle struct {
	opts        LaunchOptions
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

// run executes actions bounded by the action timeout and by ctx.
func (h *chromeHandle) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return opErr(op, ErrHandleClosed)
	}

	runCtx, cancel := context.WithTimeout(h.ctx, h.opts.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return opErr(op, chromedp.Run(runCtx, actions...))
}

func (h *chromeHandle) Navigate(ctx context.Context, url string) error {
	return h.run(ctx, "navigate", chromedp.Navigate(url))
}

func (h *chromeHandle) Screenshot(ctx context.Context) (Capture, error) {
	var data []byte
	err := h.run(ctx, "screenshot", chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot()
		switch h.opts.Format {
		case FormatPNG:
			params = params.WithFormat(page.CaptureScreenshotFormatPng)
		default:
			params = params.WithFormat(page.CaptureScreenshotFormatJpeg).WithQuality(int64(h.opts.Quality))
		}
		var err error
		data, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return Capture{}, err
	}

	format, err := DetectFormat(data)
	if err != nil {
		return Capture{}, opErr("screenshot", err)
	}
	return Capture{Data: data, Format: format}, nil
}

func (h *chromeHandle) PageInfo(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	err := h.run(ctx, "page info",
		chromedp.Location(&info.URL),
		chromedp.Title(&info.Title),
	)
	return info, err
}

func (h *chromeHandle) Click(ctx context.Context, x, y float64) error {
	return h.run(ctx, "click", chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	}))
}

func (h *chromeHandle) Scroll(ctx context.Context, deltaY float64) error {
	var ok bool
	return h.run(ctx, "scroll",
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %g), true", deltaY), &ok),
	)
}

func (h *chromeHandle) SendKey(ctx context.Context, ev KeyEvent) error {
	down, up, err := keyEventParams(ev)
	if err != nil {
		return opErr("key", err)
	}
	return h.run(ctx, "key", chromedp.ActionFunc(func(ctx context.Context) error {
		if err := down.Do(ctx); err != nil {
			return err
		}
		return up.Do(ctx)
	}))
}

// Close shuts the page and, for local launches, the Chrome process.
func (h *chromeHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		if cancelErr := chromedp.Cancel(h.ctx); cancelErr != nil && !errors.Is(cancelErr, context.Canceled) {
			err = opErr("close", cancelErr)
		}
		h.cancel()
		h.allocCancel()
		h.logger.Debug("browser closed")
	})
	return err
}
