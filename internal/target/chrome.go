package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/richvergo/subtract-sub005/pkg/log"
)

type (
	// ChromeProvider launches or connects to Chrome through the DevTools
	// protocol. With a RemoteURL it attaches to an existing browser,
	// otherwise a local browser process is started per Target
	ChromeProvider struct {
		RemoteURL string
		Quality   int
	}

	chromeTarget struct {
		ctx         context.Context
		cancelTab   context.CancelFunc
		cancelAlloc context.CancelFunc
		once        sync.Once
		quality     int
	}
)

const defaultScreenshotQuality = 90

// NewChromeProvider creates a provider. An empty remoteURL launches a local
// browser for each acquired Target
func NewChromeProvider(remoteURL string) *ChromeProvider {
	return &ChromeProvider{
		RemoteURL: remoteURL,
		Quality:   defaultScreenshotQuality,
	}
}

// Acquire starts a browser tab. The tab outlives ctx and stays open until
// the returned Target is closed
func (p *ChromeProvider) Acquire(
	ctx context.Context, opts Options,
) (Target, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc

	base := context.WithoutCancel(ctx)
	if p.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(base, p.RemoteURL)
	} else {
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
		)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(base, allocOpts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	t := &chromeTarget{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		quality:     p.Quality,
	}

	// the first Run allocates the browser and must not carry a deadline,
	// or the whole browser would stop with it
	if err := chromedp.Run(tabCtx); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	slog.Debug("Browser target acquired",
		slog.String("label", opts.Label),
		slog.Bool("headless", opts.Headless),
		slog.Bool("remote", p.RemoteURL != ""))
	return t, nil
}

func (t *chromeTarget) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnreachable, url, err)
	}
	return nil
}

func (t *chromeTarget) Click(ctx context.Context, selector string) error {
	return t.element(ctx, selector,
		chromedp.WaitVisible(selector),
		chromedp.Click(selector),
	)
}

func (t *chromeTarget) Type(ctx context.Context, selector, text string) error {
	return t.element(ctx, selector,
		chromedp.WaitVisible(selector),
		chromedp.SetValue(selector, ""),
		chromedp.SendKeys(selector, text),
	)
}

func (t *chromeTarget) Extract(
	ctx context.Context, selector string,
) (string, error) {
	var text string
	err := t.element(ctx, selector,
		chromedp.WaitVisible(selector),
		chromedp.Text(selector, &text, chromedp.NodeVisible),
	)
	return text, err
}

func (t *chromeTarget) WaitFor(ctx context.Context, selector string) error {
	return t.element(ctx, selector, chromedp.WaitVisible(selector))
}

func (t *chromeTarget) Exists(
	ctx context.Context, selector string,
) (bool, error) {
	var nodes []*cdp.Node
	err := t.run(ctx,
		chromedp.Nodes(selector, &nodes, chromedp.AtLeast(0)),
	)
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (t *chromeTarget) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, chromedp.FullScreenshot(&buf, t.quality)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *chromeTarget) Close() error {
	var err error
	t.once.Do(func() {
		err = chromedp.Cancel(t.ctx)
		t.cancelTab()
		t.cancelAlloc()
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Browser close failed", log.Error(err))
		} else {
			err = nil
		}
	})
	return err
}

func (t *chromeTarget) element(
	ctx context.Context, selector string, actions ...chromedp.Action,
) error {
	err := t.run(ctx, actions...)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrElementNotFound, selector, err)
	}
	return err
}

// run executes actions on the tab while honoring the caller's deadline and
// cancellation
func (t *chromeTarget) run(
	ctx context.Context, actions ...chromedp.Action,
) error {
	if t.ctx.Err() != nil {
		return ErrClosed
	}

	runCtx, cancel := context.WithCancelCause(t.ctx)
	defer cancel(nil)
	stop := context.AfterFunc(ctx, func() {
		cancel(context.Cause(ctx))
	})
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if cause := context.Cause(runCtx); cause != nil && ctx.Err() != nil {
		return cause
	}
	return err
}
