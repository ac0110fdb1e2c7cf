package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// ChromeFactory opens headless Chrome sessions via chromedp.
type ChromeFactory struct {
	userAgent string
	headless  bool
}

// NewChromeFactory creates a session factory. Headless is disabled only for
// local debugging.
func NewChromeFactory(userAgent string, headless bool) *ChromeFactory {
	return &ChromeFactory{userAgent: userAgent, headless: headless}
}

// NewSession launches a browser and returns a driver bound to one tab.
func (f *ChromeFactory) NewSession(ctx context.Context) (Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1366, 900),
	)
	if f.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.userAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// forces the browser process to start so failures surface here
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &chromeDriver{
		ctx:     tabCtx,
		cancels: []context.CancelFunc{cancelTab, cancelAlloc},
	}, nil
}

type chromeDriver struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

// run executes actions on the session tab, honoring the caller's deadline.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := d.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(d.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *chromeDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *chromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (d *chromeDriver) Type(ctx context.Context, selector, text string) error {
	return d.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (d *chromeDriver) IsEnabled(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(
		`(function(){var el=document.querySelector(%q);return !!el && !el.disabled;})()`,
		selector)
	var enabled bool
	if err := d.run(ctx, chromedp.Evaluate(script, &enabled)); err != nil {
		return false, err
	}
	return enabled, nil
}

func (d *chromeDriver) Reload(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload())
}

func (d *chromeDriver) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *chromeDriver) Close() error {
	for _, cancel := range d.cancels {
		cancel()
	}
	return nil
}
