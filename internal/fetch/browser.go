// Package fetch - browser.go provides headless browser rendering for JavaScript-built team pages.
package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// MinContentLength is the minimum extracted text length to consider HTTP fetch successful.
// If content is shorter, we should fall back to browser rendering.
const MinContentLength = 500

// DefaultBrowserTimeout bounds one headless render.
const DefaultBrowserTimeout = 30 * time.Second

// ShouldUseBrowser returns true if the extracted text is too short,
// indicating the page is likely a JavaScript-rendered SPA.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// RenderFunc renders a page and returns its final HTML.
type RenderFunc func(ctx context.Context, url string, timeout time.Duration) (string, error)

// WithBrowser renders a page in a headless browser and returns the rendered HTML.
// Requires Chrome/Chromium to be installed on the system.
func WithBrowser(ctx context.Context, url string, timeout time.Duration) (string, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(DefaultUserAgents[0]),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// Give client-side rendering time to populate team grids
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}
	return html, nil
}

// PageFetcher retrieves one page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// BrowserFetcher fetches over HTTP first and re-renders in a headless browser when the
// static HTML carries too little text or comes from a client-rendered site builder.
type BrowserFetcher struct {
	base    PageFetcher
	render  RenderFunc
	timeout time.Duration
	logger  *zap.Logger
}

// NewBrowserFetcher wraps base with a chromedp renderer.
func NewBrowserFetcher(base PageFetcher, logger *zap.Logger) *BrowserFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserFetcher{
		base:    base,
		render:  WithBrowser,
		timeout: DefaultBrowserTimeout,
		logger:  logger,
	}
}

// Fetch retrieves url, falling back to a rendered copy for script-driven pages.
// Render failures are logged and the static result is returned.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	res, err := b.base.Fetch(ctx, url)
	if err != nil {
		return res, err
	}

	target := res.FinalURL
	if target == "" {
		target = url
	}

	platform := DetectPlatform(target, res.HTML)
	if !platform.NeedsRendering() {
		text, err := ExtractMainText(res.HTML, PlatformContentSelectors(platform))
		if err != nil || !ShouldUseBrowser(text) {
			return res, nil
		}
	}
	html, err := b.render(ctx, target, b.timeout)
	if err != nil {
		b.logger.Warn("browser render failed, using static HTML", zap.String("url", target), zap.Error(err))
		return res, nil
	}

	b.logger.Debug("rendered page in browser",
		zap.String("url", target),
		zap.String("platform", string(platform)),
		zap.Int("bytes", len(html)))
	res.HTML = html
	return res, nil
}
