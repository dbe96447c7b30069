// Package fetch provides polite HTTP page fetching and HTML-to-text processing for the
// company site crawler.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 12 * time.Second

// DefaultDelay is the pause enforced between two requests from the same Fetcher.
const DefaultDelay = time.Second

// DefaultMaxRedirects caps the redirect chain followed for one request.
const DefaultMaxRedirects = 10

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 5 << 20

// DefaultUserAgents are realistic desktop browser identities rotated across requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
}

// defaultHeaders accompany every request so responses match what a browser would get.
var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// Result holds the raw and processed content from a URL fetch.
type Result struct {
	URL         string
	FinalURL    string
	HTML        string
	ContentType string
	StatusCode  int
}

// Error represents an error during URL fetching. A crawler treats it as local to the URL.
type Error struct {
	URL        string
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout      time.Duration
	Delay        time.Duration
	UserAgents   []string
	Headers      map[string]string
	MaxRedirects int
	MaxBodyBytes int64
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:      DefaultTimeout,
		Delay:        DefaultDelay,
		UserAgents:   DefaultUserAgents,
		MaxRedirects: DefaultMaxRedirects,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// withDefaults fills zero-valued options from DefaultOptions.
func (o *Options) withDefaults() Options {
	def := DefaultOptions()
	if o == nil {
		return *def
	}
	out := *o
	if out.Timeout <= 0 {
		out.Timeout = def.Timeout
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if len(out.UserAgents) == 0 {
		out.UserAgents = def.UserAgents
	}
	if out.MaxRedirects <= 0 {
		out.MaxRedirects = def.MaxRedirects
	}
	if out.MaxBodyBytes <= 0 {
		out.MaxBodyBytes = def.MaxBodyBytes
	}
	return out
}

// Fetcher issues GET requests with a politeness delay and a rotating User-Agent.
// A Fetcher is safe for concurrent use; requests are spaced at least Delay apart.
type Fetcher struct {
	client *http.Client
	opts   Options

	mu     sync.Mutex
	nextUA int
	last   time.Time
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher. A nil opts uses DefaultOptions.
func NewFetcher(opts *Options) *Fetcher {
	o := opts.withDefaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: o.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= o.MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", o.MaxRedirects)
				}
				return nil
			},
		},
		opts:  o,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// URL retrieves HTML content from a URL without politeness spacing. Use a Fetcher for
// crawls that issue several requests to the same site.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	f := NewFetcher(opts)
	return f.do(ctx, urlStr, f.opts.UserAgents[0])
}

// Fetch waits out the politeness delay, then retrieves urlStr.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	ua, err := f.reserve(ctx)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "cancelled before request", Cause: err}
	}
	return f.do(ctx, urlStr, ua)
}

// reserve blocks until the next request slot and returns the User-Agent to use.
func (f *Fetcher) reserve(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.last.IsZero() && f.opts.Delay > 0 {
		if wait := f.opts.Delay - f.now().Sub(f.last); wait > 0 {
			if err := f.sleep(ctx, wait); err != nil {
				return "", err
			}
		}
	}
	f.last = f.now()

	ua := f.opts.UserAgents[f.nextUA%len(f.opts.UserAgents)]
	f.nextUA++
	return ua, nil
}

func (f *Fetcher) do(ctx context.Context, urlStr, userAgent string) (*Result, error) {
	// Validate URL
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Host == "" || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return nil, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	req.Header.Set("User-Agent", userAgent)
	for key, value := range defaultHeaders {
		req.Header.Set(key, value)
	}
	for key, value := range f.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{
			URL:       urlStr,
			Message:   "HTTP request failed",
			Retryable: isTransient(err),
			Cause:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, &Error{
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response body",
			Retryable:  true,
			Cause:      err,
		}
	}

	result := &Result{
		URL:         urlStr,
		FinalURL:    resp.Request.URL.String(),
		HTML:        string(bodyBytes),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &Error{
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	if !IsHTMLContentType(result.ContentType) {
		return result, &Error{
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unsupported content type %q", result.ContentType),
		}
	}

	return result, nil
}

// IsHTMLContentType reports whether a Content-Type header denotes an HTML document.
// A missing header is accepted.
func IsHTMLContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PageText returns the visible text of a page with scripts and styles removed and
// whitespace collapsed to single spaces. Unlike ExtractMainText it keeps headers and
// footers, where contact details often live.
func PageText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	// Block elements are separated so adjacent cells do not run together.
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, td, th, br, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// ExtractMainText parses HTML and returns the main body text.
// It removes noise elements using noiseSelectors, then finds content using contentSelectors.
// If no content selectors match, it falls back to the body element.
func ExtractMainText(html string, contentSelectors []string, noiseSelectors ...string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Remove common unwanted elements (nav, footer, scripts, ads, etc.)
	doc.Find("nav, footer, header, script, style, noscript, .ad, .advertisement, .ads, .sidebar, .cookie-banner, .popup").Remove()

	if len(noiseSelectors) > 0 {
		noiseSelector := strings.Join(noiseSelectors, ", ")
		if noiseSelector != "" {
			doc.Find(noiseSelector).Remove()
		}
	}

	var mainContent *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			mainContent = selection.First()
			break
		}
	}

	if mainContent == nil {
		mainContent = doc.Find("body")
	}

	return cleanWhitespace(mainContent.Text()), nil
}

// DefaultTextSelectors returns standard selectors for general web content.
func DefaultTextSelectors() []string {
	return []string{
		"main",
		"article",
		".content",
		"#content",
		".main-content",
		"#main-content",
	}
}

// cleanWhitespace normalizes whitespace in text.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
