package crawling

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jonathan/outreach-agent/internal/fetch"
	"go.uber.org/zap"
)

const (
	// MaxPagesLimit is the hard maximum number of pages to crawl
	MaxPagesLimit = 50
	// DefaultMaxPages is used when a caller passes zero
	DefaultMaxPages = 20
)

// Fetcher retrieves one page. *fetch.Fetcher and *fetch.BrowserFetcher implement it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Page is a successfully fetched HTML page.
type Page struct {
	URL      string
	HTML     string
	Category Category
}

// PageVisitor receives each fetched page. Returning an error aborts the crawl.
type PageVisitor func(ctx context.Context, page Page) error

// Options bounds a crawl.
type Options struct {
	MaxPages int
	// SeedPriorityPaths queues PriorityPaths right after the homepage.
	SeedPriorityPaths bool
	// OnAttempt is called after every fetch attempt with the pages used so far.
	OnAttempt func(attempted, maxPages int)
}

// Stats summarises a crawl.
type Stats struct {
	Attempted int
	Fetched   int
	Failed    int
	Visited   []string
}

// Crawler walks one company site breadth-first, same-site only, up to a page budget.
type Crawler struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewCrawler creates a Crawler over fetcher.
func NewCrawler(fetcher Fetcher, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{fetcher: fetcher, logger: logger}
}

// ClampMaxPages applies the default and hard limit to a requested page budget.
func ClampMaxPages(maxPages int) int {
	if maxPages < 1 {
		return DefaultMaxPages
	}
	if maxPages > MaxPagesLimit {
		return MaxPagesLimit
	}
	return maxPages
}

// Crawl visits pages starting at seedURL. Each page counts against the budget whether or
// not its fetch succeeds; failed pages are logged and skipped. Cancellation is checked at
// every page boundary, and the stats gathered so far are returned with ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, seedURL string, opts Options, visit PageVisitor) (*Stats, error) {
	seed, err := url.Parse(strings.TrimSpace(seedURL))
	if err != nil || seed.Host == "" || (seed.Scheme != "http" && seed.Scheme != "https") {
		return nil, &CrawlError{Message: "invalid seed URL " + seedURL, Cause: err}
	}

	maxPages := ClampMaxPages(opts.MaxPages)
	stats := &Stats{}
	seen := make(map[string]bool)
	queue := make([]string, 0, maxPages*2)

	enqueue := func(raw string) {
		key := NormalizeRawURL(raw)
		if seen[key] {
			return
		}
		u, err := url.Parse(key)
		if err != nil || IsBlockedPath(u.Path) {
			return
		}
		seen[key] = true
		queue = append(queue, key)
	}

	enqueue(seed.String())
	if opts.SeedPriorityPaths {
		for _, p := range PriorityPaths {
			enqueue(seed.ResolveReference(&url.URL{Path: p}).String())
		}
	}

	for len(queue) > 0 && stats.Attempted < maxPages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		pageURL := queue[0]
		queue = queue[1:]
		stats.Attempted++
		stats.Visited = append(stats.Visited, pageURL)

		result, err := c.fetcher.Fetch(ctx, pageURL)
		if opts.OnAttempt != nil {
			opts.OnAttempt(stats.Attempted, maxPages)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			stats.Failed++
			var fetchErr *fetch.Error
			if errors.As(err, &fetchErr) {
				c.logger.Debug("skipping page", zap.String("url", pageURL), zap.Int("status", fetchErr.StatusCode), zap.String("reason", fetchErr.Message))
			} else {
				c.logger.Warn("skipping page", zap.String("url", pageURL), zap.Error(err))
			}
			continue
		}
		stats.Fetched++

		base := pageURL
		if result.FinalURL != "" {
			if final, err := url.Parse(result.FinalURL); err == nil && SameSite(final.Host, seed.Host) {
				base = result.FinalURL
				seen[NormalizeRawURL(base)] = true
			} else {
				c.logger.Debug("page redirected off-site", zap.String("url", pageURL), zap.String("final_url", result.FinalURL))
				continue
			}
		}

		if err := visit(ctx, Page{URL: base, HTML: result.HTML, Category: ClassifyURL(base)}); err != nil {
			return stats, &CrawlError{Message: "page visitor failed for " + base, Cause: err}
		}

		links, err := ExtractLinks(result.HTML, base)
		if err != nil {
			c.logger.Debug("link extraction failed", zap.String("url", base), zap.Error(err))
			continue
		}
		for _, cl := range ClassifyLinks(links) {
			if SameSite(hostOf(cl.URL), seed.Host) {
				enqueue(cl.URL)
			}
		}
	}

	return stats, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
