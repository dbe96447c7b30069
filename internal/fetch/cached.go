// Package fetch - cached.go wraps page fetching with a shared page cache.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultPageCacheTTL is how long a fetched page stays fresh.
const DefaultPageCacheTTL = 24 * time.Hour

// DefaultFailureTTL is how long a permanently missing page is skipped.
const DefaultFailureTTL = 7 * 24 * time.Hour

// CachedPage is the stored form of a fetch outcome.
type CachedPage struct {
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url,omitempty"`
	HTML        string    `json:"html,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	StatusCode  int       `json:"status_code"`
	Failed      bool      `json:"failed,omitempty"`
	Message     string    `json:"message,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// PageCache stores fetched pages by URL.
type PageCache interface {
	Get(ctx context.Context, url string) (*CachedPage, bool, error)
	Set(ctx context.Context, url string, page *CachedPage, ttl time.Duration) error
	Delete(ctx context.Context, url string) error
}

// CachedFetcherConfig holds configuration for the cached fetcher.
type CachedFetcherConfig struct {
	CacheTTL   time.Duration
	FailureTTL time.Duration
	SkipCache  bool
}

// DefaultCachedFetcherConfig returns sensible defaults.
func DefaultCachedFetcherConfig() *CachedFetcherConfig {
	return &CachedFetcherConfig{
		CacheTTL:   DefaultPageCacheTTL,
		FailureTTL: DefaultFailureTTL,
	}
}

// CachedFetcher serves pages from a PageCache and falls through to next on a miss.
// Pages that answered 404 or 410 are remembered and skipped until FailureTTL expires.
type CachedFetcher struct {
	next      PageFetcher
	cache     PageCache
	cacheTTL  time.Duration
	failTTL   time.Duration
	skipCache bool
	logger    *zap.Logger
}

// NewCachedFetcher creates a new cached fetcher.
func NewCachedFetcher(next PageFetcher, cache PageCache, config *CachedFetcherConfig, logger *zap.Logger) *CachedFetcher {
	if config == nil {
		config = DefaultCachedFetcherConfig()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultPageCacheTTL
	}
	if config.FailureTTL <= 0 {
		config.FailureTTL = DefaultFailureTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFetcher{
		next:      next,
		cache:     cache,
		cacheTTL:  config.CacheTTL,
		failTTL:   config.FailureTTL,
		skipCache: config.SkipCache,
		logger:    logger,
	}
}

// Fetch retrieves a URL, using the cache if it holds a fresh entry.
// Cache errors are logged and never fail the fetch.
func (f *CachedFetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	if f.skipCache || f.cache == nil {
		return f.next.Fetch(ctx, urlStr)
	}

	page, ok, err := f.cache.Get(ctx, urlStr)
	if err != nil {
		f.logger.Warn("page cache read failed", zap.String("url", urlStr), zap.Error(err))
	}
	if ok {
		if page.Failed {
			return nil, &Error{
				URL:        urlStr,
				StatusCode: page.StatusCode,
				Message:    fmt.Sprintf("URL skipped: %s", page.Message),
			}
		}
		f.logger.Debug("page cache hit", zap.String("url", urlStr))
		return &Result{
			URL:         urlStr,
			FinalURL:    page.FinalURL,
			HTML:        page.HTML,
			ContentType: page.ContentType,
			StatusCode:  page.StatusCode,
		}, nil
	}

	result, err := f.next.Fetch(ctx, urlStr)
	if err != nil {
		var fetchErr *Error
		if errors.As(err, &fetchErr) && isPermanentStatus(fetchErr.StatusCode) {
			f.store(ctx, urlStr, &CachedPage{
				URL:        urlStr,
				StatusCode: fetchErr.StatusCode,
				Failed:     true,
				Message:    fetchErr.Message,
				FetchedAt:  time.Now().UTC(),
			}, f.failTTL)
		}
		return result, err
	}

	f.store(ctx, urlStr, &CachedPage{
		URL:         urlStr,
		FinalURL:    result.FinalURL,
		HTML:        result.HTML,
		ContentType: result.ContentType,
		StatusCode:  result.StatusCode,
		FetchedAt:   time.Now().UTC(),
	}, f.cacheTTL)
	return result, nil
}

func (f *CachedFetcher) store(ctx context.Context, urlStr string, page *CachedPage, ttl time.Duration) {
	if err := f.cache.Set(ctx, urlStr, page, ttl); err != nil {
		f.logger.Warn("page cache write failed", zap.String("url", urlStr), zap.Error(err))
	}
}

// InvalidateCache drops a cached page, forcing a re-fetch on next request.
func (f *CachedFetcher) InvalidateCache(ctx context.Context, urlStr string) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Delete(ctx, urlStr)
}

func isPermanentStatus(code int) bool {
	return code == http.StatusNotFound || code == http.StatusGone
}

// MemoryPageCache is an in-process PageCache.
type MemoryPageCache struct {
	mu      sync.Mutex
	entries map[string]memoryPage
	now     func() time.Time
}

type memoryPage struct {
	page    CachedPage
	expires time.Time
}

// NewMemoryPageCache creates an empty in-process cache.
func NewMemoryPageCache() *MemoryPageCache {
	return &MemoryPageCache{entries: make(map[string]memoryPage), now: time.Now}
}

// Get returns a copy of the entry for url if it has not expired.
func (c *MemoryPageCache) Get(_ context.Context, url string) (*CachedPage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, url)
		return nil, false, nil
	}
	page := e.page
	return &page, true, nil
}

// Set stores page for ttl.
func (c *MemoryPageCache) Set(_ context.Context, url string, page *CachedPage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = memoryPage{page: *page, expires: c.now().Add(ttl)}
	return nil
}

// Delete removes the entry for url.
func (c *MemoryPageCache) Delete(_ context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
	return nil
}

// RedisPageCache stores pages as JSON values with a Redis TTL.
type RedisPageCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisPageCache creates a Redis-backed cache. Keys are prefixed with "page:".
func NewRedisPageCache(client redis.Cmdable) *RedisPageCache {
	return &RedisPageCache{client: client, prefix: "page:"}
}

// Get loads and decodes the entry for url.
func (c *RedisPageCache) Get(ctx context.Context, url string) (*CachedPage, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+url).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached page: %w", err)
	}
	var page CachedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached page: %w", err)
	}
	return &page, true, nil
}

// Set encodes and stores page for ttl.
func (c *RedisPageCache) Set(ctx context.Context, url string, page *CachedPage, ttl time.Duration) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode cached page: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+url, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cached page: %w", err)
	}
	return nil
}

// Delete removes the entry for url.
func (c *RedisPageCache) Delete(ctx context.Context, url string) error {
	if err := c.client.Del(ctx, c.prefix+url).Err(); err != nil {
		return fmt.Errorf("failed to delete cached page: %w", err)
	}
	return nil
}
