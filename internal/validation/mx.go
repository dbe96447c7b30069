package validation

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMXTimeout bounds a single MX lookup.
const DefaultMXTimeout = 5 * time.Second

// DefaultMXCacheTTL is how long a lookup verdict is reused.
const DefaultMXCacheTTL = 6 * time.Hour

// Resolver is the subset of *net.Resolver used for MX lookups.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// MXCache stores per-domain MX verdicts. Lookup errors are never cached.
type MXCache interface {
	Get(ctx context.Context, domain string) (valid bool, found bool)
	Set(ctx context.Context, domain string, valid bool)
}

// MXChecker reports whether a domain accepts mail.
type MXChecker interface {
	HasMX(ctx context.Context, domain string) (bool, error)
}

// DNSChecker resolves MX records with an optional cache.
type DNSChecker struct {
	resolver Resolver
	cache    MXCache
	timeout  time.Duration
}

// NewDNSChecker creates a DNSChecker. A nil resolver uses net.DefaultResolver and a nil
// cache disables caching.
func NewDNSChecker(resolver Resolver, cache MXCache, timeout time.Duration) *DNSChecker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = DefaultMXTimeout
	}
	return &DNSChecker{resolver: resolver, cache: cache, timeout: timeout}
}

// HasMX returns false with a nil error when the domain has no usable MX record, and a
// *LookupError when the answer could not be determined.
func (c *DNSChecker) HasMX(ctx context.Context, domain string) (bool, error) {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if c.cache != nil {
		if valid, ok := c.cache.Get(ctx, domain); ok {
			return valid, nil
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	records, err := c.resolver.LookupMX(lookupCtx, domain)
	valid := false
	if err != nil {
		var dnsErr *net.DNSError
		if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
			return false, &LookupError{Domain: domain, Cause: err}
		}
	} else {
		for _, mx := range records {
			// A lone "." host is a null MX: the domain explicitly accepts no mail.
			if mx != nil && strings.TrimSuffix(mx.Host, ".") != "" {
				valid = true
				break
			}
		}
	}

	if c.cache != nil {
		c.cache.Set(ctx, domain, valid)
	}
	return valid, nil
}

// MemoryCache is an in-process MXCache with a fixed TTL.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	valid   bool
	expires time.Time
}

// NewMemoryCache creates a MemoryCache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultMXCacheTTL
	}
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements MXCache.
func (m *MemoryCache) Get(_ context.Context, domain string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[domain]
	if !ok {
		return false, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, domain)
		return false, false
	}
	return e.valid, true
}

// Set implements MXCache.
func (m *MemoryCache) Set(_ context.Context, domain string, valid bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[domain] = memoryEntry{valid: valid, expires: m.now().Add(m.ttl)}
}

// RedisCache is an MXCache shared between processes.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache storing keys under "mx:".
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultMXCacheTTL
	}
	return &RedisCache{client: client, prefix: "mx:", ttl: ttl}
}

// Get implements MXCache. Redis failures read as a miss.
func (r *RedisCache) Get(ctx context.Context, domain string) (bool, bool) {
	val, err := r.client.Get(ctx, r.prefix+domain).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Set implements MXCache. Redis failures are ignored; the next lookup goes to DNS.
func (r *RedisCache) Set(ctx context.Context, domain string, valid bool) {
	val := "0"
	if valid {
		val = "1"
	}
	_ = r.client.Set(ctx, r.prefix+domain, val, r.ttl).Err()
}
