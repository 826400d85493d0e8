// Package handler provides HTTP handlers for the API router.
package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hpn/hpn-p-router/internal/challenge"
	"github.com/hpn/hpn-p-router/internal/domain"
	"github.com/hpn/hpn-p-router/internal/observability"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER CACHE - In-Memory Caching of Completed Answers
// ══════════════════════════════════════════════════════════════════════════════
//
// Key: SHA256 of the canonical stringification of (model, messages)
// Value: full answer text with TTL
// Only non-streaming completions are cached.
//
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultCacheTTL is the default time-to-live for cache entries.
	DefaultCacheTTL = 5 * time.Minute

	// CleanupInterval is how often the cache cleaner runs.
	CleanupInterval = 1 * time.Minute
)

// CacheEntry is a cached answer with its expiration time.
type CacheEntry struct {
	Answer    string
	ExpireAt  time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.ExpireAt)
}

// AnswerCache is a thread-safe in-memory cache of completed answers.
type AnswerCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	ttl     time.Duration
	logger  *slog.Logger

	hits   int64
	misses int64

	stop     chan struct{}
	stopOnce sync.Once
}

// AnswerCacheOption is a functional option for configuring AnswerCache.
type AnswerCacheOption func(*AnswerCache)

// WithCacheTTL sets a custom TTL for cache entries.
func WithCacheTTL(ttl time.Duration) AnswerCacheOption {
	return func(c *AnswerCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets a custom logger.
func WithCacheLogger(logger *slog.Logger) AnswerCacheOption {
	return func(c *AnswerCache) {
		c.logger = logger
	}
}

// NewAnswerCache creates a cache and starts its background cleanup. Call
// Stop to end the cleanup goroutine.
func NewAnswerCache(opts ...AnswerCacheOption) *AnswerCache {
	c := &AnswerCache{
		entries: make(map[string]*CacheEntry),
		ttl:     DefaultCacheTTL,
		logger:  slog.Default(),
		stop:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.startCleanup()

	return c
}

// CacheKey hashes the model and the ordered conversation. Message contents
// are percent-encoded so that no content can forge the delimiters of the
// canonical form.
func CacheKey(model string, messages []domain.Message) string {
	items := make([]any, len(messages))
	for i, m := range messages {
		items[i] = map[string]any{
			"index":   strconv.Itoa(i),
			"role":    string(m.Role),
			"content": challenge.QuoteAll(m.Content),
		}
	}

	canonical := challenge.Stringify(map[string]any{
		"model":    challenge.QuoteAll(model),
		"messages": items,
	})

	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// Get retrieves a cached answer by key.
func (c *AnswerCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || entry.IsExpired() {
		if exists {
			delete(c.entries, key)
		}
		c.misses++
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return "", false
	}

	c.hits++
	observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry.Answer, true
}

// Set stores an answer with the configured TTL.
func (c *AnswerCache) Set(key string, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[key] = &CacheEntry{
		Answer:    answer,
		ExpireAt:  now.Add(c.ttl),
		CreatedAt: now,
	}
}

// Stop ends the background cleanup. It is safe to call more than once.
func (c *AnswerCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *AnswerCache) startCleanup() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

// cleanup removes all expired entries from the cache.
func (c *AnswerCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0

	for key, entry := range c.entries {
		if now.After(entry.ExpireAt) {
			delete(c.entries, key)
			expired++
		}
	}

	if expired > 0 && c.logger != nil {
		c.logger.Debug("cache cleanup",
			slog.Int("expired_entries", expired),
			slog.Int("remaining_entries", len(c.entries)),
		)
	}
}

// Stats returns cache hit/miss statistics.
func (c *AnswerCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.entries)
}
