package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go-vision-atlas/pkg/models"
)

// Key derives a deterministic cache key from the normalized request:
// analysis type, query, sorted image ids and the option fields that change
// the answer.
func Key(req models.AnalysisRequest) string {
	ids := make([]string, len(req.Images))
	for i, img := range req.Images {
		ids[i] = img.ID
	}
	sort.Strings(ids)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00force=%t\x00quality=%s",
		req.AnalysisType, req.Query, strings.Join(ids, ","),
		req.Options.ForceAtlas, req.Options.QualityLevel)
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	response  models.AnalysisResponse
	expiresAt time.Time
}

// Stats reports cache performance counters
type Stats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// ResponseCache is an in-memory TTL cache for analysis responses. Expiry is
// an expiration timestamp checked lazily on read plus a periodic sweep; no
// per-entry timers.
type ResponseCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time

	hits   int64
	misses int64

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// NewResponseCache creates a cache with the given default TTL
func NewResponseCache(defaultTTL time.Duration) *ResponseCache {
	return &ResponseCache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stopSweep:  make(chan struct{}),
	}
}

// WithClock substitutes the time source, used by tests to control expiry
func (c *ResponseCache) WithClock(now func() time.Time) *ResponseCache {
	c.now = now
	return c
}

// Get returns the cached response for the key if it exists and has not
// expired. Expired entries are removed on read.
func (c *ResponseCache) Get(key string) (models.AnalysisResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return models.AnalysisResponse{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return models.AnalysisResponse{}, false
	}
	c.hits++
	return e.response, true
}

// Set stores a response under the key. A non-positive ttl falls back to the
// default TTL.
func (c *ResponseCache) Set(key string, response models.AnalysisResponse, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		response:  response,
		expiresAt: c.now().Add(ttl),
	}
}

// StartSweeper evicts expired entries on the given interval until Stop is
// called
func (c *ResponseCache) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopSweep:
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Sweep removes every expired entry
func (c *ResponseCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stop terminates the background sweeper
func (c *ResponseCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopSweep)
	})
}

// Stats returns current cache counters
func (c *ResponseCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries: int64(len(c.entries)),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
