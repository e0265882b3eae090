// Package directory maintains a time-boxed cache of the authoritative
// local-domain list fetched from the directory service. Reads are pure;
// refresh happens only on the cache's own timer.
package directory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cache holds the local-domain list. An empty URL disables the cache,
// in which case every domain reads as local.
type Cache struct {
	url          string
	refreshEvery time.Duration
	httpClient   *http.Client

	mu        sync.RWMutex
	domains   map[string]struct{}
	fetchedAt time.Time
}

// New creates a domain cache. The list is first fetched when Run starts.
func New(url string, refreshEvery time.Duration) *Cache {
	if refreshEvery <= 0 {
		refreshEvery = 5 * time.Minute
	}
	return &Cache{
		url:          url,
		refreshEvery: refreshEvery,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		domains:      make(map[string]struct{}),
	}
}

// Enabled reports whether a directory endpoint is configured.
func (c *Cache) Enabled() bool {
	return c.url != ""
}

// Run fetches the list immediately and then on a fixed interval until
// the context is cancelled. A failed refresh keeps the previous list.
func (c *Cache) Run(ctx context.Context) {
	if !c.Enabled() {
		return
	}

	if err := c.refresh(ctx); err != nil {
		slog.Warn("initial domain list fetch failed", "error", err)
	}

	ticker := time.NewTicker(c.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil {
				slog.Warn("domain list refresh failed", "error", err)
			}
		}
	}
}

// IsLocal reports whether the domain is in the cached list. It is a pure
// read and never triggers network activity. With the cache disabled or
// not yet populated, every domain is considered local so that delivery
// is never blocked on directory availability.
func (c *Cache) IsLocal(domain string) bool {
	if !c.Enabled() {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.domains) == 0 {
		return true
	}
	_, ok := c.domains[strings.ToLower(domain)]
	return ok
}

// Domains returns a copy of the cached list.
func (c *Cache) Domains() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.domains))
	for d := range c.domains {
		out = append(out, d)
	}
	return out
}

// refresh fetches the domain list and swaps it in atomically.
func (c *Cache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch domain list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read domain list: %w", err)
	}

	var list []string
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("parse domain list: %w", err)
	}

	domains := make(map[string]struct{}, len(list))
	for _, d := range list {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains[d] = struct{}{}
		}
	}

	c.mu.Lock()
	c.domains = domains
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	slog.Debug("domain list refreshed", "count", len(domains))
	return nil
}
