package cache

import (
	"context"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Pages caches rendered read views per route and caller until they expire or an
// action revalidates their route.
type Pages interface {
	Get(route, callerID string) ([]byte, bool)
	Set(route, callerID string, body []byte)
	Revalidate(routes ...string) int
}

type PageTTL struct {
	cache *ttlcache.Cache[string, []byte]
}

func NewPageTTL(ttl time.Duration) *PageTTL {
	opts := []ttlcache.Option[string, []byte]{}
	opts = append(opts, ttlcache.WithTTL[string, []byte](ttl))
	opts = append(opts, ttlcache.WithDisableTouchOnHit[string, []byte]())

	return &PageTTL{
		cache: ttlcache.New(opts...),
	}
}

func pageKey(route, callerID string) string {
	return route + "|" + callerID
}

func (c *PageTTL) Get(route, callerID string) ([]byte, bool) {
	if item := c.cache.Get(pageKey(route, callerID)); item != nil {
		return item.Value(), true
	}
	return nil, false
}

func (c *PageTTL) Set(route, callerID string, body []byte) {
	c.cache.Set(pageKey(route, callerID), body, ttlcache.DefaultTTL)
}

// Revalidate drops every cached copy of the given routes, for all callers, and
// returns how many entries were removed.
func (c *PageTTL) Revalidate(routes ...string) int {
	if len(routes) == 0 {
		return 0
	}
	prefixes := make([]string, len(routes))
	for i, r := range routes {
		prefixes[i] = r + "|"
	}

	removed := 0
	for _, key := range c.cache.Keys() {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				c.cache.Delete(key)
				removed++
				break
			}
		}
	}
	return removed
}

func (c *PageTTL) Len() int {
	return c.cache.Len()
}

// Start starts the cache background cleanup and blocks until context is cancelled
func (c *PageTTL) Start(ctx context.Context) {
	go c.cache.Start()
	<-ctx.Done()
	c.cache.Stop()
}

func (c *PageTTL) Stop() {
	c.cache.Stop()
}

// Noop never stores anything. Used when caching is disabled.
type Noop struct{}

func (Noop) Get(string, string) ([]byte, bool) { return nil, false }
func (Noop) Set(string, string, []byte)        {}
func (Noop) Revalidate(...string) int          { return 0 }
