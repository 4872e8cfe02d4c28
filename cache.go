package devquote

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/eringen/devquote/datastore"
)

const maxCachedPages = 256

// PostCache keeps recently served pages of published posts for a short TTL.
// Admin writes invalidate it; failed lookups are never cached.
type PostCache struct {
	mu    sync.RWMutex
	pages map[datastore.ListOptions]cachedPage
	ttl   time.Duration
	clock clock.Clock
	store *datastore.Store
}

type cachedPage struct {
	page    datastore.Page
	fetched time.Time
}

// NewPostCache creates a PostCache backed by store. A zero ttl disables caching.
func NewPostCache(store *datastore.Store, ttl time.Duration, clk clock.Clock) *PostCache {
	return &PostCache{
		pages: make(map[datastore.ListOptions]cachedPage),
		ttl:   ttl,
		clock: clk,
		store: store,
	}
}

// Invalidate drops every cached page.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.pages = make(map[datastore.ListOptions]cachedPage)
	c.mu.Unlock()
}

// ListPublished returns one page of published posts.
func (c *PostCache) ListPublished(ctx context.Context, opts datastore.ListOptions) datastore.Result[datastore.Page] {
	opts.PublishedOnly = true

	c.mu.RLock()
	entry, ok := c.pages[opts]
	c.mu.RUnlock()
	if ok && c.clock.Now().Sub(entry.fetched) < c.ttl {
		return datastore.Result[datastore.Page]{Value: entry.page}
	}

	res := c.store.ListPosts(ctx, opts)
	if !res.OK() || c.ttl <= 0 {
		return res
	}

	c.mu.Lock()
	if len(c.pages) >= maxCachedPages {
		c.pages = make(map[datastore.ListOptions]cachedPage)
	}
	c.pages[opts] = cachedPage{page: res.Value, fetched: c.clock.Now()}
	c.mu.Unlock()
	return res
}
