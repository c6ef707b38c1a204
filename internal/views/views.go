// Package views caches the "currently serving" and "waiting queue" lists
// shown next to announcements. The change feed invalidates them; they
// reload lazily on the next read.
package views

import (
	"context"
	"sync"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Cache holds the two list views. Safe for concurrent use.
type Cache struct {
	queries domain.TicketQueries
	log     *logger.Logger

	mu       sync.Mutex
	serving  []domain.Ticket
	waiting  []domain.Ticket
	fresh    bool
	gen      uint64
	onChange []func()
}

// New creates an empty cache over queries.
func New(queries domain.TicketQueries, log *logger.Logger) *Cache {
	return &Cache{queries: queries, log: log}
}

// OnInvalidate registers fn to run after every Invalidate, so list UIs
// can re-read.
func (c *Cache) OnInvalidate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Invalidate drops both views.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fresh = false
	c.serving, c.waiting = nil, nil
	c.gen++
	fns := append([]func(){}, c.onChange...)
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Serving returns the serving list, loading it if stale.
func (c *Cache) Serving(ctx context.Context) ([]domain.Ticket, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Ticket(nil), c.serving...), nil
}

// Waiting returns the waiting list, loading it if stale.
func (c *Cache) Waiting(ctx context.Context) ([]domain.Ticket, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Ticket(nil), c.waiting...), nil
}

// load refreshes both lists unless fresh. A load that races an
// Invalidate is discarded.
func (c *Cache) load(ctx context.Context) error {
	c.mu.Lock()
	if c.fresh {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	serving, err := c.queries.ListServing(ctx)
	if err != nil {
		return err
	}
	waiting, err := c.queries.ListWaiting(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.serving, c.waiting, c.fresh = serving, waiting, true
		c.log.Debug("views: loaded %d serving, %d waiting", len(serving), len(waiting))
	} else if !c.fresh {
		// Still return something coherent to this caller.
		c.serving, c.waiting = serving, waiting
	}
	return nil
}
