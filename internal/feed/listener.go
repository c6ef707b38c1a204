// Package feed turns ticket row changes into announcement triggers. It is
// the path that reaches displays on other machines when the direct
// broadcast cannot.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/phrase"
)

// DefaultLookupTimeout bounds each room lookup.
const DefaultLookupTimeout = 2 * time.Second

// Announcer receives triggers. Coordinator implements it.
type Announcer interface {
	Notify(ctx context.Context, ticket domain.Ticket, destination, redirectedFrom, originalDestination string) bool
}

// Invalidator is told about every change so list views can refresh.
type Invalidator interface {
	Invalidate()
}

// Option configures a Listener.
type Option func(*Listener)

// WithInvalidator sets the views to invalidate on every change.
func WithInvalidator(inv Invalidator) Option {
	return func(l *Listener) {
		l.views = inv
	}
}

// WithLookupTimeout sets the room lookup timeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(l *Listener) {
		l.lookupTimeout = d
	}
}

// Listener consumes a change source and forwards edge-triggered calls.
type Listener struct {
	source        domain.ChangeSource
	rooms         domain.RoomDirectory
	announcer     Announcer
	views         Invalidator
	lookupTimeout time.Duration
	log           *logger.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time // ticket key -> last known called_at
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewListener creates a listener. Call Start to begin consuming.
func NewListener(source domain.ChangeSource, rooms domain.RoomDirectory, announcer Announcer, log *logger.Logger, opts ...Option) *Listener {
	l := &Listener{
		source:        source,
		rooms:         rooms,
		announcer:     announcer,
		lookupTimeout: DefaultLookupTimeout,
		log:           log,
		lastSeen:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start subscribes to the source and processes changes in the
// background until Stop or ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := l.source.Changes(ctx)
	if err != nil {
		cancel()
		return err
	}

	l.mu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					if ctx.Err() == nil {
						l.log.Warn("change feed: source closed")
					}
					return
				}
				l.Handle(ctx, change)
			}
		}
	}()

	l.log.Debug("change feed: listener started")
	return nil
}

// Stop stops processing and waits for the loop to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	l.log.Debug("change feed: listener stopped")
}

// Handle processes one change. It reports whether an announcement was
// triggered.
func (l *Listener) Handle(ctx context.Context, change domain.TicketChange) bool {
	if l.views != nil {
		l.views.Invalidate()
	}

	if change.Op == domain.OpDelete {
		if change.Old != nil {
			l.forget(change.Old.Key())
		}
		return false
	}
	t := change.New
	if t == nil {
		return false
	}

	if !l.edge(change) {
		return false
	}

	call := l.Resolve(ctx, *t)
	l.log.Debug("change feed: %s called to %s", t.TicketNumber, call.DestinationName)
	return l.announcer.Notify(ctx, call.Ticket, call.DestinationName,
		call.RedirectedFromService, call.OriginalDestinationName)
}

// Resolve names the destination of a called ticket and, for redirected
// tickets, the room it was referred from.
func (l *Listener) Resolve(ctx context.Context, t domain.Ticket) domain.Call {
	call := domain.Call{
		Ticket:                t,
		DestinationName:       l.destination(ctx, t.Counter()),
		RedirectedFromService: t.RedirectedFrom,
	}
	if t.RedirectedFrom != "" {
		call.OriginalDestinationName = l.serviceRoom(ctx, t.RedirectedFrom)
	}
	return call
}

// edge reports whether the change sets a call time not present in the
// prior known state, and records the new state.
func (l *Listener) edge(change domain.TicketChange) bool {
	t := change.New
	key := t.Key()

	l.mu.Lock()
	defer l.mu.Unlock()

	seen, hadSeen := l.lastSeen[key]
	if t.Closed() || t.CalledAt == nil {
		delete(l.lastSeen, key)
	} else {
		l.lastSeen[key] = *t.CalledAt
	}

	if t.Status != domain.StatusServing || t.CalledAt == nil {
		return false
	}

	// A full prior row is authoritative. Feeds that send only the key
	// columns in old_record fall back to what this listener saw last.
	if old := change.Old; old != nil && old.TicketNumber != "" {
		return old.CalledAt == nil || !old.CalledAt.Equal(*t.CalledAt)
	}
	return !hadSeen || !seen.Equal(*t.CalledAt)
}

func (l *Listener) forget(key string) {
	l.mu.Lock()
	delete(l.lastSeen, key)
	l.mu.Unlock()
}

// destination resolves a counter to its room name, falling back to a
// generic name when the lookup fails.
func (l *Listener) destination(ctx context.Context, counter string) string {
	ctx, cancel := context.WithTimeout(ctx, l.lookupTimeout)
	defer cancel()

	room, err := l.rooms.Room(ctx, counter)
	if err != nil || room == nil || room.Name == "" {
		if err != nil {
			l.log.Debug("change feed: room lookup for counter %q: %v", counter, err)
		}
		return phrase.FallbackDestination(counter)
	}
	return room.Name
}

// serviceRoom names the room of a service, or "" when unknown.
func (l *Listener) serviceRoom(ctx context.Context, serviceCode string) string {
	ctx, cancel := context.WithTimeout(ctx, l.lookupTimeout)
	defer cancel()

	room, err := l.rooms.RoomForService(ctx, serviceCode)
	if err != nil || room == nil {
		l.log.Debug("change feed: no room for service %s", serviceCode)
		return ""
	}
	return room.Name
}
