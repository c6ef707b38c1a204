package announce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hammamikhairi/turnocall/internal/broadcast"
	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/feed"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface check.
var _ feed.Announcer = (*Coordinator)(nil)

// Pipeline is the single entry point call consoles use, and the owner of
// every subscription a display holds. Either the transport or the
// listener may be nil; the pipeline then runs on the remaining path.
type Pipeline struct {
	coord     *Coordinator
	transport *broadcast.Transport
	listener  *feed.Listener
	log       *logger.Logger
	now       func() time.Time

	mu      sync.Mutex
	unsub   func()
	started bool
	closed  bool
}

// NewPipeline joins coord with its delivery paths.
func NewPipeline(coord *Coordinator, transport *broadcast.Transport, listener *feed.Listener, log *logger.Logger) *Pipeline {
	return &Pipeline{
		coord:     coord,
		transport: transport,
		listener:  listener,
		log:       log,
		now:       coord.now,
	}
}

// Start subscribes the coordinator to broadcast announcements and starts
// the change-feed listener. A feed that cannot start is logged and the
// pipeline continues on broadcast alone.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.ErrClosed
	}
	if p.started {
		return nil
	}
	p.started = true

	if p.transport != nil {
		p.unsub = p.transport.Subscribe(func(ev domain.AnnouncementEvent) {
			p.coord.NotifyEvent(context.Background(), ev)
		})
	}
	if p.listener != nil {
		if err := p.listener.Start(ctx); err != nil {
			p.log.Warn("pipeline: change feed unavailable: %v", err)
			if p.transport == nil || !p.transport.Supported() {
				return err
			}
		}
	}
	return nil
}

// AnnounceTicket broadcasts a call to every display and announces it
// locally. It reports whether the local coordinator accepted it; a
// broadcast failure only costs latency, since the change feed carries the
// same call.
func (p *Pipeline) AnnounceTicket(ctx context.Context, call domain.Call) bool {
	ctx, span := p.coord.tracer.Start(ctx, "announce.AnnounceTicket", trace.WithAttributes(
		attribute.String("ticket.number", call.Ticket.TicketNumber),
	))
	defer span.End()

	now := p.now()
	ev := domain.AnnouncementEvent{
		TicketID:                call.Ticket.ID,
		TicketNumber:            call.Ticket.TicketNumber,
		DestinationName:         call.DestinationName,
		RedirectedFromService:   call.RedirectedFromService,
		OriginalDestinationName: call.OriginalDestinationName,
		MessageID:               broadcast.NewMessageID(now),
		Timestamp:               now,
	}

	if strings.TrimSpace(ev.DestinationName) == "" {
		return p.coord.NotifyEvent(ctx, ev)
	}

	if p.transport != nil {
		err := p.transport.Publish(ctx, ev)
		switch {
		case err == nil:
			span.SetAttributes(attribute.Bool("broadcast.published", true))
		case errors.Is(err, domain.ErrBroadcastUnsupported):
			p.log.Debug("pipeline: broadcast unsupported, relying on change feed")
		default:
			span.RecordError(err)
			p.log.Warn("pipeline: broadcast of %s failed: %v", ev.TicketNumber, err)
		}
	}

	return p.coord.NotifyEvent(ctx, ev)
}

// Close tears down the subscription, the listener, the transport and the
// coordinator, in that order.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unsub := p.unsub
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if p.listener != nil {
		p.listener.Stop()
	}
	if p.transport != nil {
		p.transport.Close()
	}
	p.coord.Close()
	p.log.Debug("pipeline: closed")
}
