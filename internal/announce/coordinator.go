// Package announce decides when and what to announce. The Coordinator
// deduplicates triggers and fans an accepted announcement out to the
// display and the speech engine; the Pipeline joins it to the broadcast
// transport and the change feed.
package announce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/phrase"
)

// Defaults for the coordinator.
const (
	DefaultDedupWindow  = 3 * time.Second
	DefaultSpeakTimeout = 30 * time.Second
	// DefaultMessageMemory outlasts the broadcast redelivery horizon, so
	// every copy of one message is recognised.
	DefaultMessageMemory = 30 * time.Second
)

const tracerName = "github.com/hammamikhairi/turnocall/internal/announce"

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDedupWindow sets how long a repeat trigger for the same ticket is
// absorbed.
func WithDedupWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		c.window = d
	}
}

// WithMessageMemory sets how long a seen broadcast MessageID is
// remembered. Redelivered copies inside it are absorbed whatever the
// dedup window.
func WithMessageMemory(d time.Duration) Option {
	return func(c *Coordinator) {
		c.msgMemory = d
	}
}

// WithClock sets the time source used for the dedup window.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithToaster sets where degradation messages go.
func WithToaster(t domain.Toaster) Option {
	return func(c *Coordinator) {
		c.toaster = t
	}
}

// WithSpeakTimeout bounds each queued announcement, queue wait included.
func WithSpeakTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.speakTimeout = d
	}
}

// Coordinator accepts or absorbs announcement triggers from every path.
// Visual output never waits on, or depends on, audio.
type Coordinator struct {
	display      domain.DisplaySink
	speaker      domain.Speaker // nil = no speech
	toaster      domain.Toaster
	log          *logger.Logger
	window       time.Duration
	msgMemory    time.Duration
	speakTimeout time.Duration
	now          func() time.Time
	tracer       trace.Tracer

	mu              sync.Mutex
	recent          map[string]time.Time // dedup key -> last trigger
	messages        map[string]time.Time // MessageID -> first seen
	toldUnsupported bool
	closed          bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator. speaker may be nil when the
// machine has no audio.
func NewCoordinator(display domain.DisplaySink, speaker domain.Speaker, log *logger.Logger, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		display:      display,
		speaker:      speaker,
		toaster:      logToaster{log},
		log:          log,
		window:       DefaultDedupWindow,
		msgMemory:    DefaultMessageMemory,
		speakTimeout: DefaultSpeakTimeout,
		now:          time.Now,
		tracer:       otel.Tracer(tracerName),
		recent:       make(map[string]time.Time),
		messages:     make(map[string]time.Time),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify announces ticket at destination. It returns false only when the
// request is unusable (no destination or no ticket identity). A repeat
// inside the dedup window returns true without announcing again.
func (c *Coordinator) Notify(ctx context.Context, ticket domain.Ticket, destination, redirectedFrom, originalDestination string) bool {
	return c.NotifyEvent(ctx, domain.AnnouncementEvent{
		TicketID:                ticket.ID,
		TicketNumber:            ticket.TicketNumber,
		DestinationName:         destination,
		RedirectedFromService:   redirectedFrom,
		OriginalDestinationName: originalDestination,
	})
}

// NotifyEvent is Notify for an already-built event, as received from the
// broadcast transport.
func (c *Coordinator) NotifyEvent(ctx context.Context, ev domain.AnnouncementEvent) bool {
	_, span := c.tracer.Start(ctx, "announce.Notify", trace.WithAttributes(
		attribute.String("ticket.number", ev.TicketNumber),
		attribute.String("ticket.destination", ev.DestinationName),
	))
	defer span.End()

	if strings.TrimSpace(ev.DestinationName) == "" {
		c.log.Error("announce: ticket %s: %v", ev.TicketNumber, domain.ErrMissingDestination)
		span.RecordError(domain.ErrMissingDestination)
		c.toaster.Toast(phrase.ToastMissingDestination(ev.TicketNumber))
		return false
	}
	key := ev.Key()
	if key == "" {
		c.log.Error("announce: event without ticket id or number")
		return false
	}

	now := c.now()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.prune(now)
	if ev.MessageID != "" {
		if _, dup := c.messages[ev.MessageID]; dup {
			// Redelivered copy: absorbed without touching the ticket window.
			c.mu.Unlock()
			c.log.Debug("announce: %s message %s seen before, absorbed", ev.TicketNumber, ev.MessageID)
			span.SetAttributes(attribute.Bool("announce.duplicate", true))
			return true
		}
		c.messages[ev.MessageID] = now
	}
	last, seen := c.recent[key]
	c.recent[key] = now
	c.mu.Unlock()

	if seen && now.Sub(last) < c.window {
		c.log.Debug("announce: %s repeated after %s, absorbed", ev.TicketNumber, now.Sub(last))
		span.SetAttributes(attribute.Bool("announce.duplicate", true))
		return true
	}
	span.SetAttributes(attribute.Bool("announce.duplicate", false))

	c.log.Info("announce: %s -> %s", ev.TicketNumber, ev.DestinationName)
	c.display.ShowAnnouncement(ev)
	c.enqueueSpeech(ev)
	return true
}

// prune drops dedup entries that can no longer absorb anything. Callers
// hold mu.
func (c *Coordinator) prune(now time.Time) {
	for key, at := range c.recent {
		if now.Sub(at) >= c.window {
			delete(c.recent, key)
		}
	}
	for id, at := range c.messages {
		if now.Sub(at) >= c.msgMemory {
			delete(c.messages, id)
		}
	}
}

// enqueueSpeech hands the announcement text to the speaker without
// waiting for it.
func (c *Coordinator) enqueueSpeech(ev domain.AnnouncementEvent) {
	if c.speaker == nil {
		c.speechUnavailable()
		return
	}
	text := phrase.ComposeAnnouncementText(ev.TicketNumber, ev.DestinationName, ev.RedirectedFromService, ev.OriginalDestinationName)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.speakTimeout)
		defer cancel()

		err := c.speaker.Speak(ctx, text)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrSpeechUnsupported), errors.Is(err, domain.ErrSpeechInitTimeout):
			c.speechUnavailable()
		case errors.Is(err, domain.ErrClosed), c.ctx.Err() != nil:
		default:
			c.log.Warn("announce: speech for %s failed: %v", ev.TicketNumber, err)
			c.toaster.Toast(phrase.ToastSpeechFailed(ev.TicketNumber))
		}
	}()
}

// speechUnavailable toasts once per coordinator lifetime.
func (c *Coordinator) speechUnavailable() {
	c.mu.Lock()
	told := c.toldUnsupported
	c.toldUnsupported = true
	c.mu.Unlock()
	if told {
		return
	}
	c.log.Warn("announce: speech unavailable, continuing visual-only")
	c.toaster.Toast(phrase.ToastSpeechUnavailable())
}

// Close abandons queued speech and waits for in-flight speech calls to
// return. Later triggers are refused.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

// logToaster is the default Toaster: it logs.
type logToaster struct{ log *logger.Logger }

func (t logToaster) Toast(message string) { t.log.Warn("toast: %s", message) }
