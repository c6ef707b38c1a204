package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/retry"
)

// Redelivery defaults: up to 3 sends, 3s apart, while no other device
// has acknowledged.
const (
	DefaultAckAttempts = 3
	DefaultAckSpacing  = 3 * time.Second
)

var errNoAck = errors.New("no acknowledgment")

// Handler receives every announcement seen on the channel, duplicates
// included.
type Handler func(ev domain.AnnouncementEvent)

// Option configures a Transport.
type Option func(*Transport)

// WithChannel sets the channel name.
func WithChannel(name string) Option {
	return func(t *Transport) {
		t.channel = name
	}
}

// WithDeviceID sets the id this transport signs its acknowledgments with.
// An empty id keeps the random default.
func WithDeviceID(id string) Option {
	return func(t *Transport) {
		if id != "" {
			t.deviceID = id
		}
	}
}

// WithAckRetry sets the redelivery policy. MaxAttempts counts the
// initial send.
func WithAckRetry(p retry.Policy) Option {
	return func(t *Transport) {
		t.ackPolicy = p
	}
}

// WithClock overrides the time source for message ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Transport) {
		t.now = now
	}
}

// Transport is the typed publish/subscribe surface over a Backend. It
// performs no deduplication; receivers acknowledge announcements and the
// sender redelivers a bounded number of times until another device does.
type Transport struct {
	backend   Backend
	log       *logger.Logger
	channel   string
	deviceID  string
	ackPolicy retry.Policy
	now       func() time.Time

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	pending  map[string]chan struct{} // messageID -> closed on first foreign ack
	stop     func()
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTransport starts listening on the backend channel. A nil backend is
// valid: Publish then reports domain.ErrBroadcastUnsupported and the
// pipeline relies on the change feed alone.
func NewTransport(ctx context.Context, backend Backend, log *logger.Logger, opts ...Option) (*Transport, error) {
	tctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		backend:   backend,
		log:       log,
		channel:   DefaultChannel,
		deviceID:  uuid.NewString(),
		ackPolicy: retry.Constant(DefaultAckAttempts, DefaultAckSpacing),
		now:       time.Now,
		handlers:  make(map[int]Handler),
		pending:   make(map[string]chan struct{}),
		ctx:       tctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(t)
	}

	if backend == nil {
		log.Info("broadcast: no backend, using change feed only")
		return t, nil
	}

	stop, err := backend.Listen(ctx, t.channel, t.receive)
	if err != nil {
		cancel()
		return nil, err
	}
	t.stop = stop
	log.Debug("broadcast: listening on %q as device %s", t.channel, t.deviceID)
	return t, nil
}

// DeviceID returns the id used in acknowledgments.
func (t *Transport) DeviceID() string { return t.deviceID }

// Supported reports whether a backend is configured.
func (t *Transport) Supported() bool { return t.backend != nil }

// Publish sends ev to every listener, this process included. It never
// waits for acknowledgments; redelivery runs in the background. An empty
// MessageID or Timestamp is filled in on the wire copy.
func (t *Transport) Publish(ctx context.Context, ev domain.AnnouncementEvent) error {
	if t.backend == nil {
		return domain.ErrBroadcastUnsupported
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.now()
	}
	if ev.MessageID == "" {
		ev.MessageID = NewMessageID(ev.Timestamp)
	}

	payload, err := Encode(AnnounceFromEvent(ev))
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrClosed
	}
	acked := make(chan struct{})
	t.pending[ev.MessageID] = acked
	t.wg.Add(1)
	t.mu.Unlock()

	if err := t.backend.Send(ctx, t.channel, payload); err != nil {
		t.forget(ev.MessageID)
		t.wg.Done()
		return err
	}
	t.log.Debug("broadcast: published %s (%s)", ev.TicketNumber, ev.MessageID)

	go t.redeliver(ev.MessageID, payload, acked)
	return nil
}

// redeliver re-sends payload until acknowledged or the attempt budget is
// spent. Attempt 1 is the send Publish already made.
func (t *Transport) redeliver(messageID string, payload []byte, acked <-chan struct{}) {
	defer t.wg.Done()
	defer t.forget(messageID)

	err := t.ackPolicy.Do(t.ctx, func(attempt int) error {
		if attempt == 1 {
			return errNoAck
		}
		select {
		case <-acked:
			return nil
		default:
		}
		if err := t.backend.Send(t.ctx, t.channel, payload); err != nil {
			t.log.Warn("broadcast: redelivery of %s failed: %v", messageID, err)
		} else {
			t.log.Debug("broadcast: redelivered %s (attempt %d)", messageID, attempt)
		}
		return errNoAck
	})
	if errors.Is(err, errNoAck) {
		t.log.Debug("broadcast: %s not acknowledged by another device", messageID)
	}
}

func (t *Transport) forget(messageID string) {
	t.mu.Lock()
	delete(t.pending, messageID)
	t.mu.Unlock()
}

// Subscribe registers h for received announcements. The returned
// function unregisters it.
func (t *Transport) Subscribe(h Handler) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = h
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.handlers, id)
			t.mu.Unlock()
		})
	}
}

// receive handles one payload from the backend.
func (t *Transport) receive(payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		t.log.Warn("broadcast: dropping message: %v", err)
		return
	}

	switch m := msg.(type) {
	case Announce:
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		handlers := make([]Handler, 0, len(t.handlers))
		for _, h := range t.handlers {
			handlers = append(handlers, h)
		}
		t.mu.Unlock()

		if len(handlers) == 0 {
			return
		}
		ev := m.Event()
		for _, h := range handlers {
			h(ev)
		}
		t.acknowledge(m)

	case Ack:
		if m.DeviceID == t.deviceID {
			return
		}
		t.mu.Lock()
		acked, ok := t.pending[m.MessageID]
		if ok {
			delete(t.pending, m.MessageID)
		}
		t.mu.Unlock()
		if ok {
			close(acked)
			t.log.Debug("broadcast: %s acknowledged by %s", m.MessageID, m.DeviceID)
		}
	}
}

func (t *Transport) acknowledge(a Announce) {
	payload, err := Encode(Ack{
		TicketID:  a.Ticket.ID,
		MessageID: a.MessageID,
		DeviceID:  t.deviceID,
		Timestamp: t.now(),
	})
	if err != nil {
		return
	}
	if err := t.backend.Send(t.ctx, t.channel, payload); err != nil {
		t.log.Debug("broadcast: ack for %s failed: %v", a.MessageID, err)
	}
}

// Close stops listening, abandons redelivery and drops all handlers. The
// backend itself is left open for its owner to close.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.handlers = make(map[int]Handler)
	stop := t.stop
	t.mu.Unlock()

	t.cancel()
	if stop != nil {
		stop()
	}
	t.wg.Wait()
}
