package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/retry"
)

// recorder counts announcements per ticket number.
type recorder struct {
	mu   sync.Mutex
	seen []domain.AnnouncementEvent
}

func (r *recorder) handle(ev domain.AnnouncementEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func newTestTransport(t *testing.T, bus *Bus, device string) *Transport {
	t.Helper()
	tr, err := NewTransport(context.Background(), bus, logger.New(logger.LevelOff, nil),
		WithDeviceID(device),
		WithAckRetry(retry.Constant(3, 30*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	t.Cleanup(tr.Close)
	return tr
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTransportWithoutBackend(t *testing.T) {
	tr, err := NewTransport(context.Background(), nil, logger.New(logger.LevelOff, nil))
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	defer tr.Close()

	err = tr.Publish(context.Background(), domain.AnnouncementEvent{TicketNumber: "A1", DestinationName: "Sala 1"})
	if !errors.Is(err, domain.ErrBroadcastUnsupported) {
		t.Fatalf("expected ErrBroadcastUnsupported, got %v", err)
	}
	if tr.Supported() {
		t.Error("transport without backend reports supported")
	}
	unsub := tr.Subscribe(func(domain.AnnouncementEvent) {})
	unsub()
}

func TestTransportSenderAlsoReceives(t *testing.T) {
	bus := NewBus(logger.New(logger.LevelOff, nil))
	console := newTestTransport(t, bus, "console")
	display := newTestTransport(t, bus, "display")

	var own, remote recorder
	console.Subscribe(own.handle)
	display.Subscribe(remote.handle)

	ev := domain.AnnouncementEvent{TicketID: "t1", TicketNumber: "E012", DestinationName: "Room 5"}
	if err := console.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return own.count() >= 1 && remote.count() >= 1 })

	// The display acked, so no redelivery happens.
	time.Sleep(120 * time.Millisecond)
	if own.count() != 1 || remote.count() != 1 {
		t.Errorf("expected one delivery each, got own=%d remote=%d", own.count(), remote.count())
	}

	got := remote.seen[0]
	if got.TicketNumber != "E012" || got.DestinationName != "Room 5" || got.MessageID == "" || got.Timestamp.IsZero() {
		t.Errorf("unexpected event: %+v", got)
	}
}

func TestTransportRedeliversWithoutForeignAck(t *testing.T) {
	bus := NewBus(logger.New(logger.LevelOff, nil))
	console := newTestTransport(t, bus, "console")

	var own recorder
	console.Subscribe(own.handle)

	start := time.Now()
	if err := console.Publish(context.Background(), domain.AnnouncementEvent{TicketNumber: "A1", DestinationName: "Sala 1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Error("publish must not wait for acknowledgments")
	}

	waitFor(t, func() bool { return own.count() == 3 })
	time.Sleep(100 * time.Millisecond)
	if own.count() != 3 {
		t.Errorf("expected exactly 3 deliveries, got %d", own.count())
	}

	seen := own.seen
	if seen[0].MessageID != seen[2].MessageID {
		t.Error("redelivery must reuse the message id")
	}
}

func TestTransportUnsubscribe(t *testing.T) {
	bus := NewBus(logger.New(logger.LevelOff, nil))
	console := newTestTransport(t, bus, "console")
	display := newTestTransport(t, bus, "display")

	var before, after recorder
	unsub := display.Subscribe(before.handle)
	console.Subscribe(after.handle)
	unsub()

	if err := console.Publish(context.Background(), domain.AnnouncementEvent{TicketNumber: "B2", DestinationName: "Sala 2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return after.count() >= 1 })
	if before.count() != 0 {
		t.Errorf("unsubscribed handler received %d messages", before.count())
	}
}

func TestTransportCloseStopsRedelivery(t *testing.T) {
	bus := NewBus(logger.New(logger.LevelOff, nil))
	tr, err := NewTransport(context.Background(), bus, logger.New(logger.LevelOff, nil),
		WithAckRetry(retry.Constant(3, time.Hour)))
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	if err := tr.Publish(context.Background(), domain.AnnouncementEvent{TicketNumber: "C3", DestinationName: "Sala 3"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	done := make(chan struct{})
	go func() {
		tr.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close blocked on pending redelivery")
	}

	if err := tr.Publish(context.Background(), domain.AnnouncementEvent{TicketNumber: "C3"}); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestBusDropsAfterClose(t *testing.T) {
	bus := NewBus(logger.New(logger.LevelOff, nil))
	stop, err := bus.Listen(context.Background(), DefaultChannel, func([]byte) {})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_ = bus.Close()
	stop()

	if err := bus.Send(context.Background(), DefaultChannel, []byte("x")); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := bus.Listen(context.Background(), DefaultChannel, func([]byte) {}); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("expected ErrClosed from listen, got %v", err)
	}
}

func TestTransportDeviceID(t *testing.T) {
	bus := NewBus(logger.New(logger.LevelOff, nil))
	if got := newTestTransport(t, bus, "lobby").DeviceID(); got != "lobby" {
		t.Errorf("DeviceID = %q, want lobby", got)
	}
	a, b := newTestTransport(t, bus, ""), newTestTransport(t, bus, "")
	if a.DeviceID() == "" || a.DeviceID() == b.DeviceID() {
		t.Errorf("generated ids %q and %q should be distinct and non-empty", a.DeviceID(), b.DeviceID())
	}
}
