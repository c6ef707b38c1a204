package announce

import (
	"context"
	"testing"
	"time"

	"github.com/hammamikhairi/turnocall/internal/broadcast"
	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/feed"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/retry"
	"github.com/hammamikhairi/turnocall/internal/storage"
)

func newStore() *storage.MemoryStore {
	s := storage.NewMemoryStore(logger.New(logger.LevelOff, nil))
	s.AddRoom(domain.Room{ID: "5", Name: "Room 5", Service: domain.Service{Code: "E"}})
	return s
}

// servingChange is the feed's view of ticket being called to counter 5.
func servingChange(ticket domain.Ticket, at time.Time) domain.TicketChange {
	counter := "5"
	called := ticket
	called.Status = domain.StatusServing
	called.CalledAt = &at
	called.CounterNumber = &counter
	old := ticket
	old.Status = domain.StatusWaiting
	return domain.TicketChange{Op: domain.OpUpdate, New: &called, Old: &old}
}

func TestOrderingIndependence(t *testing.T) {
	ticket := domain.Ticket{ID: "e012", TicketNumber: "E012"}
	T := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	orders := map[string][]string{
		"feed first":      {"feed", "broadcast"},
		"broadcast first": {"broadcast", "feed"},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{t: T}
			c, display, _ := newTestCoordinator(&fakeSpeaker{}, clock)
			defer c.Close()
			store := newStore()
			l := feed.NewListener(store, store, c, logger.New(logger.LevelOff, nil))

			for i, path := range order {
				clock.set(T.Add(time.Duration(i) * 400 * time.Millisecond))
				switch path {
				case "feed":
					l.Handle(context.Background(), servingChange(ticket, T))
				case "broadcast":
					c.NotifyEvent(context.Background(), domain.AnnouncementEvent{
						TicketID:        ticket.ID,
						TicketNumber:    ticket.TicketNumber,
						DestinationName: "Room 5",
						MessageID:       "m-1",
					})
				}
			}
			if display.count() != 1 {
				t.Errorf("expected exactly one announcement, got %d", display.count())
			}
		})
	}
}

func newTestPipeline(t *testing.T, bus *broadcast.Bus, store *storage.MemoryStore, device string) (*Pipeline, *recordingDisplay) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	display := &recordingDisplay{}
	coord := NewCoordinator(display, &fakeSpeaker{}, log, WithToaster(&recordingToaster{}))

	tr, err := broadcast.NewTransport(context.Background(), bus, log,
		broadcast.WithDeviceID(device),
		broadcast.WithAckRetry(retry.Constant(3, 50*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	var listener *feed.Listener
	if store != nil {
		listener = feed.NewListener(store, store, coord, log)
	}

	p := NewPipeline(coord, tr, listener, log)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(p.Close)
	return p, display
}

func TestPipelineAnnounceTicketReachesEveryDisplay(t *testing.T) {
	bus := broadcast.NewBus(logger.New(logger.LevelOff, nil))
	store := newStore()
	console, consoleDisplay := newTestPipeline(t, bus, nil, "console")
	_, screen := newTestPipeline(t, bus, store, "screen")
	ctx := context.Background()

	if _, err := store.Issue(ctx, "E", false); err != nil {
		t.Fatalf("issue: %v", err)
	}
	called, err := store.Call(ctx, "E001", "5")
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	ok := console.AnnounceTicket(ctx, domain.Call{Ticket: *called, DestinationName: "Room 5"})
	if !ok {
		t.Fatal("announce rejected")
	}

	eventually(t, func() bool { return screen.count() >= 1 })
	// Let the feed path, the redelivery and the echo all land.
	time.Sleep(200 * time.Millisecond)

	if screen.count() != 1 {
		t.Errorf("screen: expected one announcement across both paths, got %d", screen.count())
	}
	if consoleDisplay.count() != 1 {
		t.Errorf("console: expected one announcement including its own echo, got %d", consoleDisplay.count())
	}
	if got := screen.events[0]; got.TicketNumber != "E001" || got.DestinationName != "Room 5" {
		t.Errorf("unexpected screen event %+v", got)
	}
}

func TestPipelineMissingDestinationNotPublished(t *testing.T) {
	bus := broadcast.NewBus(logger.New(logger.LevelOff, nil))
	console, _ := newTestPipeline(t, bus, nil, "console")
	_, screen := newTestPipeline(t, bus, nil, "screen")

	if console.AnnounceTicket(context.Background(), domain.Call{Ticket: domain.Ticket{TicketNumber: "A1"}}) {
		t.Fatal("expected false for missing destination")
	}
	time.Sleep(50 * time.Millisecond)
	if screen.count() != 0 {
		t.Error("missing destination was broadcast")
	}
}

func TestPipelineWithoutBroadcast(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	display := &recordingDisplay{}
	coord := NewCoordinator(display, nil, log, WithToaster(&recordingToaster{}))
	tr, err := broadcast.NewTransport(context.Background(), nil, log)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	p := NewPipeline(coord, tr, nil, log)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Close()

	if !p.AnnounceTicket(context.Background(), domain.Call{Ticket: domain.Ticket{TicketNumber: "A1"}, DestinationName: "Sala 1"}) {
		t.Fatal("announce must succeed locally without broadcast")
	}
	if display.count() != 1 {
		t.Errorf("expected local announcement, got %d", display.count())
	}
}

func TestPipelineSingleDisplayDefaultTimings(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full redelivery schedule")
	}
	log := logger.New(logger.LevelOff, nil)
	bus := broadcast.NewBus(log)
	display := &recordingDisplay{}
	coord := NewCoordinator(display, &fakeSpeaker{}, log, WithToaster(&recordingToaster{}))

	// No other device ever acks, so every redelivery comes back here.
	tr, err := broadcast.NewTransport(context.Background(), bus, log, broadcast.WithDeviceID("lobby"))
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	p := NewPipeline(coord, tr, nil, log)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Close()

	call := domain.Call{Ticket: domain.Ticket{ID: "e012", TicketNumber: "E012"}, DestinationName: "Room 5"}
	if !p.AnnounceTicket(context.Background(), call) {
		t.Fatal("announce rejected")
	}

	time.Sleep(time.Duration(broadcast.DefaultAckAttempts-1)*broadcast.DefaultAckSpacing + time.Second)
	if got := display.count(); got != 1 {
		t.Errorf("one call announced %d times, want 1", got)
	}
}
