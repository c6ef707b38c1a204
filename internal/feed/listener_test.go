package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/storage"
)

type notified struct {
	ticket              domain.Ticket
	destination         string
	redirectedFrom      string
	originalDestination string
}

type recordingAnnouncer struct {
	mu    sync.Mutex
	calls []notified
}

func (a *recordingAnnouncer) Notify(_ context.Context, t domain.Ticket, dest, from, orig string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, notified{t, dest, from, orig})
	return true
}

func (a *recordingAnnouncer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type countingViews struct {
	mu sync.Mutex
	n  int
}

func (v *countingViews) Invalidate() {
	v.mu.Lock()
	v.n++
	v.mu.Unlock()
}

func newTestRooms() *storage.MemoryStore {
	s := storage.NewMemoryStore(logger.New(logger.LevelOff, nil))
	s.AddRoom(domain.Room{ID: "5", Name: "Room 5", Service: domain.Service{Code: "E"}})
	s.AddRoom(domain.Room{ID: "2", Name: "Room 2", Service: domain.Service{Code: "C"}})
	s.AddRoom(domain.Room{ID: "9", Name: "Sala de Rayos X", Service: domain.Service{Code: "RX"}})
	return s
}

func serving(id, number, counter string, calledAt time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:            id,
		TicketNumber:  number,
		Status:        domain.StatusServing,
		CalledAt:      &calledAt,
		CounterNumber: &counter,
	}
}

func TestListenerEdgeTrigger(t *testing.T) {
	rooms := newTestRooms()
	ann := &recordingAnnouncer{}
	views := &countingViews{}
	l := NewListener(rooms, rooms, ann, logger.New(logger.LevelOff, nil), WithInvalidator(views))
	ctx := context.Background()

	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	waiting := &domain.Ticket{ID: "t1", TicketNumber: "E012", Status: domain.StatusWaiting}
	called := serving("t1", "E012", "5", t0)

	tests := []struct {
		name   string
		change domain.TicketChange
		want   bool
	}{
		{"insert waiting", domain.TicketChange{Op: domain.OpInsert, New: waiting}, false},
		{"waiting to serving", domain.TicketChange{Op: domain.OpUpdate, New: called, Old: waiting}, true},
		{"serving row touched, same call time", domain.TicketChange{Op: domain.OpUpdate, New: called, Old: called}, false},
		{"recall with new call time", domain.TicketChange{Op: domain.OpUpdate, New: serving("t1", "E012", "5", t0.Add(time.Minute)), Old: called}, true},
		{"no old row, already seen", domain.TicketChange{Op: domain.OpUpdate, New: serving("t1", "E012", "5", t0.Add(time.Minute))}, false},
		{"no old row, new call time", domain.TicketChange{Op: domain.OpUpdate, New: serving("t1", "E012", "5", t0.Add(2*time.Minute))}, true},
		{"key-only old row, already seen", domain.TicketChange{Op: domain.OpUpdate, New: serving("t1", "E012", "5", t0.Add(2*time.Minute)), Old: &domain.Ticket{ID: "t1"}}, false},
		{"delete", domain.TicketChange{Op: domain.OpDelete, Old: called}, false},
	}

	for _, tt := range tests {
		before := ann.count()
		l.Handle(ctx, tt.change)
		if got := ann.count() > before; got != tt.want {
			t.Errorf("%s: triggered=%v, want %v", tt.name, got, tt.want)
		}
	}

	if views.n != len(tests) {
		t.Errorf("expected every change to invalidate views, got %d of %d", views.n, len(tests))
	}
	if ann.calls[0].destination != "Room 5" || ann.calls[0].redirectedFrom != "" {
		t.Errorf("unexpected first announcement %+v", ann.calls[0])
	}
}

func TestListenerFallbackDestination(t *testing.T) {
	rooms := newTestRooms()
	ann := &recordingAnnouncer{}
	l := NewListener(rooms, rooms, ann, logger.New(logger.LevelOff, nil))

	l.Handle(context.Background(), domain.TicketChange{
		Op:  domain.OpUpdate,
		New: serving("t2", "A001", "7", time.Now()),
		Old: &domain.Ticket{ID: "t2", TicketNumber: "A001", Status: domain.StatusWaiting},
	})
	if ann.count() != 1 || ann.calls[0].destination != "Sala 7" {
		t.Fatalf("expected fallback destination, got %+v", ann.calls)
	}
}

func TestListenerResolvesRedirectOrigin(t *testing.T) {
	rooms := newTestRooms()
	ann := &recordingAnnouncer{}
	l := NewListener(rooms, rooms, ann, logger.New(logger.LevelOff, nil))

	ticket := serving("t3", "C004", "2", time.Now())
	ticket.RedirectedFrom = "RX"
	ticket.PreviousTicketNumber = "RX001"
	l.Handle(context.Background(), domain.TicketChange{Op: domain.OpUpdate, New: ticket})

	if ann.count() != 1 {
		t.Fatalf("expected one announcement, got %d", ann.count())
	}
	got := ann.calls[0]
	if got.destination != "Room 2" || got.redirectedFrom != "RX" || got.originalDestination != "Sala de Rayos X" {
		t.Errorf("unexpected redirect announcement %+v", got)
	}
}

func TestListenerConsumesStore(t *testing.T) {
	store := newTestRooms()
	ann := &recordingAnnouncer{}
	l := NewListener(store, store, ann, logger.New(logger.LevelOff, nil))
	ctx := context.Background()

	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Stop()

	if _, err := store.Issue(ctx, "E", false); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := store.Call(ctx, "E001", "5"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if _, err := store.Recall(ctx, "E001"); err != nil {
		t.Fatalf("recall: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for ann.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ann.count() != 2 {
		t.Fatalf("expected call and recall announcements, got %d", ann.count())
	}
}
