package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/feed"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/storage"
)

type recordingAnnouncer struct {
	mu    sync.Mutex
	calls []domain.Call
}

func (a *recordingAnnouncer) AnnounceTicket(_ context.Context, call domain.Call) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	return true
}

type lines struct {
	mu  sync.Mutex
	out []string
}

func (l *lines) printf(format string, a ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = append(l.out, fmt.Sprintf(format, a...))
}

func (l *lines) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.out) == 0 {
		return ""
	}
	return l.out[len(l.out)-1]
}

func newTestOperator() (*Operator, *storage.MemoryStore, *recordingAnnouncer, *lines) {
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	store.AddRoom(domain.Room{ID: "3", Name: "Consultorio 3", Service: domain.Service{Code: "C", Name: "Consulta"}})
	store.AddRoom(domain.Room{ID: "9", Name: "Sala de Rayos X", Service: domain.Service{Code: "RX", Name: "Rayos X"}})

	resolver := feed.NewListener(store, store, nil, log)
	ann := &recordingAnnouncer{}
	out := &lines{}
	return NewOperator(store, resolver, ann, NewPrinter(log, out.printf), log), store, ann, out
}

func TestOperatorCallAnnounces(t *testing.T) {
	op, store, ann, out := newTestOperator()
	ctx := context.Background()

	if _, err := store.Issue(ctx, "C", false); err != nil {
		t.Fatal(err)
	}
	op.Run(ctx, "call C001 3")

	if len(ann.calls) != 1 {
		t.Fatalf("announcements = %d, want 1", len(ann.calls))
	}
	call := ann.calls[0]
	if call.Ticket.TicketNumber != "C001" || call.DestinationName != "Consultorio 3" {
		t.Errorf("call = %+v", call)
	}
	if !strings.Contains(out.last(), "C001 llamado a Consultorio 3") {
		t.Errorf("output = %q", out.last())
	}
}

func TestOperatorRedirectedCallCarriesOrigin(t *testing.T) {
	op, store, ann, _ := newTestOperator()
	ctx := context.Background()

	if _, err := store.Issue(ctx, "C", false); err != nil {
		t.Fatal(err)
	}
	op.Run(ctx, "call C001 3")
	op.Run(ctx, "redirect C001 RX")
	op.Run(ctx, "call RX001 9")

	if len(ann.calls) != 2 {
		t.Fatalf("announcements = %d, want 2", len(ann.calls))
	}
	call := ann.calls[1]
	if call.DestinationName != "Sala de Rayos X" {
		t.Errorf("destination = %q", call.DestinationName)
	}
	if call.RedirectedFromService != "C" || call.OriginalDestinationName != "Consultorio 3" {
		t.Errorf("origin = %q / %q", call.RedirectedFromService, call.OriginalDestinationName)
	}
}

func TestOperatorReportsErrors(t *testing.T) {
	op, store, ann, out := newTestOperator()
	ctx := context.Background()

	op.Run(ctx, "recall Z999")
	if !strings.Contains(out.last(), "Z999: no encontrado") {
		t.Errorf("output = %q", out.last())
	}

	if _, err := store.Issue(ctx, "C", false); err != nil {
		t.Fatal(err)
	}
	op.Run(ctx, "done C001")
	if !strings.Contains(out.last(), "no se puede terminar") {
		t.Errorf("output = %q", out.last())
	}

	op.Run(ctx, "dance")
	if !strings.Contains(out.last(), "no reconocido") {
		t.Errorf("output = %q", out.last())
	}

	if len(ann.calls) != 0 {
		t.Errorf("unexpected announcements: %+v", ann.calls)
	}
}

func TestOperatorWithoutAnnouncer(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	store.AddRoom(domain.Room{ID: "1", Name: "Sala 1", Service: domain.Service{Code: "A", Name: "Admisión"}})
	op := NewOperator(store, feed.NewListener(store, store, nil, log), nil, NewPrinter(log, nil), log)
	ctx := context.Background()

	if _, err := store.Issue(ctx, "A", true); err != nil {
		t.Fatal(err)
	}
	msg, err := op.Execute(ctx, Command{Kind: KindCall, Ticket: "A001", Arg: "1"})
	if err != nil {
		t.Fatal(err)
	}
	if msg != "A001 llamado a Sala 1" {
		t.Errorf("msg = %q", msg)
	}
}
