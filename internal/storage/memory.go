// Package storage provides ticket and room stores. MemoryStore keeps
// everything in process and emits the same row-change notifications the
// database feed would.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.RoomDirectory = (*MemoryStore)(nil)
	_ domain.TicketQueries = (*MemoryStore)(nil)
	_ domain.ChangeSource  = (*MemoryStore)(nil)
	_ domain.TicketActions = (*MemoryStore)(nil)
)

const changeBuffer = 32

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the time source for created/called/completed stamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// MemoryStore is an in-memory ticket and room store. Safe for concurrent
// access.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]domain.Room // counter number -> room
	services map[string]domain.Service
	tickets  map[string]*domain.Ticket // id -> ticket
	byNumber map[string]string         // ticket number -> id
	seq      map[string]int            // service code -> last sequence
	subs     map[int]chan domain.TicketChange
	nextSub  int
	now      func() time.Time
	log      *logger.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *logger.Logger, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		rooms:    make(map[string]domain.Room),
		services: make(map[string]domain.Service),
		tickets:  make(map[string]*domain.Ticket),
		byNumber: make(map[string]string),
		seq:      make(map[string]int),
		subs:     make(map[int]chan domain.TicketChange),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Rooms ──

// AddRoom registers a room under its counter number (the room ID).
func (s *MemoryStore) AddRoom(room domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	if room.Service.Code != "" {
		s.services[room.Service.Code] = room.Service
	}
	s.log.Debug("added room %s (%s, service=%s)", room.ID, room.Name, room.Service.Code)
}

// Room returns the room bound to counter.
func (s *MemoryStore) Room(_ context.Context, counter string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[counter]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &room, nil
}

// RoomForService returns the room with the lowest ID in the service.
func (s *MemoryStore) RoomForService(_ context.Context, serviceCode string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Room
	for _, room := range s.rooms {
		if room.Service.Code != serviceCode {
			continue
		}
		if found == nil || room.ID < found.ID {
			r := room
			found = &r
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

// ── Queries ──

// Ticket returns a copy of the ticket with the given number.
func (s *MemoryStore) Ticket(_ context.Context, ticketNumber string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.lookup(ticketNumber)
	if err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

// ListServing returns serving tickets, most recently called first.
func (s *MemoryStore) ListServing(_ context.Context) ([]domain.Ticket, error) {
	out := s.filter(domain.StatusServing)
	sort.Slice(out, func(i, j int) bool {
		return calledAt(out[i]).After(calledAt(out[j]))
	})
	return out, nil
}

// ListWaiting returns waiting tickets in queue order: VIP first, then by
// creation time.
func (s *MemoryStore) ListWaiting(_ context.Context) ([]domain.Ticket, error) {
	out := s.filter(domain.StatusWaiting)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsVIP != out[j].IsVIP {
			return out[i].IsVIP
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) filter(status domain.TicketStatus) []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

func calledAt(t domain.Ticket) time.Time {
	if t.CalledAt == nil {
		return time.Time{}
	}
	return *t.CalledAt
}

// ── Actions ──

// Issue creates a waiting ticket numbered per service ("C007").
func (s *MemoryStore) Issue(_ context.Context, serviceCode string, vip bool) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[serviceCode]; !ok {
		return nil, fmt.Errorf("service %s: %w", serviceCode, domain.ErrNotFound)
	}
	t := s.newTicket(serviceCode, vip)
	s.log.Debug("issued ticket %s", t.TicketNumber)
	s.emit(domain.OpInsert, t, nil)
	return copyTicket(t), nil
}

// Call moves a waiting ticket to serving at counter.
func (s *MemoryStore) Call(_ context.Context, ticketNumber, counter string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(ticketNumber)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusWaiting {
		return nil, fmt.Errorf("call %s (status %s): %w", ticketNumber, t.Status, domain.ErrInvalidState)
	}
	if _, ok := s.rooms[counter]; !ok {
		s.log.Warn("calling %s to unknown counter %s", ticketNumber, counter)
	}

	old := copyTicket(t)
	now := s.now()
	t.Status = domain.StatusServing
	t.CalledAt = &now
	t.CounterNumber = &counter
	s.log.Debug("called %s to counter %s", ticketNumber, counter)
	s.emit(domain.OpUpdate, t, old)
	return copyTicket(t), nil
}

// Recall refreshes the call time of a serving ticket.
func (s *MemoryStore) Recall(_ context.Context, ticketNumber string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(ticketNumber)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusServing {
		return nil, fmt.Errorf("recall %s (status %s): %w", ticketNumber, t.Status, domain.ErrInvalidState)
	}

	old := copyTicket(t)
	now := s.now()
	t.CalledAt = &now
	s.log.Debug("recalled %s", ticketNumber)
	s.emit(domain.OpUpdate, t, old)
	return copyTicket(t), nil
}

// Redirect closes an open ticket and issues a waiting continuation in
// serviceCode that remembers where it came from.
func (s *MemoryStore) Redirect(_ context.Context, ticketNumber, serviceCode string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(ticketNumber)
	if err != nil {
		return nil, err
	}
	if t.Closed() {
		return nil, fmt.Errorf("redirect %s (status %s): %w", ticketNumber, t.Status, domain.ErrInvalidState)
	}
	if _, ok := s.services[serviceCode]; !ok {
		return nil, fmt.Errorf("service %s: %w", serviceCode, domain.ErrNotFound)
	}

	old := copyTicket(t)
	now := s.now()
	t.Status = domain.StatusRedirected
	t.RedirectedTo = serviceCode
	t.CompletedAt = &now
	s.emit(domain.OpUpdate, t, old)

	next := s.newTicket(serviceCode, t.IsVIP)
	next.PatientName = t.PatientName
	next.RedirectedFrom = t.ServiceType
	next.PreviousTicketNumber = t.TicketNumber
	s.log.Debug("redirected %s to %s as %s", ticketNumber, serviceCode, next.TicketNumber)
	s.emit(domain.OpInsert, next, nil)
	return copyTicket(next), nil
}

// Complete closes a serving ticket.
func (s *MemoryStore) Complete(_ context.Context, ticketNumber string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookup(ticketNumber)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusServing {
		return nil, fmt.Errorf("complete %s (status %s): %w", ticketNumber, t.Status, domain.ErrInvalidState)
	}

	old := copyTicket(t)
	now := s.now()
	t.Status = domain.StatusCompleted
	t.CompletedAt = &now
	s.emit(domain.OpUpdate, t, old)
	return copyTicket(t), nil
}

// newTicket inserts a waiting ticket. Callers hold mu.
func (s *MemoryStore) newTicket(serviceCode string, vip bool) *domain.Ticket {
	s.seq[serviceCode]++
	t := &domain.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: fmt.Sprintf("%s%03d", serviceCode, s.seq[serviceCode]),
		ServiceType:  serviceCode,
		Status:       domain.StatusWaiting,
		IsVIP:        vip,
		CreatedAt:    s.now(),
	}
	s.tickets[t.ID] = t
	s.byNumber[t.TicketNumber] = t.ID
	return t
}

// lookup finds a ticket by number. Callers hold mu.
func (s *MemoryStore) lookup(ticketNumber string) (*domain.Ticket, error) {
	id, ok := s.byNumber[ticketNumber]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", ticketNumber, domain.ErrNotFound)
	}
	return s.tickets[id], nil
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	cp := *t
	if t.CalledAt != nil {
		at := *t.CalledAt
		cp.CalledAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	if t.CounterNumber != nil {
		c := *t.CounterNumber
		cp.CounterNumber = &c
	}
	return &cp
}

// ── Change feed ──

// Changes returns a channel of row changes made after the call. The
// channel is closed when ctx is done. A subscriber that falls behind
// loses changes rather than blocking writers.
func (s *MemoryStore) Changes(ctx context.Context) (<-chan domain.TicketChange, error) {
	ch := make(chan domain.TicketChange, changeBuffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// emit fans a change out to subscribers. Callers hold mu.
func (s *MemoryStore) emit(op domain.ChangeOp, next, old *domain.Ticket) {
	change := domain.TicketChange{Op: op, New: copyTicket(next)}
	if old != nil {
		change.Old = old
	}
	for id, ch := range s.subs {
		select {
		case ch <- change:
		default:
			s.log.Warn("change feed: subscriber %d is behind, dropping %s %s", id, op, next.TicketNumber)
		}
	}
}
