package views

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

type countingQueries struct {
	mu      sync.Mutex
	loads   int
	serving []domain.Ticket
	err     error
}

func (q *countingQueries) ListServing(context.Context) ([]domain.Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loads++
	return q.serving, q.err
}

func (q *countingQueries) ListWaiting(context.Context) ([]domain.Ticket, error) {
	return nil, nil
}

func TestCacheLoadsLazilyAndInvalidates(t *testing.T) {
	q := &countingQueries{serving: []domain.Ticket{{TicketNumber: "E012"}}}
	c := New(q, logger.New(logger.LevelOff, nil))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Serving(ctx)
		if err != nil || len(got) != 1 {
			t.Fatalf("serving: %v %v", got, err)
		}
	}
	if q.loads != 1 {
		t.Errorf("expected 1 load, got %d", q.loads)
	}

	notified := 0
	c.OnInvalidate(func() { notified++ })
	c.Invalidate()
	if notified != 1 {
		t.Errorf("expected invalidate callback, got %d", notified)
	}

	if _, err := c.Waiting(ctx); err != nil {
		t.Fatalf("waiting: %v", err)
	}
	if q.loads != 2 {
		t.Errorf("expected reload after invalidate, got %d loads", q.loads)
	}
}

func TestCacheLoadError(t *testing.T) {
	q := &countingQueries{err: errors.New("db down")}
	c := New(q, logger.New(logger.LevelOff, nil))
	if _, err := c.Serving(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
}
