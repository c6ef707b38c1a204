package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/retry"
)

const feedBuffer = 32

// reconnectBackoff spaces LISTEN reconnection attempts.
var reconnectBackoff = retry.Exponential(0, 500*time.Millisecond, 30*time.Second)

// Changes listens on NotifyChannel with a dedicated pool connection and
// decodes each notification into a TicketChange. A dropped connection is
// re-established with backoff; changes made while disconnected are lost.
// The channel is closed when ctx is done.
func (s *Store) Changes(ctx context.Context) (<-chan domain.TicketChange, error) {
	conn, err := s.listen(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.TicketChange, feedBuffer)
	go func() {
		defer close(out)
		for {
			err := s.forward(ctx, conn, out)
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("change feed: connection lost: %v", err)

			for failures := 1; ; failures++ {
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectBackoff.Delay(failures)):
				}
				conn, err = s.listen(ctx)
				if err == nil {
					break
				}
				if ctx.Err() != nil {
					return
				}
				s.log.Warn("change feed: reconnect attempt %d failed: %v", failures, err)
			}
			s.log.Info("change feed: listening again on %s", NotifyChannel)
		}
	}()
	return out, nil
}

func (s *Store) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	s.log.Debug("change feed: listening on %s", NotifyChannel)
	return conn, nil
}

// forward relays notifications until the connection fails or ctx is
// done, then returns the connection to the pool.
func (s *Store) forward(ctx context.Context, conn *pgxpool.Conn, out chan<- domain.TicketChange) error {
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = conn.Exec(cleanup, "UNLISTEN *")
		conn.Release()
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		change, err := DecodeChange([]byte(n.Payload))
		if err != nil {
			s.log.Warn("change feed: %v", err)
			continue
		}

		select {
		case out <- change:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// DecodeChange parses a notify_ticket_change payload.
func DecodeChange(payload []byte) (domain.TicketChange, error) {
	var change domain.TicketChange
	if err := json.Unmarshal(payload, &change); err != nil {
		return change, fmt.Errorf("decoding change: %w", err)
	}
	switch change.Op {
	case domain.OpInsert, domain.OpUpdate:
		if change.New == nil {
			return change, fmt.Errorf("decoding change: %s without record", change.Op)
		}
	case domain.OpDelete:
	default:
		return change, fmt.Errorf("decoding change: unknown op %q", change.Op)
	}
	return change, nil
}
