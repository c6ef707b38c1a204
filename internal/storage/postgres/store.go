// Package postgres stores tickets and rooms in PostgreSQL and turns the
// tickets table's NOTIFY trigger into a change feed.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.RoomDirectory = (*Store)(nil)
	_ domain.TicketQueries = (*Store)(nil)
	_ domain.ChangeSource  = (*Store)(nil)
	_ domain.TicketActions = (*Store)(nil)
)

//go:embed schema.sql
var schema string

// NotifyChannel is the channel the tickets trigger notifies on.
const NotifyChannel = "ticket_changes"

const ticketColumns = `id::text, ticket_number, service_type, status, is_vip, created_at, called_at, completed_at,
	counter_number, COALESCE(patient_name, ''), COALESCE(redirected_to, ''), COALESCE(redirected_from, ''),
	COALESCE(previous_ticket_number, '')`

// Store is a pgx-backed ticket and room store.
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// Open connects a pool to dsn and pings it.
func Open(ctx context.Context, dsn string, log *logger.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return NewStore(pool, log), nil
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the tables and the change trigger if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// ── Rooms ──

// Room returns the room bound to counter.
func (s *Store) Room(ctx context.Context, counter string) (*domain.Room, error) {
	return s.room(ctx, `WHERE r.id = $1`, counter)
}

// RoomForService returns the first room (by id) of the service.
func (s *Store) RoomForService(ctx context.Context, serviceCode string) (*domain.Room, error) {
	return s.room(ctx, `WHERE r.service_code = $1 ORDER BY r.id LIMIT 1`, serviceCode)
}

func (s *Store) room(ctx context.Context, where string, arg string) (*domain.Room, error) {
	var room domain.Room
	row := s.pool.QueryRow(ctx, `
		SELECT r.id, r.name, s.code, s.name
		FROM rooms r JOIN services s ON s.code = r.service_code
		`+where, arg)
	if err := row.Scan(&room.ID, &room.Name, &room.Service.Code, &room.Service.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// UpsertRoom creates or renames a room and its service.
func (s *Store) UpsertRoom(ctx context.Context, room domain.Room) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
	`, room.Service.Code, room.Service.Name)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rooms (id, name, service_code) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, service_code = EXCLUDED.service_code
	`, room.ID, room.Name, room.Service.Code)
	return err
}

// ── Queries ──

// ListServing returns serving tickets, most recently called first.
func (s *Store) ListServing(ctx context.Context) ([]domain.Ticket, error) {
	return s.list(ctx, `WHERE status = 'serving' ORDER BY called_at DESC`)
}

// ListWaiting returns waiting tickets, VIP first, then oldest first.
func (s *Store) ListWaiting(ctx context.Context) ([]domain.Ticket, error) {
	return s.list(ctx, `WHERE status = 'waiting' ORDER BY is_vip DESC, created_at ASC`)
}

func (s *Store) list(ctx context.Context, clause string) ([]domain.Ticket, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets `+clause)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	var status string
	err := row.Scan(&t.ID, &t.TicketNumber, &t.ServiceType, &status, &t.IsVIP, &t.CreatedAt,
		&t.CalledAt, &t.CompletedAt, &t.CounterNumber, &t.PatientName, &t.RedirectedTo,
		&t.RedirectedFrom, &t.PreviousTicketNumber)
	t.Status = domain.TicketStatus(status)
	return t, err
}

// ── Actions ──

// Issue creates a waiting ticket numbered per service ("C007").
func (s *Store) Issue(ctx context.Context, serviceCode string, vip bool) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := issue(ctx, tx, serviceCode, vip, "", "", "")
		ticket = t
		return err
	})
	return ticket, err
}

// Call moves a waiting ticket to serving at counter.
func (s *Store) Call(ctx context.Context, ticketNumber, counter string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketNumber, "call", []domain.TicketStatus{domain.StatusWaiting},
		`status = 'serving', called_at = now(), counter_number = $2`, counter)
}

// Recall refreshes the call time of a serving ticket.
func (s *Store) Recall(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketNumber, "recall", []domain.TicketStatus{domain.StatusServing},
		`called_at = now()`)
}

// Complete closes a serving ticket.
func (s *Store) Complete(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	return s.transition(ctx, ticketNumber, "complete", []domain.TicketStatus{domain.StatusServing},
		`status = 'completed', completed_at = now()`)
}

// Redirect closes an open ticket and issues its continuation in
// serviceCode.
func (s *Store) Redirect(ctx context.Context, ticketNumber, serviceCode string) (*domain.Ticket, error) {
	var next *domain.Ticket
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockTicket(ctx, tx, ticketNumber)
		if err != nil {
			return err
		}
		if cur.Closed() {
			return fmt.Errorf("redirect %s (status %s): %w", ticketNumber, cur.Status, domain.ErrInvalidState)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE tickets SET status = 'redirected', redirected_to = $2, completed_at = now()
			WHERE ticket_number = $1
		`, ticketNumber, serviceCode); err != nil {
			return err
		}
		next, err = issue(ctx, tx, serviceCode, cur.IsVIP, cur.ServiceType, cur.TicketNumber, cur.PatientName)
		return err
	})
	if err == nil {
		s.log.Debug("redirected %s to %s as %s", ticketNumber, serviceCode, next.TicketNumber)
	}
	return next, err
}

// transition locks the ticket, checks its status and applies set.
func (s *Store) transition(ctx context.Context, ticketNumber, action string, from []domain.TicketStatus, set string, args ...any) (*domain.Ticket, error) {
	var out domain.Ticket
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockTicket(ctx, tx, ticketNumber)
		if err != nil {
			return err
		}
		if !statusIn(cur.Status, from) {
			return fmt.Errorf("%s %s (status %s): %w", action, ticketNumber, cur.Status, domain.ErrInvalidState)
		}
		row := tx.QueryRow(ctx, `UPDATE tickets SET `+set+` WHERE ticket_number = $1 RETURNING `+ticketColumns,
			append([]any{ticketNumber}, args...)...)
		out, err = scanTicket(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("%s %s", action, ticketNumber)
	return &out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockTicket(ctx context.Context, tx pgx.Tx, ticketNumber string) (domain.Ticket, error) {
	row := tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number = $1 FOR UPDATE`, ticketNumber)
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, fmt.Errorf("ticket %s: %w", ticketNumber, domain.ErrNotFound)
	}
	return t, err
}

func issue(ctx context.Context, tx pgx.Tx, serviceCode string, vip bool, redirectedFrom, previous, patient string) (*domain.Ticket, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM services WHERE code = $1)`, serviceCode).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("service %s: %w", serviceCode, domain.ErrNotFound)
	}

	var seq int
	if err := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (service_code, last) VALUES ($1, 1)
		ON CONFLICT (service_code) DO UPDATE SET last = ticket_sequences.last + 1
		RETURNING last
	`, serviceCode).Scan(&seq); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (id, ticket_number, service_type, status, is_vip, created_at,
			patient_name, redirected_from, previous_ticket_number)
		VALUES ($1, $2, $3, 'waiting', $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
		RETURNING `+ticketColumns,
		uuid.NewString(), fmt.Sprintf("%s%03d", serviceCode, seq), serviceCode, vip, time.Now().UTC(),
		patient, redirectedFrom, previous)
	t, err := scanTicket(row)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func statusIn(s domain.TicketStatus, set []domain.TicketStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
