// Package domain defines the core types and interfaces for the ticket
// announcement pipeline. All other packages depend on domain; domain
// depends on nothing.
package domain

import "time"

// TicketStatus is the lifecycle state of a queue ticket.
type TicketStatus string

const (
	StatusWaiting    TicketStatus = "waiting"
	StatusServing    TicketStatus = "serving"
	StatusCompleted  TicketStatus = "completed"
	StatusCancelled  TicketStatus = "cancelled"
	StatusRedirected TicketStatus = "redirected"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusServing, StatusCompleted, StatusCancelled, StatusRedirected:
		return true
	default:
		return false
	}
}

// Ticket is one patient's wait for one service. JSON tags follow the
// ticket table's column names so change-feed rows decode directly.
type Ticket struct {
	ID                   string       `json:"id"`
	TicketNumber         string       `json:"ticket_number"`
	ServiceType          string       `json:"service_type"`
	Status               TicketStatus `json:"status"`
	IsVIP                bool         `json:"is_vip"`
	CreatedAt            time.Time    `json:"created_at"`
	CalledAt             *time.Time   `json:"called_at,omitempty"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	CounterNumber        *string      `json:"counter_number,omitempty"`
	PatientName          string       `json:"patient_name,omitempty"`
	RedirectedTo         string       `json:"redirected_to,omitempty"`
	RedirectedFrom       string       `json:"redirected_from,omitempty"`
	PreviousTicketNumber string       `json:"previous_ticket_number,omitempty"`
}

// Closed reports whether the ticket reached a terminal state.
// Redirected tickets are closed; the work continues on a new ticket.
func (t Ticket) Closed() bool {
	switch t.Status {
	case StatusCompleted, StatusCancelled, StatusRedirected:
		return true
	default:
		return false
	}
}

// Counter returns the destination counter number, or "" when unset.
func (t Ticket) Counter() string {
	if t.CounterNumber == nil {
		return ""
	}
	return *t.CounterNumber
}

// Key is the identity used for deduplication. Tickets announced by
// number only (no row id yet) fall back to the ticket number.
func (t Ticket) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.TicketNumber
}

// Service is a clinic service (e.g. "RX" radiology) that owns rooms.
type Service struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Room is a physical destination (room or counter) bound to one service.
type Room struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Service Service `json:"service"`
}

// ChangeOp is the row operation reported by the change feed.
type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)

// TicketChange is one row-level notification from the ticket store.
// Old is nil for inserts and for feeds that do not carry the prior row.
type TicketChange struct {
	Op  ChangeOp `json:"op"`
	New *Ticket  `json:"record,omitempty"`
	Old *Ticket  `json:"old_record,omitempty"`
}
