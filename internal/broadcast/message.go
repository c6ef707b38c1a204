// Package broadcast fans announcements out to every display listening on
// a shared channel. Messages are a closed union of two types: the
// announcement itself and a receipt acknowledgment.
package broadcast

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/turnocall/internal/domain"
)

// DefaultChannel is the well-known channel shared by every display and
// call console.
const DefaultChannel = "ticket-announcements"

// MessageType discriminates the wire union.
type MessageType string

const (
	TypeAnnounceTicket       MessageType = "announce-ticket"
	TypeAnnouncementReceived MessageType = "announcement-received"
)

// Message is either Announce or Ack.
type Message interface {
	Type() MessageType
	isMessage()
}

// TicketRef is the part of a ticket row that travels with an announcement.
type TicketRef struct {
	ID           string `json:"id,omitempty"`
	TicketNumber string `json:"ticket_number"`
	ServiceType  string `json:"service_type,omitempty"`
}

// Announce asks every receiver to announce a ticket.
type Announce struct {
	Ticket           TicketRef
	CounterName      string
	RedirectedFrom   string
	OriginalRoomName string
	MessageID        string
	Timestamp        time.Time
}

// Ack confirms that a device received an announcement.
type Ack struct {
	TicketID  string
	MessageID string
	DeviceID  string
	Timestamp time.Time
}

func (Announce) Type() MessageType { return TypeAnnounceTicket }
func (Ack) Type() MessageType      { return TypeAnnouncementReceived }
func (Announce) isMessage()        {}
func (Ack) isMessage()             {}

// AnnounceFromEvent builds the wire form of an announcement.
func AnnounceFromEvent(ev domain.AnnouncementEvent) Announce {
	return Announce{
		Ticket:           TicketRef{ID: ev.TicketID, TicketNumber: ev.TicketNumber},
		CounterName:      ev.DestinationName,
		RedirectedFrom:   ev.RedirectedFromService,
		OriginalRoomName: ev.OriginalDestinationName,
		MessageID:        ev.MessageID,
		Timestamp:        ev.Timestamp,
	}
}

// Event converts a received announcement back to a pipeline event.
func (a Announce) Event() domain.AnnouncementEvent {
	return domain.AnnouncementEvent{
		TicketID:                a.Ticket.ID,
		TicketNumber:            a.Ticket.TicketNumber,
		DestinationName:         a.CounterName,
		RedirectedFromService:   a.RedirectedFrom,
		OriginalDestinationName: a.OriginalRoomName,
		MessageID:               a.MessageID,
		Timestamp:               a.Timestamp,
	}
}

// NewMessageID returns a unique message id: unix millis plus a random
// suffix.
func NewMessageID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// envelope is the JSON shape shared by both message types.
type envelope struct {
	Type             MessageType `json:"type"`
	Ticket           *TicketRef  `json:"ticket,omitempty"`
	CounterName      string      `json:"counterName,omitempty"`
	RedirectedFrom   string      `json:"redirectedFrom,omitempty"`
	OriginalRoomName string      `json:"originalRoomName,omitempty"`
	TicketID         string      `json:"ticketId,omitempty"`
	DeviceID         string      `json:"deviceId,omitempty"`
	MessageID        string      `json:"messageId"`
	Timestamp        int64       `json:"timestamp"`
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	var env envelope
	switch v := m.(type) {
	case Announce:
		ticket := v.Ticket
		env = envelope{
			Type:             TypeAnnounceTicket,
			Ticket:           &ticket,
			CounterName:      v.CounterName,
			RedirectedFrom:   v.RedirectedFrom,
			OriginalRoomName: v.OriginalRoomName,
			MessageID:        v.MessageID,
			Timestamp:        v.Timestamp.UnixMilli(),
		}
	case Ack:
		env = envelope{
			Type:      TypeAnnouncementReceived,
			TicketID:  v.TicketID,
			DeviceID:  v.DeviceID,
			MessageID: v.MessageID,
			Timestamp: v.Timestamp.UnixMilli(),
		}
	default:
		return nil, fmt.Errorf("broadcast: unknown message %T", m)
	}
	return json.Marshal(env)
}

// Decode parses a wire message. Unknown types and announcements without a
// ticket number are rejected.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("broadcast: decoding message: %w", err)
	}
	ts := time.UnixMilli(env.Timestamp)

	switch env.Type {
	case TypeAnnounceTicket:
		if env.Ticket == nil || env.Ticket.TicketNumber == "" {
			return nil, fmt.Errorf("broadcast: announce-ticket without ticket number")
		}
		return Announce{
			Ticket:           *env.Ticket,
			CounterName:      env.CounterName,
			RedirectedFrom:   env.RedirectedFrom,
			OriginalRoomName: env.OriginalRoomName,
			MessageID:        env.MessageID,
			Timestamp:        ts,
		}, nil
	case TypeAnnouncementReceived:
		return Ack{
			TicketID:  env.TicketID,
			MessageID: env.MessageID,
			DeviceID:  env.DeviceID,
			Timestamp: ts,
		}, nil
	default:
		return nil, fmt.Errorf("broadcast: unknown message type %q", env.Type)
	}
}
