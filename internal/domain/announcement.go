package domain

import "time"

// AnnouncementEvent is a single accepted-or-candidate announcement.
// It lives only inside the pipeline and is never persisted; only its
// serialized broadcast form leaves the process.
type AnnouncementEvent struct {
	TicketID                string
	TicketNumber            string
	DestinationName         string
	RedirectedFromService   string
	OriginalDestinationName string
	MessageID               string
	Timestamp               time.Time
}

// Redirected reports whether the event carries referral lineage.
func (e AnnouncementEvent) Redirected() bool {
	return e.RedirectedFromService != "" || e.OriginalDestinationName != ""
}

// Call is what an operator action (call, recall, redirect) hands to the
// pipeline entry point.
type Call struct {
	Ticket                  Ticket
	DestinationName         string
	RedirectedFromService   string
	OriginalDestinationName string
}

// Key is the deduplication identity: the ticket id, or the ticket number
// when the caller only knows the number.
func (e AnnouncementEvent) Key() string {
	if e.TicketID != "" {
		return e.TicketID
	}
	return e.TicketNumber
}
