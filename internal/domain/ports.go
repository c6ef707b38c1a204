package domain

import "context"

// RoomDirectory resolves destinations for announcement text.
// Implementations can be in-memory or backed by the rooms table.
type RoomDirectory interface {
	// Room returns the room bound to a counter number.
	Room(ctx context.Context, counter string) (*Room, error)
	// RoomForService returns a room of the given service, used to name
	// the original destination of a redirected ticket.
	RoomForService(ctx context.Context, serviceCode string) (*Room, error)
}

// TicketQueries loads the list views kept fresh by the change feed.
type TicketQueries interface {
	ListServing(ctx context.Context) ([]Ticket, error)
	ListWaiting(ctx context.Context) ([]Ticket, error)
}

// ChangeSource delivers row-level ticket changes. The returned channel is
// closed when ctx is cancelled or the source fails permanently.
type ChangeSource interface {
	Changes(ctx context.Context) (<-chan TicketChange, error)
}

// DisplaySink renders the visual banner of an accepted announcement.
// Implementations must not block.
type DisplaySink interface {
	ShowAnnouncement(event AnnouncementEvent)
}

// Toaster shows a transient, dismissible message to the user.
type Toaster interface {
	Toast(message string)
}

// Speaker narrates announcement text. Speak blocks until the text was
// spoken or failed.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// TicketActions are the operator workflows that move tickets. Each
// successful action is visible on the store's change feed.
type TicketActions interface {
	// Issue creates a waiting ticket for a service.
	Issue(ctx context.Context, serviceCode string, vip bool) (*Ticket, error)
	// Call moves a waiting ticket to serving at counter.
	Call(ctx context.Context, ticketNumber, counter string) (*Ticket, error)
	// Recall re-announces a serving ticket by refreshing its call time.
	Recall(ctx context.Context, ticketNumber string) (*Ticket, error)
	// Redirect closes a ticket and issues its continuation in another
	// service. The new ticket is returned.
	Redirect(ctx context.Context, ticketNumber, serviceCode string) (*Ticket, error)
	// Complete closes a serving ticket.
	Complete(ctx context.Context, ticketNumber string) (*Ticket, error)
}
