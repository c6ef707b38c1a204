package display

import "github.com/hammamikhairi/turnocall/internal/domain"

// Sink is a display that also shows toasts.
type Sink interface {
	domain.DisplaySink
	domain.Toaster
}

// Fanout forwards every event to each of its sinks in order.
type Fanout []Sink

// ShowAnnouncement implements domain.DisplaySink.
func (f Fanout) ShowAnnouncement(ev domain.AnnouncementEvent) {
	for _, s := range f {
		s.ShowAnnouncement(ev)
	}
}

// Toast implements domain.Toaster.
func (f Fanout) Toast(message string) {
	for _, s := range f {
		s.Toast(message)
	}
}
