package console

import (
	"fmt"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
	"github.com/hammamikhairi/turnocall/internal/phrase"
)

// Compile-time interface checks.
var (
	_ domain.Toaster     = (*Printer)(nil)
	_ domain.DisplaySink = (*Printer)(nil)
)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	cyan   = "\033[36m"
	yellow = "\033[33m"
)

// PrintFunc is a function used to print formatted output.
// Matches the signature of both fmt.Printf and display.Board.Printf.
type PrintFunc func(format string, a ...any)

// Printer writes toasts and announcements as plain terminal lines. It
// serves the headless display and the one-shot CLI commands.
type Printer struct {
	log     *logger.Logger
	printFn PrintFunc
}

// NewPrinter creates a line printer. If printFn is nil, stdout is used.
func NewPrinter(log *logger.Logger, printFn PrintFunc) *Printer {
	if printFn == nil {
		printFn = func(format string, a ...any) {
			fmt.Printf(format+"\n", a...)
		}
	}
	return &Printer{log: log, printFn: printFn}
}

// Toast prints a toast in bold red.
func (p *Printer) Toast(message string) {
	p.log.Debug("toast: %s", message)
	p.printFn("%s%s%s%s", red, bold, message, reset)
}

// ShowAnnouncement prints the announcement text.
func (p *Printer) ShowAnnouncement(ev domain.AnnouncementEvent) {
	text := phrase.ComposeAnnouncementText(ev.TicketNumber, ev.DestinationName,
		ev.RedirectedFromService, ev.OriginalDestinationName)
	p.printFn("%s%s▶ %s%s", cyan, bold, text, reset)
}

// Info prints a neutral status line.
func (p *Printer) Info(format string, a ...any) {
	p.printFn(green+format+reset, a...)
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, a ...any) {
	p.printFn(yellow+format+reset, a...)
}
