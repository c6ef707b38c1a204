// Package display renders accepted announcements.
//
// [Board] is the terminal waiting-room screen built on Bubble Tea: the
// current call in large type, the recent calls, the serving and waiting
// lists, a toast line and, in console mode, a command prompt. [Gateway]
// pushes the same events to browser screens over SockJS.
package display

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.DisplaySink = (*Board)(nil)
	_ domain.Toaster     = (*Board)(nil)
)

// ── Styles ───────────────────────────────────────────────────────

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8")).
			Bold(true)

	callBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#52525b")).
		Padding(1, 4)

	callNumberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a")).
			Bold(true)

	callDestStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0")).
			Bold(true)

	referredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd")).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa")).
			Underline(true)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	toastStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// BannerStyle is used for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))
)

// ── Board ────────────────────────────────────────────────────────

const (
	defaultHistory  = 6
	defaultToastTTL = 6 * time.Second
	msgBuffer       = 64
)

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithTitle sets the header line.
func WithTitle(title string) BoardOption {
	return func(b *Board) {
		b.title = title
	}
}

// WithLists shows the serving and waiting lists, reloaded through load
// whenever Refresh is called.
func WithLists(load func(ctx context.Context) (serving, waiting []domain.Ticket, err error)) BoardOption {
	return func(b *Board) {
		b.loadLists = load
	}
}

// WithPrompt enables the operator prompt. Each entered line is passed to
// onCommand on its own goroutine.
func WithPrompt(onCommand func(line string)) BoardOption {
	return func(b *Board) {
		b.onCommand = onCommand
	}
}

// WithVisibility reports terminal focus changes, used to pause speech
// while the screen is not in front.
func WithVisibility(fn func(visible bool)) BoardOption {
	return func(b *Board) {
		b.onVisible = fn
	}
}

// WithHistory sets how many previous calls are listed.
func WithHistory(n int) BoardOption {
	return func(b *Board) {
		b.history = n
	}
}

// WithToastTTL sets how long a toast stays on screen.
func WithToastTTL(d time.Duration) BoardOption {
	return func(b *Board) {
		b.toastTTL = d
	}
}

// Board is the terminal display. ShowAnnouncement, Toast and Refresh may
// be called from any goroutine, before or after Run; they never block.
type Board struct {
	log       *logger.Logger
	title     string
	history   int
	toastTTL  time.Duration
	loadLists func(ctx context.Context) ([]domain.Ticket, []domain.Ticket, error)
	onCommand func(string)
	onVisible func(bool)

	msgs    chan tea.Msg
	program atomic.Pointer[tea.Program]
	readyCh chan struct{}
	quit    chan struct{}
	done    atomic.Bool
}

// NewBoard creates a board. Call Run to start it.
func NewBoard(log *logger.Logger, opts ...BoardOption) *Board {
	b := &Board{
		log:      log,
		title:    "Turnos",
		history:  defaultHistory,
		toastTTL: defaultToastTTL,
		msgs:     make(chan tea.Msg, msgBuffer),
		readyCh:  make(chan struct{}),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ShowAnnouncement puts ev on screen.
func (b *Board) ShowAnnouncement(ev domain.AnnouncementEvent) {
	b.post(announceMsg(ev))
}

// Toast shows a transient message.
func (b *Board) Toast(message string) {
	b.post(toastMsg(message))
}

// Refresh reloads the serving and waiting lists.
func (b *Board) Refresh() {
	b.post(refreshMsg{})
}

// Printf prints a line above the board. Thread-safe. Falls back to
// stdout when the board is not running.
func (b *Board) Printf(format string, a ...any) {
	if p := b.program.Load(); p != nil && !b.done.Load() {
		p.Printf(format, a...)
	} else {
		fmt.Printf(format+"\n", a...)
	}
}

func (b *Board) post(msg tea.Msg) {
	if b.done.Load() {
		return
	}
	select {
	case b.msgs <- msg:
	default:
		b.log.Warn("board: dropping %T, display is behind", msg)
	}
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (b *Board) WaitReady() { <-b.readyCh }

// Quit tells Bubble Tea to exit.
func (b *Board) Quit() {
	if p := b.program.Load(); p != nil {
		p.Quit()
	}
}

// Run starts the Bubble Tea event loop. Blocks until quit or ctx is done.
// Run may be called once.
func (b *Board) Run(ctx context.Context) error {
	m := newBoardModel(b)

	// The console keeps the normal screen so Printf output stays visible.
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if b.onCommand == nil {
		opts = append(opts, tea.WithAltScreen())
	}
	if b.onVisible != nil {
		opts = append(opts, tea.WithReportFocus())
	}
	p := tea.NewProgram(m, opts...)
	b.program.Store(p)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for {
			select {
			case msg := <-b.msgs:
				p.Send(msg)
			case <-ctx.Done():
				return
			case <-b.quit:
				return
			}
		}
	}()

	_, err := p.Run()
	b.done.Store(true)
	close(b.quit)
	<-pumpDone
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
