package display

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/phrase"
)

// ── Messages ─────────────────────────────────────────────────────

type (
	announceMsg domain.AnnouncementEvent
	toastMsg    string
	refreshMsg  struct{}
	tickMsg     time.Time
	listsMsg    struct {
		serving []domain.Ticket
		waiting []domain.Ticket
		err     error
	}
)

const listRows = 8

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// ── Model ────────────────────────────────────────────────────────

type callEntry struct {
	number      string
	destination string
	referred    string
	at          time.Time
}

type boardModel struct {
	title    string
	calls    []callEntry // newest first
	history  int
	serving  []domain.Ticket
	waiting  []domain.Ticket
	toast    string
	toastAt  time.Time
	toastTTL time.Duration
	now      time.Time
	width    int

	input     textinput.Model
	prompt    bool
	onCommand func(string)
	onVisible func(bool)
	loadLists func(ctx context.Context) ([]domain.Ticket, []domain.Ticket, error)

	readyOnce *sync.Once
	readyCh   chan struct{}
}

func newBoardModel(b *Board) boardModel {
	ti := textinput.New()
	ti.Placeholder = "call C007 3 | recall C007 | redirect C007 RX | done C007"
	ti.Prompt = "› "
	ti.PromptStyle = promptStyle
	ti.CharLimit = 120
	if b.onCommand != nil {
		ti.Focus()
	}

	return boardModel{
		title:     b.title,
		history:   b.history,
		toastTTL:  b.toastTTL,
		now:       time.Now(),
		input:     ti,
		prompt:    b.onCommand != nil,
		onCommand: b.onCommand,
		onVisible: b.onVisible,
		loadLists: b.loadLists,
		readyOnce: &sync.Once{},
		readyCh:   b.readyCh,
	}
}

func (m boardModel) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), m.signalReady(), m.reload()}
	if m.prompt {
		cmds = append(cmds, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

func (m boardModel) signalReady() tea.Cmd {
	return func() tea.Msg {
		m.readyOnce.Do(func() { close(m.readyCh) })
		return nil
	}
}

func (m boardModel) reload() tea.Cmd {
	if m.loadLists == nil {
		return nil
	}
	load := m.loadLists
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		serving, waiting, err := load(ctx)
		return listsMsg{serving: serving, waiting: waiting, err: err}
	}
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if !m.prompt {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			run := m.onCommand
			return m, func() tea.Msg {
				run(line)
				return nil
			}
		}
		if msg.String() == "q" && !m.prompt {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.FocusMsg:
		if m.onVisible != nil {
			m.onVisible(true)
		}
		return m, nil

	case tea.BlurMsg:
		if m.onVisible != nil {
			m.onVisible(false)
		}
		return m, nil

	case announceMsg:
		m.push(domain.AnnouncementEvent(msg))
		return m, nil

	case toastMsg:
		m.toast = string(msg)
		m.toastAt = m.now
		return m, nil

	case refreshMsg:
		return m, m.reload()

	case listsMsg:
		if msg.err == nil {
			m.serving = msg.serving
			m.waiting = msg.waiting
		}
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.toast != "" && m.now.Sub(m.toastAt) >= m.toastTTL {
			m.toast = ""
		}
		return m, tickCmd()
	}

	if !m.prompt {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *boardModel) push(ev domain.AnnouncementEvent) {
	entry := callEntry{
		number:      ev.TicketNumber,
		destination: ev.DestinationName,
		at:          ev.Timestamp,
	}
	if ev.Redirected() {
		entry.referred = ev.OriginalDestinationName
		if entry.referred == "" {
			entry.referred = ev.RedirectedFromService
		}
	}
	if entry.at.IsZero() {
		entry.at = m.now
	}

	m.calls = append([]callEntry{entry}, m.calls...)
	if limit := m.history + 1; len(m.calls) > limit {
		m.calls = m.calls[:limit]
	}
}

// ── View ─────────────────────────────────────────────────────────

func (m boardModel) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("  ")
	s.WriteString(dimStyle.Render(m.now.Format("15:04")))
	s.WriteString("\n\n")

	s.WriteString(m.renderCurrent())
	s.WriteString("\n")

	if len(m.calls) > 1 {
		s.WriteString(headerStyle.Render("Llamados anteriores"))
		s.WriteString("\n")
		for _, c := range m.calls[1:] {
			s.WriteString(rowStyle.Render(fmt.Sprintf("  %-8s %-16s %s",
				c.number, c.destination, c.at.Format("15:04"))))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	if m.loadLists != nil {
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			renderList("Atendiendo", m.serving, true),
			"    ",
			renderList("En espera", m.waiting, false),
		))
		s.WriteString("\n")
	}

	if m.toast != "" {
		s.WriteString("\n")
		s.WriteString(toastStyle.Render("⚠ " + m.toast))
		s.WriteString("\n")
	}

	if m.prompt {
		s.WriteString("\n")
		s.WriteString(m.input.View())
		s.WriteString("\n")
	}

	return s.String()
}

func (m boardModel) renderCurrent() string {
	if len(m.calls) == 0 {
		return callBox.Render(dimStyle.Render("Esperando llamados…"))
	}
	c := m.calls[0]
	body := callNumberStyle.Render(phraseOrRaw(c.number)) +
		"   " + dimStyle.Render("→") + "   " +
		callDestStyle.Render(c.destination)
	if c.referred != "" {
		body += "\n" + referredStyle.Render("referido de "+c.referred)
	}
	return callBox.Render(body)
}

func renderList(title string, tickets []domain.Ticket, serving bool) string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(title))
	s.WriteString("\n")
	if len(tickets) == 0 {
		s.WriteString(dimStyle.Render("  —"))
		return s.String()
	}
	for i, t := range tickets {
		if i == listRows {
			s.WriteString(dimStyle.Render(fmt.Sprintf("  +%d", len(tickets)-listRows)))
			break
		}
		line := "  " + t.TicketNumber
		switch {
		case serving:
			line += "  " + phrase.FallbackDestination(t.Counter())
		case t.IsVIP:
			line += "  ★"
		}
		s.WriteString(rowStyle.Render(line))
		s.WriteString("\n")
	}
	return s.String()
}

// phraseOrRaw spaces the ticket number the way it is spoken, so the board
// and the voice read the same.
func phraseOrRaw(number string) string {
	if f := phrase.FormatTicketNumber(number); f != "" {
		return f
	}
	return number
}
