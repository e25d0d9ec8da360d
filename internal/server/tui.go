// ABOUTME: Server TUI for displaying connected clients and group status
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server status display. It is entirely optional:
// a Server runs identically whether or not one is attached.
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{} // signals the caller that 'q'/ctrl+c was pressed
}

// ServerStatus is a point-in-time view of every group the server hosts.
type ServerStatus struct {
	Name   string
	Addr   string
	Uptime time.Duration
	Groups []GroupStatus
}

// GroupStatus is one group's aggregate state and membership, for display.
type GroupStatus struct {
	Name    string
	State   string
	Volume  int
	Muted   bool
	Members []MemberStatus
}

// MemberStatus is one connected client's display-relevant state.
type MemberStatus struct {
	Name  string
	ID    string
	Roles string
}

// tuiModel is the bubbletea model backing ServerTUI.
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

var (
	tuiTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)
	tuiHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))
	tuiValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
	tuiGroupStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))
	tuiFaintStyle = lipgloss.NewStyle().Faint(true)
)

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder

	b.WriteString(tuiTitleStyle.Render("Resonate Server"))
	b.WriteString("\n\n")

	b.WriteString(tuiHeaderStyle.Render("Name: "))
	b.WriteString(tuiValueStyle.Render(m.status.Name))
	b.WriteString("\n")

	b.WriteString(tuiHeaderStyle.Render("Address: "))
	b.WriteString(tuiValueStyle.Render(m.status.Addr))
	b.WriteString("\n")

	b.WriteString(tuiHeaderStyle.Render("Uptime: "))
	b.WriteString(tuiValueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n\n")

	if len(m.status.Groups) == 0 {
		b.WriteString(tuiValueStyle.Render("  No groups"))
		b.WriteString("\n")
	}

	for _, grp := range m.status.Groups {
		header := fmt.Sprintf("%s — %s, vol %d", grp.Name, grp.State, grp.Volume)
		if grp.Muted {
			header += " (muted)"
		}
		b.WriteString(tuiGroupStyle.Render(header))
		b.WriteString("\n")

		if len(grp.Members) == 0 {
			b.WriteString(tuiValueStyle.Render("    (no members)"))
			b.WriteString("\n")
			continue
		}
		for _, mem := range grp.Members {
			b.WriteString(fmt.Sprintf("    • %s", mem.Name))
			b.WriteString(tuiValueStyle.Render(fmt.Sprintf(" (%s)", mem.Roles)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(tuiFaintStyle.Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewServerTUI constructs a ServerTUI. Call Start in its own goroutine, then
// feed it periodic Update calls; Stop tears it down.
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI program and blocks until the user quits or Stop is
// called. initial seeds the first frame before any Update arrives.
func (t *ServerTUI) Start(initial ServerStatus) error {
	m := tuiModel{
		status:    initial,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			if t.program != nil {
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update pushes a new status snapshot to the TUI. Non-blocking: a snapshot
// arriving while ten earlier ones are still queued is dropped.
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
	}
}

// Stop tears down the TUI program.
func (t *ServerTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan reports when the TUI user pressed 'q' or Ctrl+C, requesting the
// server itself shut down.
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
