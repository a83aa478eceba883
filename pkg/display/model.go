// Package display renders the host table as a full-screen terminal
// dashboard using Bubble Tea.
package display

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kylerisse/comitup-watch/pkg/engine"
)

const (
	// Title is shown centered in the header.
	Title = "COMITUP-WATCH"

	// Footer lists the available commands.
	Footer = "(Q)uit    (C)onnect    (L)ocate"

	chromeHeight = 3
)

// Message is a modal dialog's text.
type Message int

const (
	MessageNone Message = iota
	MessageNotImplemented
	MessageInvalidInput
)

func (m Message) String() string {
	switch m {
	case MessageNotImplemented:
		return "Not Implemented"
	case MessageInvalidInput:
		return "Invalid Input"
	default:
		return ""
	}
}

// RowsMsg replaces the table contents.
type RowsMsg struct {
	Rows []engine.Row
}

// Model is the root Bubble Tea model.
type Model struct {
	keys   KeyMap
	width  int
	height int

	rows   []engine.Row
	dialog Message
}

// New creates an empty dashboard.
func New() Model {
	return Model{keys: DefaultKeyMap()}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Dialog returns the open dialog, MessageNone if none.
func (m Model) Dialog() Message {
	return m.dialog
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case RowsMsg:
		m.rows = msg.Rows
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	// Any key closes an open dialog.
	if m.dialog != MessageNone {
		m.dialog = MessageNone
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Connect), key.Matches(msg, m.keys.Locate):
		m.dialog = MessageNotImplemented
	default:
		m.dialog = MessageInvalidInput
	}
	return m, nil
}

// View renders the full screen.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	bodyHeight := max(m.height-2*chromeHeight, 1)

	var body string
	if m.dialog != MessageNone {
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center,
			StyleDialog.Render(m.dialog.String()))
	} else {
		body = m.renderBody(bodyHeight)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.banner(StyleTitle.Render(Title)),
		body,
		m.banner(Footer),
	)
}

// banner draws text centered between two horizontal rules.
func (m Model) banner(text string) string {
	rule := StyleRule.Render(strings.Repeat("-", max(m.width-1, 0)))
	return lipgloss.JoinVertical(lipgloss.Left,
		rule,
		lipgloss.PlaceHorizontal(m.width, lipgloss.Center, text),
		rule,
	)
}

func (m Model) renderBody(height int) string {
	var lines []string
	if len(m.rows) == 0 {
		lines = []string{StyleDimmed.Render("Waiting for hosts...")}
	} else {
		lines = renderTable(m.rows)
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	table := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, table)
}
