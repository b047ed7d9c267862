package roomtail

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxLines = 200

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hostStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	memberStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
)

type Model struct {
	roomID  string
	next    func() tea.Cmd
	role    string
	lines   []Line
	seen    map[string]struct{}
	members []Member
	chars   int
	lastErr string
	closed  bool
	height  int
}

func NewModel(roomID string, next func() tea.Cmd) Model {
	return Model{roomID: roomID, next: next, seen: make(map[string]struct{}), height: 20}
}

func (m Model) Init() tea.Cmd { return m.await() }

func (m Model) await() tea.Cmd {
	if m.next == nil || m.closed {
		return nil
	}
	return m.next()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-6, 3)
		return m, nil
	case joinedMsg:
		m.role = msg.role
		m.lastErr = ""
	case historyMsg:
		for _, l := range msg {
			m.add(l)
		}
	case lineMsg:
		m.add(Line(msg))
	case membersMsg:
		m.members = msg
	case serverErr:
		m.lastErr = string(msg)
	case closedMsg:
		m.closed = true
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
	default:
		return m, nil
	}
	return m, m.await()
}

func (m *Model) add(l Line) {
	if _, dup := m.seen[l.ID]; dup {
		return
	}
	m.seen[l.ID] = struct{}{}
	m.lines = append(m.lines, l)
	m.chars += l.JapaneseCount
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m Model) View() string {
	var b strings.Builder
	status := "connecting"
	switch {
	case m.closed:
		status = "disconnected"
	case m.role != "":
		status = "joined as " + m.role
	}
	b.WriteString(titleStyle.Render("room "+m.roomID) + " " + metaStyle.Render(status) + "\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("%d lines, %d chars", len(m.seen), m.chars)) + "  ")
	names := make([]string, 0, len(m.members))
	for _, mem := range m.members {
		name := mem.Username
		if name == "" {
			name = "Anonymous"
		}
		if mem.Role == "host" {
			names = append(names, hostStyle.Render(name))
		} else {
			names = append(names, memberStyle.Render(name))
		}
	}
	b.WriteString(strings.Join(names, " ") + "\n\n")

	start := max(len(m.lines)-m.height, 0)
	for _, l := range m.lines[start:] {
		b.WriteString(metaStyle.Render(l.CreatedAt.Local().Format("15:04:05")) + " " + l.Text + "\n")
	}
	if m.lastErr != "" {
		b.WriteString("\n" + errorStyle.Render(m.lastErr) + "\n")
	}
	b.WriteString(metaStyle.Render("\nq to quit"))
	return b.String()
}
