package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hone/internal/types"
)

const (
	decisionNone = iota
	decisionApprove
	decisionSkip
)

type reviewStyles struct {
	title    lipgloss.Style
	approved lipgloss.Style
	skipped  lipgloss.Style
	detail   lipgloss.Style
	help     lipgloss.Style
}

func newReviewStyles() reviewStyles {
	return reviewStyles{
		title:    lipgloss.NewStyle().Bold(true),
		approved: lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
		skipped:  lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")),
		detail: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1),
		help: lipgloss.NewStyle().Faint(true),
	}
}

// reviewModel is the triage screen: one row per pending delta, a detail pane
// for the selected one, and per-row approve/skip decisions.
type reviewModel struct {
	table     table.Model
	deltas    []types.Delta
	decisions []int
	styles    reviewStyles
	width     int
	aborted   bool
}

func newReviewModel(deltas []types.Delta) reviewModel {
	t := table.New(
		table.WithColumns(reviewColumns()),
		table.WithFocused(true),
		table.WithHeight(minInt(len(deltas), 12)),
	)

	m := reviewModel{
		table:     t,
		deltas:    deltas,
		decisions: make([]int, len(deltas)),
		styles:    newReviewStyles(),
	}
	m.refreshRows()
	return m
}

func reviewColumns() []table.Column {
	return []table.Column{
		{Title: "", Width: 2},
		{Title: "Section", Width: 24},
		{Title: "Conf", Width: 5},
		{Title: "Content", Width: 52},
	}
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.String() {
		case "a":
			m.decide(decisionApprove)
			m.table.MoveDown(1)
		case "s":
			m.decide(decisionSkip)
			m.table.MoveDown(1)
		case "u":
			m.decide(decisionNone)
		case "enter", "q":
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *reviewModel) decide(decision int) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.decisions) {
		return
	}
	m.decisions[i] = decision
	m.refreshRows()
}

func (m *reviewModel) refreshRows() {
	rows := make([]table.Row, 0, len(m.deltas))
	for i, d := range m.deltas {
		// Plain marks: styled cells would throw off the column widths.
		mark := " "
		switch m.decisions[i] {
		case decisionApprove:
			mark = "+"
		case decisionSkip:
			mark = "-"
		}
		rows = append(rows, table.Row{
			mark,
			d.Section,
			fmt.Sprintf("%.2f", d.Metadata.Confidence),
			clip(d.Content, 50),
		})
	}
	m.table.SetRows(rows)
}

func (m reviewModel) View() string {
	var sb strings.Builder

	approved, skipped := 0, 0
	for _, dec := range m.decisions {
		switch dec {
		case decisionApprove:
			approved++
		case decisionSkip:
			skipped++
		}
	}

	sb.WriteString(m.styles.title.Render("Pending review"))
	sb.WriteString("  " + m.styles.approved.Render(fmt.Sprintf("%d approved", approved)))
	sb.WriteString("  " + m.styles.skipped.Render(fmt.Sprintf("%d skipped", skipped)))
	sb.WriteString(fmt.Sprintf("  %d total\n\n", len(m.deltas)))
	sb.WriteString(m.table.View())
	sb.WriteString("\n\n")

	if sel := m.table.Cursor(); sel >= 0 && sel < len(m.deltas) {
		d := m.deltas[sel]
		detail := fmt.Sprintf("[%s] %s\n%s\nconfidence %.2f",
			d.Op, d.Section, d.Content, d.Metadata.Confidence)
		if d.Metadata.Source.BeadID != "" {
			detail += "  item " + d.Metadata.Source.BeadID
		}
		if d.Metadata.Evidence != "" {
			detail += "\n" + d.Metadata.Evidence
		}
		sb.WriteString(m.styles.detail.Render(detail))
		sb.WriteString("\n\n")
	}

	sb.WriteString(m.styles.help.Render("a approve  s skip  u undo  enter apply  esc cancel"))
	return sb.String()
}

// approvedDeltas returns the deltas marked for promotion, in list order.
func (m reviewModel) approvedDeltas() []types.Delta {
	var approved []types.Delta
	for i, dec := range m.decisions {
		if dec == decisionApprove {
			approved = append(approved, m.deltas[i])
		}
	}
	return approved
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
