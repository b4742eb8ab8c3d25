package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pulseboard/domain"
)

const (
	minColumnWidth = 22
	maxColumnWidth = 36
)

func (m Model) View() string {
	if m.mode == modeForm {
		return m.viewForm()
	}
	return m.viewBoard()
}

func (m Model) viewBoard() string {
	colWidth := minColumnWidth
	if m.width > 0 {
		w := m.width/len(domain.Columns) - 2
		if w > colWidth {
			colWidth = w
		}
		if colWidth > maxColumnWidth {
			colWidth = maxColumnWidth
		}
	}

	dragging := m.ctrl.Dragging()
	cols := make([]string, 0, len(domain.Columns))
	for ci, status := range domain.Columns {
		cols = append(cols, m.viewColumn(ci, status, colWidth, dragging))
	}
	boardView := lipgloss.JoinHorizontal(lipgloss.Top, cols...)

	var b strings.Builder
	b.WriteString(boardView)
	b.WriteString("\n")
	b.WriteString(m.styles.StatusBar.Render(m.statusLine(dragging)))
	if m.toast != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Toast.Render("! " + m.toast))
	}
	return b.String()
}

func (m Model) viewColumn(ci int, status domain.Status, width int, dragging *domain.Task) string {
	cards := m.columns[status]

	headerStyle := m.styles.ColumnHeader
	if ci == m.col {
		headerStyle = m.styles.ColumnHeaderActive
	}
	title := status.Title()
	pad := width - len(title) - 3
	if pad < 0 {
		pad = 0
	}
	header := headerStyle.Render("─ " + title + " " + strings.Repeat("─", pad))

	parts := []string{header}
	for ri, t := range cards {
		style := m.styles.Card
		cursor := "  "
		if ci == m.col && ri == m.row {
			style = m.styles.CardActive
			cursor = "▶ "
		}
		if dragging != nil && dragging.ID == t.ID {
			style = m.styles.CardGrabbed
		}
		body := cursor + truncate(t.Title, width-6)
		if meta := cardMeta(t); meta != "" {
			body += "\n" + m.styles.Meta.Render(meta)
		}
		parts = append(parts, style.Width(width-2).Render(body))
	}
	if len(cards) == 0 {
		parts = append(parts, m.styles.Meta.Render("  (empty)"))
	}

	column := lipgloss.JoinVertical(lipgloss.Left, parts...)
	return m.styles.Column.Width(width).Render(column)
}

func cardMeta(t domain.Task) string {
	parts := make([]string, 0, 2)
	if t.Priority != "" {
		parts = append(parts, string(t.Priority))
	}
	if t.DueDate != "" {
		parts = append(parts, "due "+t.DueDate)
	}
	return strings.Join(parts, " · ")
}

func (m Model) statusLine(dragging *domain.Task) string {
	if dragging != nil {
		return "moving \"" + truncate(dragging.Title, 30) + "\"  space/enter: drop here  esc: cancel"
	}
	name := m.session.DisplayName()
	return name + "  ←→↑↓ move  space: grab  n: new  e: edit  d: delete  o: sign out  q: quit"
}

func (m Model) viewForm() string {
	var b strings.Builder
	title := "New task"
	if m.form.editing != "" {
		title = "Edit task"
	}
	b.WriteString(m.styles.FormTitle.Render(title))
	b.WriteString("\n\n")

	labels := [fieldCount]string{"Title", "Description", "Priority", "Due date"}
	for i, in := range m.form.inputs {
		b.WriteString(labels[i])
		b.WriteString("\n")
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}

	if m.form.errMsg != "" {
		b.WriteString(m.styles.FormError.Render(m.form.errMsg))
		b.WriteString("\n\n")
	}
	b.WriteString(m.styles.StatusBar.Render("tab: next field  enter: save  esc: cancel"))
	return b.String()
}

func truncate(s string, max int) string {
	if max < 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
