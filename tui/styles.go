package tui

import "github.com/charmbracelet/lipgloss"

// Styles groups the lipgloss styles used by the board view.
type Styles struct {
	ColumnHeader       lipgloss.Style
	ColumnHeaderActive lipgloss.Style
	Column             lipgloss.Style
	Card               lipgloss.Style
	CardActive         lipgloss.Style
	CardGrabbed        lipgloss.Style
	Meta               lipgloss.Style
	StatusBar          lipgloss.Style
	Toast              lipgloss.Style
	FormTitle          lipgloss.Style
	FormError          lipgloss.Style
}

func DefaultStyles() *Styles {
	return &Styles{
		ColumnHeader: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "246"}),
		ColumnHeaderActive: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "33", Dark: "39"}).
			Bold(true),
		Column: lipgloss.NewStyle().
			Padding(0, 1),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "250", Dark: "238"}).
			Padding(0, 1),
		CardActive: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "33", Dark: "39"}).
			Padding(0, 1),
		CardGrabbed: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "208", Dark: "214"}).
			Padding(0, 1),
		Meta: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "244", Dark: "244"}),
		StatusBar: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "246"}),
		Toast: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"}).
			Bold(true),
		FormTitle: lipgloss.NewStyle().Bold(true),
		FormError: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "203"}),
	}
}
