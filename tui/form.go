package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"pulseboard/domain"
)

const (
	fieldTitle = iota
	fieldDescription
	fieldPriority
	fieldDueDate
	fieldCount
)

// taskForm is the inline create/edit form. Validation errors surface on the
// form itself and never leave it.
type taskForm struct {
	inputs  [fieldCount]textinput.Model
	focus   int
	editing string // task id when editing, empty when creating
	errMsg  string
}

func newTaskForm(existing *domain.Task) *taskForm {
	f := &taskForm{}

	title := textinput.New()
	title.Placeholder = "Title"
	title.CharLimit = domain.MaxTitleLen
	title.Focus()

	desc := textinput.New()
	desc.Placeholder = "Description (optional)"
	desc.CharLimit = domain.MaxDescriptionLen

	prio := textinput.New()
	prio.Placeholder = "Priority: low / medium / high"
	prio.CharLimit = 10

	due := textinput.New()
	due.Placeholder = "Due date: YYYY-MM-DD (optional)"
	due.CharLimit = 10

	f.inputs = [fieldCount]textinput.Model{title, desc, prio, due}

	if existing != nil {
		f.editing = existing.ID
		f.inputs[fieldTitle].SetValue(existing.Title)
		f.inputs[fieldDescription].SetValue(existing.Description)
		f.inputs[fieldPriority].SetValue(string(existing.Priority))
		f.inputs[fieldDueDate].SetValue(existing.DueDate)
	}
	return f
}

func (f *taskForm) next() {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + 1) % fieldCount
	f.inputs[f.focus].Focus()
}

func (f *taskForm) prev() {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + fieldCount - 1) % fieldCount
	f.inputs[f.focus].Focus()
}

func (f *taskForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *taskForm) priority() domain.Priority {
	return domain.Priority(strings.ToLower(strings.TrimSpace(f.inputs[fieldPriority].Value())))
}

func (f *taskForm) draft() domain.TaskDraft {
	return domain.TaskDraft{
		Title:       strings.TrimSpace(f.inputs[fieldTitle].Value()),
		Description: strings.TrimSpace(f.inputs[fieldDescription].Value()),
		Priority:    f.priority(),
		DueDate:     strings.TrimSpace(f.inputs[fieldDueDate].Value()),
	}
}

func (f *taskForm) patch() domain.TaskPatch {
	title := strings.TrimSpace(f.inputs[fieldTitle].Value())
	desc := strings.TrimSpace(f.inputs[fieldDescription].Value())
	prio := f.priority()
	due := strings.TrimSpace(f.inputs[fieldDueDate].Value())
	p := domain.TaskPatch{
		Title:       &title,
		Description: &desc,
		DueDate:     &due,
	}
	if prio != "" {
		p.Priority = &prio
	}
	return p
}
