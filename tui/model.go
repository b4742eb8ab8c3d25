// Package tui renders the task board as a terminal UI. The update loop owns
// every store mutation; notifications run as commands so the board never
// blocks on the network.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"pulseboard/board"
	"pulseboard/domain"
	"pulseboard/store"
)

// Dispatcher fires task lifecycle notifications after a local mutation has
// been committed.
type Dispatcher interface {
	TaskCreated(ctx context.Context, t domain.Task) error
	TaskStatusChanged(ctx context.Context, t domain.Task, oldStatus, newStatus domain.Status) error
	TaskDeleted(ctx context.Context, t domain.Task) error
}

type mode int

const (
	modeBoard mode = iota
	modeForm
)

const (
	toastDuration   = 4 * time.Second
	dispatchTimeout = 10 * time.Second
)

type notifyResultMsg struct {
	warn error
}

type toastClearMsg struct{}

// SignOut is called when the user signs out, before the program quits.
type SignOut func() error

type Model struct {
	store      *store.TaskStore
	ctrl       *board.Controller
	dispatcher Dispatcher
	session    domain.Session
	signOut    SignOut
	logger     *log.Logger
	styles     *Styles

	mode    mode
	form    *taskForm
	columns map[domain.Status][]domain.Task
	col     int
	row     int
	toast   string
	width   int
	height  int
}

func New(st *store.TaskStore, ctrl *board.Controller, dispatcher Dispatcher, session domain.Session, signOut SignOut, logger *log.Logger) Model {
	if logger == nil {
		logger = log.StandardLogger()
	}
	m := Model{
		store:      st,
		ctrl:       ctrl,
		dispatcher: dispatcher,
		session:    session,
		signOut:    signOut,
		logger:     logger,
		styles:     DefaultStyles(),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

// refresh rebuilds the column partition from the store and clamps the cursor.
func (m *Model) refresh() {
	m.columns = board.Partition(m.store.Tasks())
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.col < 0 {
		m.col = 0
	}
	if m.col >= len(domain.Columns) {
		m.col = len(domain.Columns) - 1
	}
	cards := m.columns[domain.Columns[m.col]]
	if m.row >= len(cards) {
		m.row = len(cards) - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m *Model) currentColumn() domain.Status {
	return domain.Columns[m.col]
}

func (m *Model) currentTask() *domain.Task {
	cards := m.columns[m.currentColumn()]
	if m.row < 0 || m.row >= len(cards) {
		return nil
	}
	t := cards[m.row]
	return &t
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case notifyResultMsg:
		if msg.warn != nil {
			m.toast = msg.warn.Error()
			return m, tea.Tick(toastDuration, func(time.Time) tea.Msg { return toastClearMsg{} })
		}
		return m, nil

	case toastClearMsg:
		m.toast = ""
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeForm {
			return m.updateForm(msg)
		}
		return m.updateBoard(msg)
	}
	return m, nil
}

func (m Model) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "o":
		if m.signOut != nil {
			if err := m.signOut(); err != nil {
				m.logger.WithError(err).Warn("sign out cleanup failed")
			}
		}
		return m, tea.Quit

	case "left", "h":
		if m.col > 0 {
			m.col--
			m.clampCursor()
		}
		return m, nil

	case "right", "l":
		if m.col < len(domain.Columns)-1 {
			m.col++
			m.clampCursor()
		}
		return m, nil

	case "up", "k":
		if m.row > 0 {
			m.row--
		}
		return m, nil

	case "down", "j":
		if m.row < len(m.columns[m.currentColumn()])-1 {
			m.row++
		}
		return m, nil

	case " ", "enter":
		if m.ctrl.Dragging() == nil {
			if t := m.currentTask(); t != nil {
				m.ctrl.DragStart(t.ID)
			}
			return m, nil
		}
		res := m.ctrl.Drop(m.currentColumn())
		m.refresh()
		if !res.Moved {
			return m, nil
		}
		return m, m.notifyCmd(func(ctx context.Context) error {
			return m.ctrl.Notify(ctx, res)
		})

	case "esc":
		m.ctrl.DragEnd()
		return m, nil

	case "n":
		m.mode = modeForm
		m.form = newTaskForm(nil)
		return m, nil

	case "e":
		if t := m.currentTask(); t != nil {
			m.mode = modeForm
			m.form = newTaskForm(t)
		}
		return m, nil

	case "d":
		t := m.currentTask()
		if t == nil {
			return m, nil
		}
		removed := m.store.Delete(t.ID)
		m.refresh()
		if removed == nil {
			return m, nil
		}
		snapshot := *removed
		return m, m.notifyCmd(func(ctx context.Context) error {
			return m.dispatcher.TaskDeleted(ctx, snapshot)
		})
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.mode = modeBoard
		m.form = nil
		return m, nil

	case "tab", "down":
		m.form.next()
		return m, nil

	case "shift+tab", "up":
		m.form.prev()
		return m, nil

	case "enter":
		return m.submitForm()
	}

	cmd := m.form.update(msg)
	return m, cmd
}

func (m Model) submitForm() (tea.Model, tea.Cmd) {
	if m.form.editing == "" {
		draft := m.form.draft()
		t, err := m.store.Create(draft)
		if err != nil {
			m.form.errMsg = err.Error()
			return m, nil
		}
		m.mode = modeBoard
		m.form = nil
		m.refresh()
		return m, m.notifyCmd(func(ctx context.Context) error {
			return m.dispatcher.TaskCreated(ctx, t)
		})
	}

	// Plain edits never change the column and never notify.
	if _, err := m.store.Update(m.form.editing, m.form.patch()); err != nil {
		m.form.errMsg = err.Error()
		return m, nil
	}
	m.mode = modeBoard
	m.form = nil
	m.refresh()
	return m, nil
}

func (m Model) notifyCmd(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		return notifyResultMsg{warn: fn(ctx)}
	}
}
