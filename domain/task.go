package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status places a task in exactly one board column.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusInReview   Status = "in-review"
	StatusCompleted  Status = "completed"
)

// Columns lists the fixed board columns in display order.
var Columns = [4]Status{StatusTodo, StatusInProgress, StatusInReview, StatusCompleted}

// Valid reports whether s names one of the four board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusCompleted:
		return true
	}
	return false
}

// Normalize maps empty or unrecognized status values onto the todo column.
func (s Status) Normalize() Status {
	if s.Valid() {
		return s
	}
	return StatusTodo
}

// Title returns the column heading shown on the board.
func (s Status) Title() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusInReview:
		return "In Review"
	case StatusCompleted:
		return "Completed"
	}
	return string(s)
}

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
)

var (
	ErrEmptyTitle      = errors.New("task title must not be empty")
	ErrInvalidPriority = errors.New("unknown task priority")
	ErrInvalidDueDate  = errors.New("due date must be an ISO calendar date")
)

// Task represents a single board card.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    Priority `json:"priority"`
	DueDate     string   `json:"dueDate,omitempty"`
	Status      Status   `json:"status"`
}

// TaskDraft carries user-entered fields for a new task. Status is never part
// of a draft; new tasks always start in the todo column.
type TaskDraft struct {
	Title       string
	Description string
	Priority    Priority
	DueDate     string
}

// Validate rejects drafts before any mutation happens.
func (d TaskDraft) Validate() error {
	if d.Title == "" {
		return ErrEmptyTitle
	}
	if len(d.Title) > MaxTitleLen {
		return fmt.Errorf("task title exceeds %d characters", MaxTitleLen)
	}
	if len(d.Description) > MaxDescriptionLen {
		return fmt.Errorf("task description exceeds %d characters", MaxDescriptionLen)
	}
	if d.Priority != "" && !d.Priority.Valid() {
		return ErrInvalidPriority
	}
	if err := validateDueDate(d.DueDate); err != nil {
		return err
	}
	return nil
}

// TaskPatch represents optional task fields for an update. Nil fields are
// left untouched; Status is only changed when explicitly supplied.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *Priority
	DueDate     *string
	Status      *Status
}

func (p TaskPatch) Validate() error {
	if p.Title != nil {
		if *p.Title == "" {
			return ErrEmptyTitle
		}
		if len(*p.Title) > MaxTitleLen {
			return fmt.Errorf("task title exceeds %d characters", MaxTitleLen)
		}
	}
	if p.Description != nil && len(*p.Description) > MaxDescriptionLen {
		return fmt.Errorf("task description exceeds %d characters", MaxDescriptionLen)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ErrInvalidPriority
	}
	if p.DueDate != nil {
		if err := validateDueDate(*p.DueDate); err != nil {
			return err
		}
	}
	return nil
}

func validateDueDate(d string) error {
	if d == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", d); err != nil {
		return ErrInvalidDueDate
	}
	return nil
}
