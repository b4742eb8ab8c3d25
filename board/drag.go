package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
	"pulseboard/store"
)

// Notifier receives best-effort status change notifications after a move has
// been committed locally.
type Notifier interface {
	TaskStatusChanged(ctx context.Context, t domain.Task, oldStatus, newStatus domain.Status) error
}

// DropResult records a committed drop so the notification side effect can be
// fired separately from the mutation.
type DropResult struct {
	Moved bool
	Task  domain.Task
	From  domain.Status
	To    domain.Status
}

// Controller is the drag state machine: idle until a card is picked up,
// dragging until it is dropped on a column or the drag is cancelled.
// Mutation and notification are two independent steps composed by the
// caller: Drop commits the local move, Notify fires the outbound event.
// The local move always wins; a failed notification only yields a warning.
type Controller struct {
	store    *store.TaskStore
	notifier Notifier
	logger   *log.Logger
	dragging *domain.Task
}

func NewController(st *store.TaskStore, notifier Notifier, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{store: st, notifier: notifier, logger: logger}
}

// DragStart picks up the card matching id. An unknown id leaves the
// controller idle.
func (c *Controller) DragStart(id string) bool {
	for _, t := range c.store.Tasks() {
		if t.ID == id {
			held := t
			c.dragging = &held
			return true
		}
	}
	c.dragging = nil
	return false
}

// Dragging returns the held task, or nil when idle.
func (c *Controller) Dragging() *domain.Task {
	return c.dragging
}

// DragOver reports whether the column accepts the current drag. Every column
// accepts every card.
func (c *Controller) DragOver(domain.Status) bool {
	return c.dragging != nil
}

// Drop commits the transition to the target column and returns to idle.
// Dropping onto the card's current column is a no-op that must not fire a
// notification, so Moved is false for it.
func (c *Controller) Drop(column domain.Status) DropResult {
	held := c.dragging
	c.dragging = nil
	if held == nil {
		return DropResult{}
	}

	prev, changed, err := c.store.ChangeStatus(held.ID, column)
	if err != nil {
		// The card disappeared mid-drag (e.g. deleted); degrade to a no-op.
		c.logger.WithError(err).WithField("task", held.ID).Debug("drop target lost")
		return DropResult{}
	}
	if !changed {
		return DropResult{}
	}

	moved := *held
	moved.Status = column
	return DropResult{Moved: true, Task: moved, From: prev, To: column}
}

// Notify announces a committed drop. The returned error is a non-blocking
// warning: the move stays applied regardless.
func (c *Controller) Notify(ctx context.Context, res DropResult) error {
	if !res.Moved || c.notifier == nil {
		return nil
	}
	if err := c.notifier.TaskStatusChanged(ctx, res.Task, res.From, res.To); err != nil {
		c.logger.WithError(err).WithField("task", res.Task.ID).Warn("status change notification failed")
		return fmt.Errorf("update saved but notification failed: %w", err)
	}
	return nil
}

// DropAndNotify composes Drop and Notify for callers without their own event
// loop.
func (c *Controller) DropAndNotify(ctx context.Context, column domain.Status) (bool, error) {
	res := c.Drop(column)
	if !res.Moved {
		return false, nil
	}
	return true, c.Notify(ctx, res)
}

// DragEnd cancels a drag that never reached a drop, mutating nothing.
func (c *Controller) DragEnd() {
	c.dragging = nil
}
