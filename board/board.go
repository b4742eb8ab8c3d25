// Package board projects the flat task collection into the four fixed Kanban
// columns and mediates drag-and-drop status transitions.
package board

import (
	"pulseboard/domain"
)

// Partition groups tasks by status into the four fixed columns. Tasks with
// an unknown or missing status land in the todo column. Every task appears
// in exactly one column; the union of all columns equals the input.
func Partition(tasks []domain.Task) map[domain.Status][]domain.Task {
	cols := make(map[domain.Status][]domain.Task, len(domain.Columns))
	for _, s := range domain.Columns {
		cols[s] = nil
	}
	for _, t := range tasks {
		s := t.Status.Normalize()
		cols[s] = append(cols[s], t)
	}
	return cols
}

// Column returns the tasks in one column, in collection order.
func Column(tasks []domain.Task, status domain.Status) []domain.Task {
	return Partition(tasks)[status.Normalize()]
}
