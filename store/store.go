// Package store holds the authoritative in-memory task collection for the
// signed-in user, mirrored to a per-user JSON file. The in-memory state is
// the source of truth for the session; disk writes are best effort.
package store

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
)

// ErrNotFound reports a mutation against an id that is not in the collection.
var ErrNotFound = errors.New("task not found")

// TaskStore owns the full task collection for one user.
type TaskStore struct {
	dir        string
	distinctID string
	logger     *log.Logger
	tasks      []domain.Task
}

// Open loads the task collection for distinctID from dir. Missing or
// malformed stored data yields an empty collection; Open never fails.
func Open(dir, distinctID string, logger *log.Logger) *TaskStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &TaskStore{dir: dir, distinctID: distinctID, logger: logger}
	data, err := os.ReadFile(s.path())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).WithField("user", distinctID).Warn("task store unreadable, starting empty")
		}
		return s
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		logger.WithError(err).WithField("user", distinctID).Warn("task store malformed, starting empty")
		return s
	}
	s.tasks = tasks
	return s
}

// Tasks returns a copy of the collection.
func (s *TaskStore) Tasks() []domain.Task {
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Len returns the number of tasks in the collection.
func (s *TaskStore) Len() int { return len(s.tasks) }

// Create appends a new task built from draft. Status is always forced to
// todo and omitted optional fields receive defaults.
func (s *TaskStore) Create(draft domain.TaskDraft) (domain.Task, error) {
	if err := draft.Validate(); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    draft.Priority,
		DueDate:     draft.DueDate,
		Status:      domain.StatusTodo,
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	s.tasks = append(s.tasks, t)
	s.persist()
	return t, nil
}

// Update merges patch into the task matching id. Status is preserved unless
// the patch explicitly carries one.
func (s *TaskStore) Update(id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	i := s.index(id)
	if i < 0 {
		return domain.Task{}, ErrNotFound
	}
	t := &s.tasks[i]
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		t.DueDate = *patch.DueDate
	}
	if patch.Status != nil {
		t.Status = patch.Status.Normalize()
	}
	s.persist()
	return *t, nil
}

// ChangeStatus moves the task to newStatus and returns the previous status.
// Moving a task onto its current column is a no-op and reports changed=false
// so callers can skip the notification side effect.
func (s *TaskStore) ChangeStatus(id string, newStatus domain.Status) (prev domain.Status, changed bool, err error) {
	if !newStatus.Valid() {
		return "", false, errors.New("unknown status " + string(newStatus))
	}
	i := s.index(id)
	if i < 0 {
		return "", false, ErrNotFound
	}
	prev = s.tasks[i].Status
	if prev == newStatus {
		return prev, false, nil
	}
	s.tasks[i].Status = newStatus
	s.persist()
	return prev, true, nil
}

// Delete removes the task matching id and returns it so callers can notify
// with historical details. A missing id is a no-op and returns nil.
func (s *TaskStore) Delete(id string) *domain.Task {
	i := s.index(id)
	if i < 0 {
		return nil
	}
	removed := s.tasks[i]
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.persist()
	return &removed
}

func (s *TaskStore) index(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *TaskStore) path() string {
	return filepath.Join(s.dir, "tasks_"+safeFileComponent(s.distinctID)+".json")
}

// persist re-serializes the whole collection to the per-user slot. Failures
// are swallowed: the in-memory state stays authoritative for the session.
func (s *TaskStore) persist() {
	data, err := sonic.Marshal(s.tasks)
	if err != nil {
		s.logger.WithError(err).WithField("user", s.distinctID).Warn("task serialization failed")
		return
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.logger.WithError(err).WithField("user", s.distinctID).Warn("task persistence failed")
		return
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.logger.WithError(err).WithField("user", s.distinctID).Warn("task persistence failed")
		return
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		s.logger.WithError(err).WithField("user", s.distinctID).Warn("task persistence failed")
	}
}

// safeFileComponent keeps storage keys derived from distinct ids (usually
// email addresses) valid as file names.
func safeFileComponent(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			out[i] = '_'
		}
	}
	return string(out)
}
