package repository

import (
	"context"
	"sort"
	"sync"

	"taskflow/internal/model"
)

// MemoryStore is an in-process TaskStore. Every read and write deep-copies,
// so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	tasks  map[string]model.Task
	events []model.OutboundEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]model.Task)}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.StorageError("failed to load task", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, model.NotFoundf("task not found")
	}
	out := t.Clone()
	return &out, nil
}

// List returns matching tasks newest first.
func (s *MemoryStore) List(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.StorageError("failed to list tasks", err)
	}

	s.mu.RLock()
	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if matches(&t, filter) {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, task *model.Task, events ...model.OutboundEvent) error {
	if err := ctx.Err(); err != nil {
		return model.StorageError("failed to create task", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return model.Conflictf("task %s already exists", task.ID)
	}
	stored := task.Clone()
	stored.Version = 1
	s.tasks[task.ID] = stored
	s.events = append(s.events, events...)
	task.Version = 1
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, task *model.Task, events ...model.OutboundEvent) error {
	if err := ctx.Err(); err != nil {
		return model.StorageError("failed to update task", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[task.ID]
	if !ok {
		return model.NotFoundf("task not found")
	}
	if current.Version != task.Version {
		return ErrVersionConflict
	}

	stored := task.Clone()
	stored.Version = current.Version + 1
	s.tasks[task.ID] = stored
	s.events = append(s.events, events...)
	task.Version = stored.Version
	return nil
}

// Events returns every event recorded by successful writes, oldest first.
func (s *MemoryStore) Events() []model.OutboundEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.OutboundEvent(nil), s.events...)
}
