package tasks

import "context"

// Service handles task business logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns a filtered page of tasks.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Task, int, error) {
	return s.repo.List(ctx, filters)
}

// Get fetches a task.
func (s *Service) Get(ctx context.Context, id int64) (Task, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and inserts a task. Creator defaults from the caller.
func (s *Service) Create(ctx context.Context, task Task) (Task, error) {
	if task.Status == "" {
		task.Status = StatusOpen
	}
	if err := s.validate(task); err != nil {
		return Task{}, err
	}
	return s.repo.Create(ctx, task)
}

// Update validates and replaces the mutable task fields.
func (s *Service) Update(ctx context.Context, id int64, task Task) error {
	if err := s.validate(task); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, task)
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
