package logs

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskforge/taskforge/internal/shared"
)

// Service handles log business logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get fetches a log entry.
func (s *Service) Get(ctx context.Context, id int64) (Log, error) {
	return s.repo.Get(ctx, id)
}

// ListByTask returns the log entries for a task, newest first.
func (s *Service) ListByTask(ctx context.Context, taskID int64) ([]Log, error) {
	return s.repo.ListByTask(ctx, taskID)
}

// Create validates and inserts a log entry.
func (s *Service) Create(ctx context.Context, log Log) (Log, error) {
	if log.TaskID <= 0 {
		return Log{}, fmt.Errorf("%w: task is required", shared.ErrValidation)
	}
	if strings.TrimSpace(log.Body) == "" {
		return Log{}, fmt.Errorf("%w: log body is required", shared.ErrValidation)
	}
	return s.repo.Create(ctx, log)
}

// Delete removes a log entry.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
