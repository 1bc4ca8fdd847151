package tasks

import (
	"fmt"
	"strings"

	"github.com/taskforge/taskforge/internal/shared"
)

func (s *Service) validate(t Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: task title is required", shared.ErrValidation)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", shared.ErrValidation, t.Status)
	}
	return nil
}
