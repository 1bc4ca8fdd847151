package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/taskforge/taskforge/internal/dashboard"
)

// DashboardReseedJob rebuilds a user's pinned dashboard set out of band.
type DashboardReseedJob struct {
	Seeder *dashboard.Seeder
	Logger *slog.Logger
}

// Handle processes TaskDashboardReseed tasks.
func (j *DashboardReseedJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DashboardReseedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	kind, err := dashboard.ParseKind(payload.Kind)
	if err != nil {
		return asynq.SkipRetry
	}
	ids, err := j.Seeder.Reseed(ctx, payload.UserID, kind)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("dashboard reseed", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
		}
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("dashboard reseeded",
			slog.Int64("user_id", payload.UserID),
			slog.String("kind", payload.Kind),
			slog.Int("count", len(ids)))
	}
	return nil
}
