package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/taskforge/taskforge/internal/users"
)

// DirectoryWarmupJob rebuilds the user directory snapshot so the first
// listing after an invalidation does not pay the rebuild cost in-band.
type DirectoryWarmupJob struct {
	Directory *users.Directory
	Logger    *slog.Logger
}

// Handle processes TaskDirectoryWarmup tasks.
func (j *DirectoryWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	// Paging through the first page forces a rebuild when the snapshot is
	// absent or stale, and is a cheap no-op otherwise.
	_, total, err := j.Directory.List(ctx, 1, 1)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("directory warmup", slog.Any("error", err))
		}
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("directory warmed", slog.Int("users", total))
	}
	return nil
}
