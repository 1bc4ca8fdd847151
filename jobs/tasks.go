package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDirectoryWarmup rebuilds the user directory snapshot ahead of demand.
	TaskDirectoryWarmup = "directory:warmup"
	// TaskDashboardReseed clears and rematerializes a user's pinned dashboard set.
	TaskDashboardReseed = "dashboard:reseed"
)

// DashboardReseedPayload identifies the seed set to rebuild.
type DashboardReseedPayload struct {
	UserID int64  `json:"user_id"`
	Kind   string `json:"kind"`
}

// NewDirectoryWarmupTask constructs a warmup task.
func NewDirectoryWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskDirectoryWarmup, nil)
}

// NewDashboardReseedTask constructs a reseed task.
func NewDashboardReseedTask(payload DashboardReseedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardReseed, data), nil
}
