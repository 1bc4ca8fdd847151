package logs

import "time"

// Log is a work log entry attached to a task. The author reference is NOT
// NULL: deleting a user hard-deletes their logs rather than orphaning them.
type Log struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
