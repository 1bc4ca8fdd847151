package tasks

import "time"

// Status is the task lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// Terminal reports whether the status is an end state. Terminal tasks never
// qualify as dashboard seed candidates.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusArchived
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone, StatusArchived:
		return true
	}
	return false
}

// Task represents a tracked unit of work. Creator and assignee references are
// nullable; deleting a user nulls them when the schema allows it.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListFilters narrows task listings.
type ListFilters struct {
	Page       int
	PageSize   int
	Status     Status
	AssigneeID *int64
	Search     string
}
