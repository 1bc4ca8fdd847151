package users

import "time"

// User represents a user account.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DirectoryUser is a directory listing entry: an active user with the role
// names folded in. PrimaryRole is the first assigned role by role id
// ascending; AllRoles is the full ordered list.
type DirectoryUser struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	PrimaryRole string    `json:"primary_role"`
	AllRoles    []string  `json:"all_roles"`
	CreatedAt   time.Time `json:"created_at"`
}
