package rbac

import "time"

// Permission keys consulted by the authorization gate. Keys are grouped by
// module prefix, e.g. everything under "user:" guards the user directory.
const (
	PermUserView       = "user:view"
	PermUserCreate     = "user:create"
	PermUserUpdate     = "user:update"
	PermUserDelete     = "user:delete"
	PermUserAssignRole = "user:assign_role"

	PermRoleView   = "role:view"
	PermRoleManage = "role:manage"

	PermPermissionView   = "permission:view"
	PermPermissionManage = "permission:manage"
)

// Role represents a named grouping of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability identified by a unique key.
type Permission struct {
	ID          int64
	Key         string
	Name        string
	Module      string
	Description string
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// CreateUserParams carries the fields required to create an account.
type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
}

// UpdateUserParams carries optional account updates. A nil pointer means
// "leave unchanged"; a pointer to the zero value means "clear".
type UpdateUserParams struct {
	Email        *string
	Name         *string
	PasswordHash *string
	IsActive     *bool
}
