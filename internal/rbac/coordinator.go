package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskforge/taskforge/internal/shared"
)

// PermissionInvalidator evicts resolved permission sets.
type PermissionInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}

// DirectoryInvalidator forces the next directory listing to rebuild.
type DirectoryInvalidator interface {
	Invalidate()
}

// Coordinator executes every structural RBAC mutation as an all-or-nothing
// transaction and triggers cache invalidation strictly after commit. A failed
// mutation rolls back fully and never touches a cache; a successful one
// invalidates the affected caches before the call returns, so a caller that
// observes success and immediately resolves permissions sees post-mutation
// state.
type Coordinator struct {
	store     Store
	perms     PermissionInvalidator
	directory DirectoryInvalidator
	logger    *slog.Logger
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(store Store, perms PermissionInvalidator, directory DirectoryInvalidator, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, perms: perms, directory: directory, logger: logger}
}

// CreateUser inserts a new account and refreshes the directory.
func (c *Coordinator) CreateUser(ctx context.Context, params CreateUserParams) (int64, error) {
	params.Email = strings.TrimSpace(params.Email)
	params.Name = strings.TrimSpace(params.Name)
	if params.Email == "" || params.Name == "" {
		return 0, fmt.Errorf("%w: email and name required", shared.ErrValidation)
	}
	var id int64
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		id, err = tx.CreateUser(ctx, params)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.directory.Invalidate()
	return id, nil
}

// UpdateUser applies a partial update. Nil fields are left unchanged; non-nil
// zero values clear. Supplying no fields at all is a validation error.
func (c *Coordinator) UpdateUser(ctx context.Context, userID int64, params UpdateUserParams) error {
	fields := map[string]any{}
	if params.Email != nil {
		fields["email"] = *params.Email
	}
	if params.Name != nil {
		fields["name"] = *params.Name
	}
	if params.PasswordHash != nil {
		fields["password_hash"] = *params.PasswordHash
	}
	if params.IsActive != nil {
		fields["is_active"] = *params.IsActive
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields supplied", shared.ErrValidation)
	}
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.UpdateUser(ctx, userID, fields)
	})
	if err != nil {
		return err
	}
	c.directory.Invalidate()
	return nil
}

// DeleteUser hard-deletes an account and everything hanging off it: role
// assignments, authored logs (the log author reference is NOT NULL, so
// orphaning is impossible), task references (nulled, or the task rows deleted
// when the schema rejects the null), and dashboard seeds. Self-deletion is
// rejected before the transaction starts.
func (c *Coordinator) DeleteUser(ctx context.Context, userID, actorID int64) error {
	if userID == actorID {
		return fmt.Errorf("%w: cannot delete own account", shared.ErrValidation)
	}
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.DeleteUserRoles(ctx, userID); err != nil {
			return err
		}
		if err := tx.DeleteAuthoredLogs(ctx, userID); err != nil {
			return err
		}
		if err := tx.DetachUserFromTasks(ctx, userID); err != nil {
			if !errors.Is(err, errTaskRefsNotNullable) {
				return err
			}
			if err := tx.DeleteUserTasks(ctx, userID); err != nil {
				return err
			}
		}
		if err := tx.DeleteDashboardSeeds(ctx, userID); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, userID)
	})
	if err != nil {
		return err
	}
	return c.afterUserMutation(ctx, userID)
}

// AssignUserRoles replaces the user's role set. Duplicates in the input
// collapse to one row each; an empty slice clears all roles.
func (c *Coordinator) AssignUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	exists, err := c.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
	}
	roleIDs = dedupeIDs(roleIDs)
	err = c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.DeleteUserRoles(ctx, userID); err != nil {
			return err
		}
		return tx.InsertUserRoles(ctx, userID, roleIDs)
	})
	if err != nil {
		return err
	}
	return c.afterUserMutation(ctx, userID)
}

// CreateRole inserts a new role.
func (c *Coordinator) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	var role Role
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		role, err = tx.CreateRole(ctx, name, strings.TrimSpace(description))
		return err
	})
	return role, err
}

// UpdateRole renames a role. Role names appear in the user directory, so the
// snapshot is refreshed after commit.
func (c *Coordinator) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	var role Role
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		role, err = tx.UpdateRole(ctx, id, name, strings.TrimSpace(description))
		return err
	})
	if err != nil {
		return Role{}, err
	}
	c.directory.Invalidate()
	return role, nil
}

// DeleteRole removes a role after cascading to its permission assignments and
// user memberships. Any user could have held the role, so the whole
// permission cache is flushed post-commit.
func (c *Coordinator) DeleteRole(ctx context.Context, roleID int64) error {
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.DeleteRolePermissionsByRole(ctx, roleID); err != nil {
			return err
		}
		if err := tx.DeleteUserRolesByRole(ctx, roleID); err != nil {
			return err
		}
		return tx.DeleteRole(ctx, roleID)
	})
	if err != nil {
		return err
	}
	return c.afterRoleMutation(ctx)
}

// AssignRolePermissions replaces the role's permission set.
func (c *Coordinator) AssignRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := c.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	permissionIDs = dedupeIDs(permissionIDs)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.DeleteRolePermissionsByRole(ctx, roleID); err != nil {
			return err
		}
		return tx.InsertRolePermissions(ctx, roleID, permissionIDs)
	})
	if err != nil {
		return err
	}
	return c.afterRoleMutation(ctx)
}

// CreatePermission inserts a new permission. Keys are unique; a duplicate
// perm_key surfaces as a conflict.
func (c *Coordinator) CreatePermission(ctx context.Context, key, name, module, description string) (Permission, error) {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		return Permission{}, fmt.Errorf("%w: permission key required", shared.ErrValidation)
	}
	var perm Permission
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		perm, err = tx.CreatePermission(ctx, key, strings.TrimSpace(name), strings.TrimSpace(module), strings.TrimSpace(description))
		return err
	})
	return perm, err
}

// DeletePermission removes a permission after detaching it from every role.
func (c *Coordinator) DeletePermission(ctx context.Context, permissionID int64) error {
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.DeleteRolePermissionsByPermission(ctx, permissionID); err != nil {
			return err
		}
		return tx.DeletePermission(ctx, permissionID)
	})
	if err != nil {
		return err
	}
	return c.afterRoleMutation(ctx)
}

// afterUserMutation runs the post-commit invalidations for a single-user
// change. The write is already committed; an eviction failure is surfaced so
// the caller knows reads may briefly serve stale data.
func (c *Coordinator) afterUserMutation(ctx context.Context, userID int64) error {
	c.directory.Invalidate()
	if err := c.perms.Invalidate(ctx, userID); err != nil {
		if c.logger != nil {
			c.logger.Error("post-commit permission eviction failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return fmt.Errorf("rbac: committed, but permission cache eviction failed: %w", err)
	}
	return nil
}

func (c *Coordinator) afterRoleMutation(ctx context.Context) error {
	c.directory.Invalidate()
	if err := c.perms.InvalidateAll(ctx); err != nil {
		if c.logger != nil {
			c.logger.Error("post-commit permission flush failed", slog.Any("error", err))
		}
		return fmt.Errorf("rbac: committed, but permission cache flush failed: %w", err)
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
