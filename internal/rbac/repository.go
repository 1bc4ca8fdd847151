package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge/taskforge/internal/platform/db"
	"github.com/taskforge/taskforge/internal/shared"
)

// errTaskRefsNotNullable is returned by DetachUserFromTasks when the schema
// variant carries NOT NULL task references, so orphaning by nulling is
// impossible and the caller must delete the rows instead.
var errTaskRefsNotNullable = errors.New("rbac: task references not nullable")

// Store is the persistence port for the rbac package.
type Store interface {
	PermissionKeysForUser(ctx context.Context, userID int64) ([]string, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes the write operations available inside one transaction.
type TxStore interface {
	CreateUser(ctx context.Context, params CreateUserParams) (int64, error)
	UpdateUser(ctx context.Context, id int64, fields map[string]any) error
	DeleteUserRoles(ctx context.Context, userID int64) error
	InsertUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	DeleteAuthoredLogs(ctx context.Context, userID int64) error
	DetachUserFromTasks(ctx context.Context, userID int64) error
	DeleteUserTasks(ctx context.Context, userID int64) error
	DeleteDashboardSeeds(ctx context.Context, userID int64) error
	DeleteUser(ctx context.Context, userID int64) error

	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRolePermissionsByRole(ctx context.Context, roleID int64) error
	DeleteUserRolesByRole(ctx context.Context, roleID int64) error
	DeleteRole(ctx context.Context, roleID int64) error
	InsertRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	CreatePermission(ctx context.Context, key, name, module, description string) (Permission, error)
	DeleteRolePermissionsByPermission(ctx context.Context, permissionID int64) error
	DeletePermission(ctx context.Context, permissionID int64) error
}

// PGStore implements Store over PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// PermissionKeysForUser returns the deduplicated permission keys granted to a
// user through every role currently assigned to them.
func (s *PGStore) PermissionKeysForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT p.perm_key
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY p.perm_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListRoles returns all roles ordered by id.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// GetRole fetches a role by ID.
func (s *PGStore) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// ListPermissions returns all permissions ordered by module then key.
func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, perm_key, name, module, description FROM permissions ORDER BY module, perm_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// RolePermissions returns the permissions attached to a role.
func (s *PGStore) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.perm_key, p.name, p.module, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// UserRoles returns the roles assigned to a user ordered by role id.
func (s *PGStore) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// UserExists reports whether a user row exists.
func (s *PGStore) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// WithTx runs fn against a transactional view of the store.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

type txStore struct {
	tx pgx.Tx
}

// CreateUser inserts a user row and returns its id.
func (t *txStore) CreateUser(ctx context.Context, params CreateUserParams) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id`,
		params.Email, params.Name, params.PasswordHash, params.IsActive,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, shared.ErrDuplicate
	}
	return id, err
}

// userUpdateColumns is the allow-list for dynamic SET construction. Field
// names supplied by callers never reach the SQL text; only columns listed
// here do.
var userUpdateColumns = map[string]struct{}{
	"email":         {},
	"name":          {},
	"password_hash": {},
	"is_active":     {},
}

// UpdateUser builds its SET clause from only the supplied fields.
func (t *txStore) UpdateUser(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return shared.ErrValidation
	}

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	argPos := 1
	for _, column := range []string{"email", "name", "password_hash", "is_active"} {
		value, ok := fields[column]
		if !ok {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if len(setClauses) != len(fields) {
		for column := range fields {
			if _, ok := userUpdateColumns[column]; !ok {
				return fmt.Errorf("%w: unknown column %q", shared.ErrValidation, column)
			}
		}
	}
	setClauses = append(setClauses, "updated_at = now()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argPos)
	tag, err := t.tx.Exec(ctx, query, args...)
	if db.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txStore) DeleteUserRoles(ctx context.Context, userID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	return err
}

// InsertUserRoles inserts one row per role id. Duplicate ids in the input are
// collapsed by the caller; ON CONFLICT guards against races anyway.
func (t *txStore) InsertUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	for _, roleID := range roleIDs {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
			}
			return err
		}
	}
	return nil
}

func (t *txStore) DeleteAuthoredLogs(ctx context.Context, userID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM logs WHERE author_id = $1`, userID)
	return err
}

// DetachUserFromTasks nulls the creator/assignee references on tasks pointing
// at the user. Schema variants with NOT NULL references surface
// errTaskRefsNotNullable so the caller can fall back to deleting the rows.
//
// The UPDATE runs inside a savepoint: a not-null violation aborts only the
// savepoint, so the enclosing transaction stays usable for the fallback and
// the remaining cascade statements.
func (t *txStore) DetachUserFromTasks(ctx context.Context, userID int64) error {
	inner, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	_, err = inner.Exec(ctx, `
		UPDATE tasks
		SET created_by = CASE WHEN created_by = $1 THEN NULL ELSE created_by END,
		    assignee_id = CASE WHEN assignee_id = $1 THEN NULL ELSE assignee_id END
		WHERE created_by = $1 OR assignee_id = $1`, userID)
	if err != nil {
		_ = inner.Rollback(ctx)
		if db.IsNotNullViolation(err) {
			return errTaskRefsNotNullable
		}
		return err
	}
	return inner.Commit(ctx)
}

func (t *txStore) DeleteUserTasks(ctx context.Context, userID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM tasks WHERE created_by = $1 OR assignee_id = $1`, userID)
	return err
}

func (t *txStore) DeleteDashboardSeeds(ctx context.Context, userID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM user_dashboard_tasks WHERE user_id = $1`, userID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM user_dashboard_logs WHERE user_id = $1`, userID)
	return err
}

func (t *txStore) DeleteUser(ctx context.Context, userID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txStore) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := t.tx.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id, name, description, created_at, updated_at`,
		name, description,
	).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Role{}, shared.ErrDuplicate
	}
	return role, err
}

func (t *txStore) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := t.tx.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at`,
		id, name, description,
	).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if db.IsUniqueViolation(err) {
		return Role{}, shared.ErrDuplicate
	}
	return role, err
}

func (t *txStore) DeleteRolePermissionsByRole(ctx context.Context, roleID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	return err
}

func (t *txStore) DeleteUserRolesByRole(ctx context.Context, roleID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID)
	return err
}

func (t *txStore) DeleteRole(ctx context.Context, roleID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txStore) InsertRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	for _, permissionID := range permissionIDs {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: permission %d", shared.ErrNotFound, permissionID)
			}
			return err
		}
	}
	return nil
}

func (t *txStore) CreatePermission(ctx context.Context, key, name, module, description string) (Permission, error) {
	var perm Permission
	err := t.tx.QueryRow(ctx, `
		INSERT INTO permissions (perm_key, name, module, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, perm_key, name, module, description`,
		key, name, module, description,
	).Scan(&perm.ID, &perm.Key, &perm.Name, &perm.Module, &perm.Description)
	if db.IsUniqueViolation(err) {
		return Permission{}, shared.ErrDuplicate
	}
	return perm, err
}

func (t *txStore) DeleteRolePermissionsByPermission(ctx context.Context, permissionID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, permissionID)
	return err
}

func (t *txStore) DeletePermission(ctx context.Context, permissionID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Key, &perm.Name, &perm.Module, &perm.Description); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}
