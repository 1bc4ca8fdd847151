package rbac

import "context"

// Service exposes the read side of the RBAC model.
type Service struct {
	store Store
}

// NewService builds Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListRoles returns all roles ordered by id.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// ListPermissions returns all permissions ordered by module then key.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// RolePermissions returns the permissions attached to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.RolePermissions(ctx, roleID)
}

// UserRoles returns the roles assigned to a user.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.store.UserRoles(ctx, userID)
}
