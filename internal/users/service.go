package users

import "context"

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
}

// Service handles user read logic. Listing goes through the directory
// snapshot; point reads hit the store directly.
type Service struct {
	repo      RepositoryPort
	directory *Directory
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, directory *Directory) *Service {
	return &Service{repo: repo, directory: directory}
}

// List returns a page of the user directory.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]DirectoryUser, int, error) {
	return s.directory.List(ctx, page, pageSize)
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}
