package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskforge/taskforge/internal/shared"
)

const tokenKeyPrefix = "auth:token:"

type tokenRecord struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// Service wraps credential verification and opaque bearer token issuance.
// Hashing and token mechanics stay behind this boundary; the rest of the
// application only sees a verified principal.
type Service struct {
	repo     Repository
	client   *redis.Client
	tokenTTL time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, client *redis.Client, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Service{repo: repo, client: client, tokenTTL: tokenTTL}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Hash returns the bcrypt hash of a plaintext password.
func (s *Service) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IssueToken mints an opaque bearer token for the user.
func (s *Service) IssueToken(ctx context.Context, user *User) (string, error) {
	token := uuid.NewString()
	raw, err := json.Marshal(tokenRecord{UserID: user.ID, Email: user.Email})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+token, raw, s.tokenTTL).Err(); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return token, nil
}

// LookupToken resolves a bearer token to a principal.
func (s *Service) LookupToken(ctx context.Context, token string) (*shared.Principal, error) {
	raw, err := s.client.Get(ctx, tokenKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, shared.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("auth: lookup token: %w", err)
	}
	var record tokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, shared.ErrUnauthorized
	}
	return &shared.Principal{UserID: record.UserID, Email: record.Email}, nil
}

// RevokeToken deletes a bearer token.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenKeyPrefix+token).Err()
}
