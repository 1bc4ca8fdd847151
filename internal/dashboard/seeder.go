package dashboard

import (
	"context"
	"log/slog"
)

// SeedStore is the persistence port for the seeder. InsertSeeds and
// ReplaceSeeds are atomic: a failed call must leave the stored set untouched.
type SeedStore interface {
	SeedIDs(ctx context.Context, userID int64, kind Kind) ([]int64, error)
	CandidateIDs(ctx context.Context, userID int64, kind Kind, limit int) ([]int64, error)
	InsertSeeds(ctx context.Context, userID int64, kind Kind, ids []int64) error
	ReplaceSeeds(ctx context.Context, userID int64, kind Kind, ids []int64) error
}

// Seeder lazily materializes a fixed-size pinned set of a user's relevant
// tasks or logs on first dashboard access. Once seeded the set is not a live
// query: it stays pinned until an explicit reseed, even when the underlying
// entities drop off the user's real priority list.
type Seeder struct {
	store  SeedStore
	limit  int
	logger *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(store SeedStore, limit int, logger *slog.Logger) *Seeder {
	if limit <= 0 {
		limit = DefaultSeedLimit
	}
	return &Seeder{store: store, limit: limit, logger: logger}
}

// EnsureSeeded returns the pinned identifiers for the user and kind, seeding
// them on first access. A non-empty existing seed makes this a no-op.
func (s *Seeder) EnsureSeeded(ctx context.Context, userID int64, kind Kind) ([]int64, error) {
	ids, err := s.store.SeedIDs(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return ids, nil
	}

	candidates, err := s.store.CandidateIDs(ctx, userID, kind, s.limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []int64{}, nil
	}
	if err := s.store.InsertSeeds(ctx, userID, kind, candidates); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("dashboard seeded",
			slog.Int64("user_id", userID),
			slog.String("kind", string(kind)),
			slog.Int("count", len(candidates)))
	}
	return candidates, nil
}

// Reseed swaps the pinned set for a freshly computed one in a single atomic
// store operation, so no reader can observe the set half-replaced.
func (s *Seeder) Reseed(ctx context.Context, userID int64, kind Kind) ([]int64, error) {
	candidates, err := s.store.CandidateIDs(ctx, userID, kind, s.limit)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceSeeds(ctx, userID, kind, candidates); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("dashboard reseeded",
			slog.Int64("user_id", userID),
			slog.String("kind", string(kind)),
			slog.Int("count", len(candidates)))
	}
	if candidates == nil {
		candidates = []int64{}
	}
	return candidates, nil
}
