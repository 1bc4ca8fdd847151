package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskforge/taskforge/internal/platform/db"
	"github.com/taskforge/taskforge/internal/shared"
)

const permKeyPrefix = "rbac:perms:"

// PermissionSource loads the effective permission keys for a user from the
// relational store.
type PermissionSource interface {
	PermissionKeysForUser(ctx context.Context, userID int64) ([]string, error)
}

// Resolver computes and caches, per user, the set of permission keys granted
// through their role memberships. Cache entries live in Redis under a
// server-side TTL; they are a time-bounded view of the relational data, never
// an independent source of truth.
//
// Concurrent misses for the same user may recompute redundantly. That is
// accepted: the recomputation is a pure read and every racer stores the same
// value.
type Resolver struct {
	client         *redis.Client
	source         PermissionSource
	ttl            time.Duration
	acquireTimeout time.Duration
	logger         *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(client *redis.Client, source PermissionSource, ttl, acquireTimeout time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 10 * time.Second
	}
	return &Resolver{client: client, source: source, ttl: ttl, acquireTimeout: acquireTimeout, logger: logger}
}

// Resolve returns the user's effective permission keys. Cache hits within the
// TTL never touch the store; a user with zero roles resolves to an empty set.
// Store failures propagate, never silently collapsing to "no permissions".
func (r *Resolver) Resolve(ctx context.Context, userID int64) ([]string, error) {
	key := cacheKey(userID)
	payload, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var keys []string
		if err := json.Unmarshal(payload, &keys); err == nil {
			return keys, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		_ = r.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		return nil, fmt.Errorf("rbac: permission cache read: %w", err)
	}

	loadCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()
	keys, err := r.source.PermissionKeysForUser(loadCtx, userID)
	if err != nil {
		if db.IsTimeout(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: permission query", shared.ErrStoreTimeout)
		}
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}

	raw, err := json.Marshal(keys)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil && r.logger != nil {
		r.logger.Warn("permission cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	return keys, nil
}

// Invalidate unconditionally evicts the cached entry for a user. The next
// Resolve for that user is a guaranteed cache miss.
func (r *Resolver) Invalidate(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, cacheKey(userID)).Err()
}

// InvalidateAll evicts every cached permission set. Used after role or
// permission level mutations, where the affected user set is unbounded.
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, permKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Has reports whether the resolved set contains the permission key.
func Has(granted []string, perm string) bool {
	for _, g := range granted {
		if g == perm {
			return true
		}
	}
	return false
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("%s%d", permKeyPrefix, userID)
}
