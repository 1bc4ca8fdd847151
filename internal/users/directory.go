package users

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taskforge/taskforge/internal/shared"
)

// DirectorySource loads the rows the directory snapshot is built from.
type DirectorySource interface {
	ListActiveUsers(ctx context.Context) ([]User, error)
	RoleNamesByUser(ctx context.Context, userIDs []int64) (map[int64][]string, error)
}

// Directory caches one materialized snapshot of the active-user list with
// role names folded in, and slices it in memory for pagination. The snapshot
// rebuilds when absent or older than the TTL; concurrent rebuilds collapse
// into one store round-trip via singleflight.
type Directory struct {
	source DirectorySource
	ttl    time.Duration

	mu         sync.RWMutex
	snapshot   []DirectoryUser
	fetchedAt  time.Time
	generation uint64

	group singleflight.Group
	now   func() time.Time
}

// NewDirectory constructs a Directory.
func NewDirectory(source DirectorySource, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Directory{source: source, ttl: ttl, now: time.Now}
}

// List returns one page of the directory and the total count. Pagination
// parameters are clamped: page >= 1, 1 <= pageSize <= 100.
func (d *Directory) List(ctx context.Context, page, pageSize int) ([]DirectoryUser, int, error) {
	page, pageSize = shared.ClampPage(page, pageSize)

	snapshot, err := d.current(ctx)
	if err != nil {
		return nil, 0, err
	}

	total := len(snapshot)
	start := (page - 1) * pageSize
	if start >= total {
		return []DirectoryUser{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	items := make([]DirectoryUser, end-start)
	copy(items, snapshot[start:end])
	return items, total, nil
}

// Invalidate forces the next List call to rebuild the snapshot. Advancing the
// generation makes any rebuild still in flight discard its result, and
// Forget detaches later callers from it: a rebuild that read the store before
// a mutation committed can never be repinned afterwards.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.fetchedAt = time.Time{}
	d.snapshot = nil
	d.generation++
	d.mu.Unlock()
	d.group.Forget("rebuild")
}

func (d *Directory) current(ctx context.Context) ([]DirectoryUser, error) {
	d.mu.RLock()
	snapshot, fetchedAt := d.snapshot, d.fetchedAt
	d.mu.RUnlock()
	if snapshot != nil && d.now().Sub(fetchedAt) < d.ttl {
		return snapshot, nil
	}

	result, err, _ := d.group.Do("rebuild", func() (any, error) {
		return d.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]DirectoryUser), nil
}

// rebuild materializes the snapshot: active users newest first, then one
// batched membership query for exactly the returned ids. The result is stored
// only when no invalidation happened since the rebuild started; either way it
// is returned, since callers that joined before the invalidation asked for
// the pre-mutation view.
func (d *Directory) rebuild(ctx context.Context) ([]DirectoryUser, error) {
	d.mu.RLock()
	generation := d.generation
	d.mu.RUnlock()

	activeUsers, err := d.source.ListActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(activeUsers))
	for i, u := range activeUsers {
		ids[i] = u.ID
	}
	roleNames, err := d.source.RoleNamesByUser(ctx, ids)
	if err != nil {
		return nil, err
	}

	snapshot := make([]DirectoryUser, len(activeUsers))
	for i, u := range activeUsers {
		names := roleNames[u.ID]
		entry := DirectoryUser{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			AllRoles:  names,
			CreatedAt: u.CreatedAt,
		}
		if len(names) > 0 {
			entry.PrimaryRole = names[0]
		}
		snapshot[i] = entry
	}

	d.mu.Lock()
	if d.generation == generation {
		d.snapshot = snapshot
		d.fetchedAt = d.now()
	}
	d.mu.Unlock()
	return snapshot, nil
}
