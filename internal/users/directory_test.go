package users

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSource struct {
	mu       sync.Mutex
	users    []User
	roles    map[int64][]string
	rebuilds int
	queried  [][]int64
	err      error
}

func (s *countingSource) ListActiveUsers(context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.rebuilds++
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out, nil
}

func (s *countingSource) RoleNamesByUser(_ context.Context, userIDs []int64) (map[int64][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queried = append(s.queried, userIDs)
	return s.roles, nil
}

func (s *countingSource) rebuildCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuilds
}

func newDirectoryFixture(n int) *countingSource {
	users := make([]User, n)
	for i := range users {
		id := int64(n - i)
		users[i] = User{ID: id, Email: "u@example.com", Name: "U", IsActive: true}
	}
	return &countingSource{
		users: users,
		roles: map[int64][]string{1: {"engineer", "reviewer"}},
	}
}

func TestDirectoryListServesFromSnapshotWithinTTL(t *testing.T) {
	source := newDirectoryFixture(5)
	directory := NewDirectory(source, time.Minute)
	ctx := context.Background()

	first, total, err := directory.List(ctx, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, first, 5)

	_, _, err = directory.List(ctx, 1, 20)
	require.NoError(t, err)
	_, _, err = directory.List(ctx, 2, 2)
	require.NoError(t, err)

	require.Equal(t, 1, source.rebuildCount(), "repeated listings within the TTL must not hit the store")
}

func TestDirectoryRebuildsAfterTTLExpiry(t *testing.T) {
	source := newDirectoryFixture(3)
	directory := NewDirectory(source, time.Minute)
	current := time.Now()
	directory.now = func() time.Time { return current }
	ctx := context.Background()

	_, _, err := directory.List(ctx, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 1, source.rebuildCount())

	current = current.Add(61 * time.Second)
	_, _, err = directory.List(ctx, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 2, source.rebuildCount())
}

func TestDirectoryInvalidateForcesRebuild(t *testing.T) {
	source := newDirectoryFixture(3)
	directory := NewDirectory(source, time.Minute)
	ctx := context.Background()

	_, _, err := directory.List(ctx, 1, 20)
	require.NoError(t, err)

	directory.Invalidate()

	_, _, err = directory.List(ctx, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 2, source.rebuildCount())
}

func TestDirectoryPaginationSlicing(t *testing.T) {
	source := newDirectoryFixture(45)
	directory := NewDirectory(source, time.Minute)
	ctx := context.Background()

	page, total, err := directory.List(ctx, 3, 20)
	require.NoError(t, err)
	require.Equal(t, 45, total)
	require.Len(t, page, 5, "last page holds the remainder")

	beyond, total, err := directory.List(ctx, 9, 20)
	require.NoError(t, err)
	require.Equal(t, 45, total)
	require.Empty(t, beyond)
	require.NotNil(t, beyond, "a page past the end is empty, not nil")
}

func TestDirectoryClampsPaginationParameters(t *testing.T) {
	source := newDirectoryFixture(45)
	directory := NewDirectory(source, time.Minute)
	ctx := context.Background()

	// page 0 clamps to 1, pageSize 0 clamps to the default of 20.
	page, _, err := directory.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 20)

	// Oversized pageSize clamps to 100.
	page, _, err = directory.List(ctx, 1, 500)
	require.NoError(t, err)
	require.Len(t, page, 45)

	// Negative page clamps to 1.
	page, _, err = directory.List(ctx, -3, 10)
	require.NoError(t, err)
	require.Len(t, page, 10)
	require.Equal(t, int64(45), page[0].ID)
}

func TestDirectoryEmptySnapshotIsNotAnError(t *testing.T) {
	source := &countingSource{roles: map[int64][]string{}}
	directory := NewDirectory(source, time.Minute)

	page, total, err := directory.List(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, page)
}

func TestDirectoryPrimaryRoleIsFirstAssigned(t *testing.T) {
	source := newDirectoryFixture(2)
	directory := NewDirectory(source, time.Minute)

	page, _, err := directory.List(context.Background(), 1, 20)
	require.NoError(t, err)

	var withRoles, withoutRoles DirectoryUser
	for _, entry := range page {
		if entry.ID == 1 {
			withRoles = entry
		} else {
			withoutRoles = entry
		}
	}
	require.Equal(t, "engineer", withRoles.PrimaryRole)
	require.Equal(t, []string{"engineer", "reviewer"}, withRoles.AllRoles)
	require.Empty(t, withoutRoles.PrimaryRole)
	require.Empty(t, withoutRoles.AllRoles)
}

func TestDirectoryBatchesMembershipLookup(t *testing.T) {
	source := newDirectoryFixture(4)
	directory := NewDirectory(source, time.Minute)

	_, _, err := directory.List(context.Background(), 1, 20)
	require.NoError(t, err)

	require.Len(t, source.queried, 1, "one batched membership query per rebuild")
	require.Equal(t, []int64{4, 3, 2, 1}, source.queried[0])
}

func TestDirectorySourceErrorPropagates(t *testing.T) {
	boom := errors.New("pool exhausted")
	source := &countingSource{err: boom}
	directory := NewDirectory(source, time.Minute)

	_, _, err := directory.List(context.Background(), 1, 20)
	require.ErrorIs(t, err, boom)
}

// gatedSource blocks its first listing until released, so a test can commit
// a mutation and invalidate while a rebuild is mid-flight.
type gatedSource struct {
	mu      sync.Mutex
	users   []User
	calls   int
	started chan struct{}
	release chan struct{}
}

func (s *gatedSource) ListActiveUsers(context.Context) ([]User, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	users := append([]User(nil), s.users...)
	s.mu.Unlock()
	if first {
		close(s.started)
		<-s.release
	}
	return users, nil
}

func (s *gatedSource) RoleNamesByUser(context.Context, []int64) (map[int64][]string, error) {
	return map[int64][]string{}, nil
}

func TestDirectoryInvalidateDiscardsInFlightRebuild(t *testing.T) {
	source := &gatedSource{
		users:   []User{{ID: 1, Email: "old@example.com", IsActive: true}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	directory := NewDirectory(source, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = directory.List(context.Background(), 1, 20)
	}()

	// The rebuild has read the pre-mutation rows and is blocked. Commit the
	// mutation and invalidate before letting it finish.
	<-source.started
	source.mu.Lock()
	source.users = []User{{ID: 2, Email: "new@example.com", IsActive: true}}
	source.mu.Unlock()
	directory.Invalidate()
	close(source.release)
	<-done

	page, _, err := directory.List(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, int64(2), page[0].ID, "a listing after invalidation must never serve the pre-mutation snapshot")
}

func TestDirectoryConcurrentRebuildsCollapse(t *testing.T) {
	source := newDirectoryFixture(3)
	directory := NewDirectory(source, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := directory.List(context.Background(), 1, 20)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, source.rebuildCount(), 2, "concurrent cold reads must collapse into at most a couple of rebuilds")
}
