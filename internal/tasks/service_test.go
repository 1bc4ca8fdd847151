package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskforge/taskforge/internal/shared"
)

type fakeTaskRepo struct {
	created []Task
	updated map[int64]Task
	byID    map[int64]Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{updated: map[int64]Task{}, byID: map[int64]Task{}}
}

func (r *fakeTaskRepo) List(context.Context, ListFilters) ([]Task, int, error) {
	return nil, 0, nil
}

func (r *fakeTaskRepo) Get(_ context.Context, id int64) (Task, error) {
	task, ok := r.byID[id]
	if !ok {
		return Task{}, shared.ErrNotFound
	}
	return task, nil
}

func (r *fakeTaskRepo) Create(_ context.Context, task Task) (Task, error) {
	task.ID = int64(len(r.created) + 1)
	r.created = append(r.created, task)
	return task, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, id int64, task Task) error {
	if _, ok := r.byID[id]; !ok {
		return shared.ErrNotFound
	}
	r.updated[id] = task
	return nil
}

func (r *fakeTaskRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.byID[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func TestCreateDefaultsStatusToOpen(t *testing.T) {
	repo := newFakeTaskRepo()
	svc := NewService(repo)

	task, err := svc.Create(context.Background(), Task{Title: "Ship release"})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, task.Status)
}

func TestCreateRejectsBlankTitle(t *testing.T) {
	svc := NewService(newFakeTaskRepo())

	_, err := svc.Create(context.Background(), Task{Title: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsUnknownStatus(t *testing.T) {
	svc := NewService(newFakeTaskRepo())

	_, err := svc.Create(context.Background(), Task{Title: "Ship release", Status: "paused"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateValidatesBeforeWrite(t *testing.T) {
	repo := newFakeTaskRepo()
	repo.byID[1] = Task{ID: 1, Title: "Ship release", Status: StatusOpen}
	svc := NewService(repo)

	err := svc.Update(context.Background(), 1, Task{Title: "", Status: StatusOpen})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.updated)

	err = svc.Update(context.Background(), 1, Task{Title: "Ship release", Status: StatusDone})
	require.NoError(t, err)
	require.Equal(t, StatusDone, repo.updated[1].Status)
}

func TestUpdateMissingTask(t *testing.T) {
	svc := NewService(newFakeTaskRepo())

	err := svc.Update(context.Background(), 42, Task{Title: "Ship release", Status: StatusOpen})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusDone.Terminal())
	require.True(t, StatusArchived.Terminal())
	require.False(t, StatusOpen.Terminal())
	require.False(t, StatusInProgress.Terminal())
}
