package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskforge/taskforge/internal/shared"
)

var (
	errInjected  = errors.New("injected failure")
	errTxAborted = errors.New("current transaction is aborted")
)

type memUser struct {
	id           int64
	email        string
	name         string
	passwordHash string
	active       bool
}

type memTask struct {
	id         int64
	createdBy  *int64
	assigneeID *int64
}

type memState struct {
	users        map[int64]memUser
	userRoles    map[int64]map[int64]struct{}
	roles        map[int64]Role
	rolePerms    map[int64]map[int64]struct{}
	perms        map[int64]Permission
	logsByAuthor map[int64]int
	tasks        map[int64]memTask
	seedRows     map[int64]int
	nextID       int64
}

func (s *memState) clone() *memState {
	out := &memState{
		users:        make(map[int64]memUser, len(s.users)),
		userRoles:    make(map[int64]map[int64]struct{}, len(s.userRoles)),
		roles:        make(map[int64]Role, len(s.roles)),
		rolePerms:    make(map[int64]map[int64]struct{}, len(s.rolePerms)),
		perms:        make(map[int64]Permission, len(s.perms)),
		logsByAuthor: make(map[int64]int, len(s.logsByAuthor)),
		tasks:        make(map[int64]memTask, len(s.tasks)),
		seedRows:     make(map[int64]int, len(s.seedRows)),
		nextID:       s.nextID,
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, set := range s.userRoles {
		cp := make(map[int64]struct{}, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		out.userRoles[k] = cp
	}
	for k, v := range s.roles {
		out.roles[k] = v
	}
	for k, set := range s.rolePerms {
		cp := make(map[int64]struct{}, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		out.rolePerms[k] = cp
	}
	for k, v := range s.perms {
		out.perms[k] = v
	}
	for k, v := range s.logsByAuthor {
		out.logsByAuthor[k] = v
	}
	for k, v := range s.tasks {
		out.tasks[k] = v
	}
	for k, v := range s.seedRows {
		out.seedRows[k] = v
	}
	return out
}

// memoryStore implements Store with copy-on-write transactions: WithTx hands
// fn a clone of the state and only swaps it in on success, so a failed
// transaction leaves everything exactly as before.
type memoryStore struct {
	state               *memState
	taskRefsNotNullable bool
	failOn              string
	events              []string
}

func newMemoryStore() *memoryStore {
	two := int64(2)
	three := int64(3)
	return &memoryStore{
		state: &memState{
			users: map[int64]memUser{
				1: {id: 1, email: "admin@example.com", name: "Admin", active: true},
				2: {id: 2, email: "dev@example.com", name: "Dev", active: true},
				3: {id: 3, email: "qa@example.com", name: "QA", active: true},
			},
			userRoles: map[int64]map[int64]struct{}{
				2: {10: {}},
			},
			roles: map[int64]Role{
				10: {ID: 10, Name: "engineer"},
				11: {ID: 11, Name: "reviewer"},
			},
			rolePerms: map[int64]map[int64]struct{}{
				10: {5: {}},
			},
			perms: map[int64]Permission{
				5: {ID: 5, Key: "task:create", Module: "task"},
				9: {ID: 9, Key: "task:delete", Module: "task"},
			},
			logsByAuthor: map[int64]int{2: 3},
			tasks: map[int64]memTask{
				100: {id: 100, createdBy: &two},
				101: {id: 101, assigneeID: &two},
				102: {id: 102, createdBy: &three},
			},
			seedRows: map[int64]int{2: 4},
			nextID:   1000,
		},
	}
}

func (s *memoryStore) record(event string) {
	s.events = append(s.events, event)
}

func (s *memoryStore) eventIndex(event string) int {
	for i, e := range s.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (s *memoryStore) PermissionKeysForUser(_ context.Context, userID int64) ([]string, error) {
	seen := map[string]struct{}{}
	for roleID := range s.state.userRoles[userID] {
		for permID := range s.state.rolePerms[roleID] {
			seen[s.state.perms[permID].Key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) ListRoles(context.Context) ([]Role, error) {
	roles := make([]Role, 0, len(s.state.roles))
	for _, r := range s.state.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (s *memoryStore) GetRole(_ context.Context, id int64) (Role, error) {
	role, ok := s.state.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *memoryStore) ListPermissions(context.Context) ([]Permission, error) {
	perms := make([]Permission, 0, len(s.state.perms))
	for _, p := range s.state.perms {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

func (s *memoryStore) RolePermissions(_ context.Context, roleID int64) ([]Permission, error) {
	perms := []Permission{}
	for permID := range s.state.rolePerms[roleID] {
		perms = append(perms, s.state.perms[permID])
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

func (s *memoryStore) UserRoles(_ context.Context, userID int64) ([]Role, error) {
	roles := []Role{}
	for roleID := range s.state.userRoles[userID] {
		roles = append(roles, s.state.roles[roleID])
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (s *memoryStore) UserExists(_ context.Context, id int64) (bool, error) {
	_, ok := s.state.users[id]
	return ok, nil
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	work := s.state.clone()
	if err := fn(ctx, &memoryTx{store: s, state: work}); err != nil {
		return err
	}
	s.state = work
	s.record("commit")
	return nil
}

// memoryTx mimics a real session: once a statement fails, every later
// statement on the same transaction fails too, the way Postgres rejects
// statements after an error until rollback.
type memoryTx struct {
	store   *memoryStore
	state   *memState
	aborted bool
}

func (t *memoryTx) step(name string) error {
	t.store.record("tx:" + name)
	if t.aborted {
		return errTxAborted
	}
	if t.store.failOn == name {
		t.aborted = true
		return errInjected
	}
	return nil
}

func (t *memoryTx) CreateUser(_ context.Context, params CreateUserParams) (int64, error) {
	if err := t.step("CreateUser"); err != nil {
		return 0, err
	}
	for _, u := range t.state.users {
		if u.email == params.Email {
			return 0, shared.ErrDuplicate
		}
	}
	t.state.nextID++
	id := t.state.nextID
	t.state.users[id] = memUser{id: id, email: params.Email, name: params.Name, passwordHash: params.PasswordHash, active: params.IsActive}
	return id, nil
}

func (t *memoryTx) UpdateUser(_ context.Context, id int64, fields map[string]any) error {
	if err := t.step("UpdateUser"); err != nil {
		return err
	}
	if len(fields) == 0 {
		return shared.ErrValidation
	}
	user, ok := t.state.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	for column, value := range fields {
		switch column {
		case "email":
			user.email = value.(string)
		case "name":
			user.name = value.(string)
		case "password_hash":
			user.passwordHash = value.(string)
		case "is_active":
			user.active = value.(bool)
		default:
			return fmt.Errorf("%w: unknown column %q", shared.ErrValidation, column)
		}
	}
	t.state.users[id] = user
	return nil
}

func (t *memoryTx) DeleteUserRoles(_ context.Context, userID int64) error {
	if err := t.step("DeleteUserRoles"); err != nil {
		return err
	}
	delete(t.state.userRoles, userID)
	return nil
}

func (t *memoryTx) InsertUserRoles(_ context.Context, userID int64, roleIDs []int64) error {
	if err := t.step("InsertUserRoles"); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, ok := t.state.roles[roleID]; !ok {
			return fmt.Errorf("%w: role %d", shared.ErrNotFound, roleID)
		}
		set, ok := t.state.userRoles[userID]
		if !ok {
			set = map[int64]struct{}{}
			t.state.userRoles[userID] = set
		}
		set[roleID] = struct{}{}
	}
	return nil
}

func (t *memoryTx) DeleteAuthoredLogs(_ context.Context, userID int64) error {
	if err := t.step("DeleteAuthoredLogs"); err != nil {
		return err
	}
	delete(t.state.logsByAuthor, userID)
	return nil
}

func (t *memoryTx) DetachUserFromTasks(_ context.Context, userID int64) error {
	if err := t.step("DetachUserFromTasks"); err != nil {
		return err
	}
	if t.store.taskRefsNotNullable {
		// The real store runs the nulling UPDATE inside a savepoint, so
		// the violation does not abort the enclosing transaction.
		return errTaskRefsNotNullable
	}
	for id, task := range t.state.tasks {
		if task.createdBy != nil && *task.createdBy == userID {
			task.createdBy = nil
		}
		if task.assigneeID != nil && *task.assigneeID == userID {
			task.assigneeID = nil
		}
		t.state.tasks[id] = task
	}
	return nil
}

func (t *memoryTx) DeleteUserTasks(_ context.Context, userID int64) error {
	if err := t.step("DeleteUserTasks"); err != nil {
		return err
	}
	for id, task := range t.state.tasks {
		if (task.createdBy != nil && *task.createdBy == userID) || (task.assigneeID != nil && *task.assigneeID == userID) {
			delete(t.state.tasks, id)
		}
	}
	return nil
}

func (t *memoryTx) DeleteDashboardSeeds(_ context.Context, userID int64) error {
	if err := t.step("DeleteDashboardSeeds"); err != nil {
		return err
	}
	delete(t.state.seedRows, userID)
	return nil
}

func (t *memoryTx) DeleteUser(_ context.Context, userID int64) error {
	if err := t.step("DeleteUser"); err != nil {
		return err
	}
	if _, ok := t.state.users[userID]; !ok {
		return shared.ErrNotFound
	}
	delete(t.state.users, userID)
	return nil
}

func (t *memoryTx) CreateRole(_ context.Context, name, description string) (Role, error) {
	if err := t.step("CreateRole"); err != nil {
		return Role{}, err
	}
	t.state.nextID++
	role := Role{ID: t.state.nextID, Name: name, Description: description}
	t.state.roles[role.ID] = role
	return role, nil
}

func (t *memoryTx) UpdateRole(_ context.Context, id int64, name, description string) (Role, error) {
	if err := t.step("UpdateRole"); err != nil {
		return Role{}, err
	}
	role, ok := t.state.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.Name, role.Description = name, description
	t.state.roles[id] = role
	return role, nil
}

func (t *memoryTx) DeleteRolePermissionsByRole(_ context.Context, roleID int64) error {
	if err := t.step("DeleteRolePermissionsByRole"); err != nil {
		return err
	}
	delete(t.state.rolePerms, roleID)
	return nil
}

func (t *memoryTx) DeleteUserRolesByRole(_ context.Context, roleID int64) error {
	if err := t.step("DeleteUserRolesByRole"); err != nil {
		return err
	}
	for userID, set := range t.state.userRoles {
		delete(set, roleID)
		if len(set) == 0 {
			delete(t.state.userRoles, userID)
		}
	}
	return nil
}

func (t *memoryTx) DeleteRole(_ context.Context, roleID int64) error {
	if err := t.step("DeleteRole"); err != nil {
		return err
	}
	if _, ok := t.state.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	delete(t.state.roles, roleID)
	return nil
}

func (t *memoryTx) InsertRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	if err := t.step("InsertRolePermissions"); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if _, ok := t.state.perms[permID]; !ok {
			return fmt.Errorf("%w: permission %d", shared.ErrNotFound, permID)
		}
		set, ok := t.state.rolePerms[roleID]
		if !ok {
			set = map[int64]struct{}{}
			t.state.rolePerms[roleID] = set
		}
		set[permID] = struct{}{}
	}
	return nil
}

func (t *memoryTx) CreatePermission(_ context.Context, key, name, module, description string) (Permission, error) {
	if err := t.step("CreatePermission"); err != nil {
		return Permission{}, err
	}
	for _, p := range t.state.perms {
		if p.Key == key {
			return Permission{}, shared.ErrDuplicate
		}
	}
	t.state.nextID++
	perm := Permission{ID: t.state.nextID, Key: key, Name: name, Module: module, Description: description}
	t.state.perms[perm.ID] = perm
	return perm, nil
}

func (t *memoryTx) DeleteRolePermissionsByPermission(_ context.Context, permissionID int64) error {
	if err := t.step("DeleteRolePermissionsByPermission"); err != nil {
		return err
	}
	for roleID, set := range t.state.rolePerms {
		delete(set, permissionID)
		if len(set) == 0 {
			delete(t.state.rolePerms, roleID)
		}
	}
	return nil
}

func (t *memoryTx) DeletePermission(_ context.Context, permissionID int64) error {
	if err := t.step("DeletePermission"); err != nil {
		return err
	}
	if _, ok := t.state.perms[permissionID]; !ok {
		return shared.ErrNotFound
	}
	delete(t.state.perms, permissionID)
	return nil
}

type recordingPerms struct {
	store *memoryStore
}

func (r recordingPerms) Invalidate(_ context.Context, userID int64) error {
	r.store.record(fmt.Sprintf("invalidate:perms:%d", userID))
	return nil
}

func (r recordingPerms) InvalidateAll(context.Context) error {
	r.store.record("invalidate:perms:all")
	return nil
}

type recordingDirectory struct {
	store *memoryStore
}

func (r recordingDirectory) Invalidate() {
	r.store.record("invalidate:directory")
}

func newTestCoordinator(store *memoryStore) *Coordinator {
	return NewCoordinator(store, recordingPerms{store: store}, recordingDirectory{store: store}, nil)
}

func assignedRoles(t *testing.T, store *memoryStore, userID int64) []int64 {
	t.Helper()
	roles, err := store.UserRoles(context.Background(), userID)
	require.NoError(t, err)
	ids := make([]int64, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	return ids
}

func TestAssignUserRolesReplaceAll(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	require.NoError(t, coordinator.AssignUserRoles(ctx, 2, []int64{10, 11}))
	require.Equal(t, []int64{10, 11}, assignedRoles(t, store, 2))

	require.NoError(t, coordinator.AssignUserRoles(ctx, 2, []int64{11}))
	require.Equal(t, []int64{11}, assignedRoles(t, store, 2), "replaced set must hold exactly the new roles")
}

func TestAssignUserRolesDedupesInput(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	require.NoError(t, coordinator.AssignUserRoles(context.Background(), 3, []int64{11, 11, 10, 11}))
	require.Equal(t, []int64{10, 11}, assignedRoles(t, store, 3))
}

func TestAssignUserRolesEmptyClearsAll(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	require.NoError(t, coordinator.AssignUserRoles(context.Background(), 2, []int64{}))
	require.Empty(t, assignedRoles(t, store, 2))

	keys, err := store.PermissionKeysForUser(context.Background(), 2)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestAssignUserRolesUnknownUser(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	err := coordinator.AssignUserRoles(context.Background(), 999, []int64{10})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, store.events, "failed precondition must not open a transaction")
}

func TestAssignUserRolesInvalidatesAfterCommit(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	require.NoError(t, coordinator.AssignUserRoles(context.Background(), 2, []int64{11}))

	commit := store.eventIndex("commit")
	evict := store.eventIndex("invalidate:perms:2")
	directory := store.eventIndex("invalidate:directory")
	require.GreaterOrEqual(t, commit, 0)
	require.Greater(t, evict, commit, "permission eviction must follow commit")
	require.Greater(t, directory, commit, "directory invalidation must follow commit")
}

func TestDeleteUserCascades(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	require.NoError(t, coordinator.DeleteUser(context.Background(), 2, 1))

	require.NotContains(t, store.state.users, int64(2))
	require.NotContains(t, store.state.userRoles, int64(2))
	require.NotContains(t, store.state.logsByAuthor, int64(2))
	require.NotContains(t, store.state.seedRows, int64(2))
	for _, task := range store.state.tasks {
		if task.createdBy != nil {
			require.NotEqual(t, int64(2), *task.createdBy)
		}
		if task.assigneeID != nil {
			require.NotEqual(t, int64(2), *task.assigneeID)
		}
	}
	// Tasks referencing other users survive nulling.
	require.Contains(t, store.state.tasks, int64(102))
}

func TestDeleteUserFallsBackToTaskDeletion(t *testing.T) {
	store := newMemoryStore()
	store.taskRefsNotNullable = true
	coordinator := newTestCoordinator(store)

	require.NoError(t, coordinator.DeleteUser(context.Background(), 2, 1))

	require.NotContains(t, store.state.tasks, int64(100))
	require.NotContains(t, store.state.tasks, int64(101))
	require.Contains(t, store.state.tasks, int64(102), "unrelated tasks must survive the fallback")

	// The contained violation must not poison the transaction: every
	// statement after the failed detach still runs and the cascade commits.
	detach := store.eventIndex("tx:DetachUserFromTasks")
	fallback := store.eventIndex("tx:DeleteUserTasks")
	seeds := store.eventIndex("tx:DeleteDashboardSeeds")
	userRow := store.eventIndex("tx:DeleteUser")
	commit := store.eventIndex("commit")
	require.Greater(t, fallback, detach)
	require.Greater(t, seeds, fallback)
	require.Greater(t, userRow, seeds)
	require.Greater(t, commit, userRow)
	require.NotContains(t, store.state.users, int64(2))
}

func TestDeleteUserSelfRejected(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	err := coordinator.DeleteUser(context.Background(), 1, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, store.events, "self-delete is rejected before the transaction starts")
	require.Contains(t, store.state.users, int64(1))
}

func TestDeleteUserRollsBackOnMidTransactionFailure(t *testing.T) {
	store := newMemoryStore()
	store.failOn = "DeleteAuthoredLogs"
	coordinator := newTestCoordinator(store)

	err := coordinator.DeleteUser(context.Background(), 2, 1)
	require.ErrorIs(t, err, errInjected)

	// Everything rolled back: user roles already deleted in the failed
	// transaction are back, logs and the user row are untouched.
	require.Equal(t, []int64{10}, assignedRoles(t, store, 2))
	require.Equal(t, 3, store.state.logsByAuthor[2])
	require.Contains(t, store.state.users, int64(2))
	require.Equal(t, -1, store.eventIndex("commit"))
	require.Equal(t, -1, store.eventIndex("invalidate:perms:2"))
	require.Equal(t, -1, store.eventIndex("invalidate:directory"))
}

func TestUpdateUserRequiresAtLeastOneField(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	err := coordinator.UpdateUser(context.Background(), 2, UpdateUserParams{})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, store.events)
}

func TestUpdateUserAppliesOnlySuppliedFields(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	newName := "Developer"
	clearedEmail := ""
	require.NoError(t, coordinator.UpdateUser(context.Background(), 2, UpdateUserParams{
		Name:  &newName,
		Email: &clearedEmail,
	}))

	user := store.state.users[2]
	require.Equal(t, "Developer", user.name)
	require.Equal(t, "", user.email, "explicit empty value clears the field")
	require.True(t, user.active, "unsupplied fields stay unchanged")
}

func TestRolePermissionReassignment(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	role, err := coordinator.CreateRole(ctx, "QA", "quality assurance")
	require.NoError(t, err)

	require.NoError(t, coordinator.AssignRolePermissions(ctx, role.ID, []int64{5, 9}))
	perms, err := store.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	require.Equal(t, int64(5), perms[0].ID)
	require.Equal(t, int64(9), perms[1].ID)

	require.NoError(t, coordinator.AssignRolePermissions(ctx, role.ID, []int64{9}))
	perms, err = store.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	require.Equal(t, int64(9), perms[0].ID)
}

func TestDeleteRoleCascades(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	require.NoError(t, coordinator.DeleteRole(context.Background(), 10))

	require.NotContains(t, store.state.roles, int64(10))
	require.NotContains(t, store.state.rolePerms, int64(10))
	require.Empty(t, assignedRoles(t, store, 2))

	commit := store.eventIndex("commit")
	flush := store.eventIndex("invalidate:perms:all")
	require.GreaterOrEqual(t, commit, 0)
	require.Greater(t, flush, commit, "full permission flush must follow commit")
}

func TestCreateRoleRequiresName(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	_, err := coordinator.CreateRole(context.Background(), "   ", "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreatePermissionDuplicateKey(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	_, err := coordinator.CreatePermission(context.Background(), "task:create", "Create tasks", "task", "")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestDeletePermissionCascades(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)

	require.NoError(t, coordinator.DeletePermission(context.Background(), 5))

	require.NotContains(t, store.state.perms, int64(5))
	for _, set := range store.state.rolePerms {
		require.NotContains(t, set, int64(5))
	}
}

func TestEffectivePermissionsFollowRoleAssignment(t *testing.T) {
	store := newMemoryStore()
	coordinator := newTestCoordinator(store)
	ctx := context.Background()

	// User 3 starts with no roles and no permissions.
	keys, err := store.PermissionKeysForUser(ctx, 3)
	require.NoError(t, err)
	require.Empty(t, keys)

	require.NoError(t, coordinator.AssignUserRoles(ctx, 3, []int64{10}))

	keys, err = store.PermissionKeysForUser(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"task:create"}, keys)
}
