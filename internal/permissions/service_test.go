package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/audit"
	"github.com/stafflane/stafflane/internal/platform/cache"
	"github.com/stafflane/stafflane/internal/platform/httpx"
	"github.com/stafflane/stafflane/internal/roles"
	"github.com/stafflane/stafflane/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type stubAccountsRepo struct {
	mu    sync.Mutex
	users map[int64]*accounts.User

	getCalls  int
	getErr    error
	updateErr error
}

func (m *stubAccountsRepo) GetUser(ctx context.Context, id int64) (*accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("accounts: user %d: %w", id, httpx.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (m *stubAccountsRepo) gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

func (m *stubAccountsRepo) ListUsers(ctx context.Context) ([]accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []accounts.User
	for _, u := range m.users {
		result = append(result, *u)
	}
	return result, nil
}

func (m *stubAccountsRepo) UpdateOverride(ctx context.Context, id int64, ov accounts.Override, expectedVersion int64) (*accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("accounts: user %d: %w", id, httpx.ErrNotFound)
	}
	if user.Version != expectedVersion {
		return nil, fmt.Errorf("accounts: user %d: %w", id, shared.ErrVersionConflict)
	}
	user.Override = ov
	user.Version++
	copied := *user
	return &copied, nil
}

type mockRoleStore struct {
	mu         sync.Mutex
	roles      map[string]*roles.Role
	presets    map[int64]*roles.Preset
	presetGets int
	updateErr  error
}

func (m *mockRoleStore) GetRole(ctx context.Context, name string) (*roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[name]
	if !ok {
		return nil, fmt.Errorf("roles: %s: %w", name, httpx.ErrNotFound)
	}
	copied := *role
	return &copied, nil
}

func (m *mockRoleStore) UpdateRolePermissions(ctx context.Context, name string, permissions []string) (*roles.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	role, ok := m.roles[name]
	if !ok {
		return nil, fmt.Errorf("roles: %s: %w", name, httpx.ErrNotFound)
	}
	role.Permissions = permissions
	copied := *role
	return &copied, nil
}

func (m *mockRoleStore) GetPreset(ctx context.Context, id int64) (*roles.Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presetGets++
	preset, ok := m.presets[id]
	if !ok {
		return nil, fmt.Errorf("roles: preset %d: %w", id, httpx.ErrNotFound)
	}
	copied := *preset
	return &copied, nil
}

func (m *mockRoleStore) presetLookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presetGets
}

func (m *mockRoleStore) RoleDefaults(ctx context.Context, name string) ([]string, error) {
	role, err := m.GetRole(ctx, name)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return role.Permissions, nil
}

type recordedChange struct {
	kind       audit.EntityKind
	entityID   string
	entityName string
	prior      []string
	next       []string
	requestor  audit.Requestor
}

type mockRecorder struct {
	mu      sync.Mutex
	records []recordedChange
	err     error
}

func (m *mockRecorder) Record(ctx context.Context, kind audit.EntityKind, entityID, entityName string, prior, next []string, requestor audit.Requestor) (*audit.ChangeLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.records = append(m.records, recordedChange{
		kind:       kind,
		entityID:   entityID,
		entityName: entityName,
		prior:      append([]string(nil), prior...),
		next:       append([]string(nil), next...),
		requestor:  requestor,
	})
	return &audit.ChangeLog{}, nil
}

func (m *mockRecorder) all() []recordedChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedChange(nil), m.records...)
}

type mockNotifier struct {
	mu      sync.Mutex
	notices []ChangeNotice
	err     error
}

func (m *mockNotifier) Notify(ctx context.Context, kind string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if notice, ok := payload.(ChangeNotice); ok {
		m.notices = append(m.notices, notice)
	}
	return nil
}

func (m *mockNotifier) all() []ChangeNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChangeNotice(nil), m.notices...)
}

// ============================================================================
// FIXTURE
// ============================================================================

type orchestratorFixture struct {
	service  *Service
	accounts *stubAccountsRepo
	roles    *mockRoleStore
	recorder *mockRecorder
	notifier *mockNotifier
	store    *cache.Store
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	accountsRepo := &stubAccountsRepo{users: map[int64]*accounts.User{
		1: {ID: 1, Name: "Olivia", Email: "owner@stafflane.local", Role: shared.RoleOwner, IsActive: true},
		2: {ID: 2, Name: "Marcus", Email: "manager@stafflane.local", Role: "Manager", IsActive: true},
		3: {ID: 3, Name: "Dana", Email: "employee@stafflane.local", Role: "Employee", IsActive: true},
	}}
	roleStore := &mockRoleStore{
		roles: map[string]*roles.Role{
			shared.RoleOwner: {Name: shared.RoleOwner, Permissions: []string{
				shared.PermPutUserProfilePermissions,
				shared.PermPutRolePermissions,
				shared.PermAddDeleteEditOwners,
			}},
			"Manager": {Name: "Manager", Permissions: []string{
				shared.PermPutUserProfilePermissions,
				shared.PermPutRolePermissions,
				shared.PermViewSchedule,
			}},
			"Employee": {Name: "Employee", Permissions: []string{
				shared.PermViewSchedule,
				shared.PermRequestSwap,
				shared.PermSeeBadges,
			}},
		},
		presets: map[int64]*roles.Preset{
			10: {ID: 10, RoleName: "Employee", PresetName: "Read only", Permissions: []string{shared.PermViewSchedule}},
		},
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewStore(client, 0)

	logger := slog.Default()
	// The resolver is built without the cache so permission checks always
	// see live role data; cache behaviour has its own tests.
	resolver := NewResolver(roleStore, accountsRepo, nil, logger)
	guard := NewGuard(resolver, accounts.NewSelfProtectionPolicy(accountsRepo), logger)
	recorder := &mockRecorder{}
	notifier := &mockNotifier{}

	service := NewService(accountsRepo, roleStore, guard, resolver, recorder, notifier, store, nil, logger)
	return &orchestratorFixture{
		service:  service,
		accounts: accountsRepo,
		roles:    roleStore,
		recorder: recorder,
		notifier: notifier,
		store:    store,
	}
}

func (f *orchestratorFixture) requestor(id int64) *accounts.User {
	user, _ := f.accounts.GetUser(context.Background(), id)
	return user
}

// ============================================================================
// USER MUTATIONS
// ============================================================================

func TestUpdateUserPermissionsHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetJSON(ctx, cache.ActorKey(3), []string{"stale"}, 0))
	require.NoError(t, f.store.SetJSON(ctx, cache.AllActorsKey, []string{"stale"}, 0))

	front := []string{shared.PermSeePermissionsLog}
	updated, err := f.service.UpdateUserPermissions(ctx, f.requestor(2), 3, OverridePatch{
		FrontPermissions: &front,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermSeePermissionsLog}, updated.Override.FrontPermissions)
	assert.Equal(t, int64(1), updated.Version)

	records := f.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.EntityUser, records[0].kind)
	assert.Equal(t, "3", records[0].entityID)
	assert.Equal(t, "Dana", records[0].entityName)
	assert.Equal(t, []string{shared.PermRequestSwap, shared.PermSeeBadges, shared.PermViewSchedule}, records[0].prior)
	assert.Contains(t, records[0].next, shared.PermSeePermissionsLog)
	assert.Equal(t, int64(2), records[0].requestor.ID)
	assert.Equal(t, "manager@stafflane.local", records[0].requestor.Email)

	notices := f.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, "user", notices[0].EntityKind)
	assert.Equal(t, []string{shared.PermSeePermissionsLog}, notices[0].Added)
	assert.Empty(t, notices[0].Removed)

	for _, key := range []string{cache.ActorKey(3), cache.AllActorsKey} {
		has, err := f.store.Has(ctx, key)
		require.NoError(t, err)
		assert.False(t, has, "expected %s to be invalidated", key)
	}
}

func TestUpdateUserPermissionsRemovedDefaultShowsInDiff(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	removed := []string{shared.PermViewSchedule}
	_, err := f.service.UpdateUserPermissions(ctx, f.requestor(2), 3, OverridePatch{
		RemovedDefaultPermissions: &removed,
	})
	require.NoError(t, err)

	notices := f.notifier.all()
	require.Len(t, notices, 1)
	assert.Empty(t, notices[0].Added)
	assert.Equal(t, []string{shared.PermViewSchedule}, notices[0].Removed)
}

func TestUpdateUserPermissionsIdempotentPatchYieldsEmptyDeltas(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	front := []string{shared.PermSeePermissionsLog}
	patch := OverridePatch{FrontPermissions: &front}

	_, err := f.service.UpdateUserPermissions(ctx, f.requestor(2), 3, patch)
	require.NoError(t, err)
	_, err = f.service.UpdateUserPermissions(ctx, f.requestor(2), 3, patch)
	require.NoError(t, err)

	records := f.recorder.all()
	require.Len(t, records, 2)
	assert.Equal(t, records[0].next, records[1].prior)
	assert.Equal(t, records[1].prior, records[1].next, "identical patch must produce an empty delta")
}

func TestUpdateUserPermissionsDeniedLeavesNoTrace(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	front := []string{shared.PermSeePermissionsLog}
	_, err := f.service.UpdateUserPermissions(ctx, f.requestor(3), 2, OverridePatch{
		FrontPermissions: &front,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))

	assert.Empty(t, f.recorder.all())
	assert.Empty(t, f.notifier.all())
	target := f.requestor(2)
	assert.Empty(t, target.Override.FrontPermissions)
	assert.Equal(t, int64(0), target.Version)
}

func TestUpdateUserPermissionsOwnerTargetNeedsElevated(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	front := []string{shared.PermSeeBadges}
	// Manager holds the base permission but not addDeleteEditOwners.
	_, err := f.service.UpdateUserPermissions(ctx, f.requestor(2), 1, OverridePatch{
		FrontPermissions: &front,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))
	assert.Empty(t, f.recorder.all())
}

func TestUpdateUserPermissionsValidation(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.service.UpdateUserPermissions(ctx, nil, 3, OverridePatch{})
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))

	_, err = f.service.UpdateUserPermissions(ctx, f.requestor(2), 0, OverridePatch{})
	assert.True(t, errors.Is(err, httpx.ErrValidation))

	_, err = f.service.UpdateUserPermissions(ctx, f.requestor(2), 99, OverridePatch{})
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestUpdateUserPermissionsDeniedBeforeTargetLoad(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// Employee lacks the base permission. An unknown target id must read
	// as forbidden, not not-found, or the error reveals which ids exist.
	requestor := f.requestor(3)
	before := f.accounts.gets()

	front := []string{shared.PermSeeBadges}
	_, err := f.service.UpdateUserPermissions(ctx, requestor, 99, OverridePatch{
		FrontPermissions: &front,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))
	assert.False(t, errors.Is(err, httpx.ErrNotFound))
	assert.Equal(t, before, f.accounts.gets(), "denied mutation must not load the target")
}

func TestUpdateUserPermissionsPersistFailureSurfaces(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.accounts.updateErr = shared.ErrVersionConflict

	front := []string{shared.PermSeeBadges}
	_, err := f.service.UpdateUserPermissions(context.Background(), f.requestor(2), 3, OverridePatch{
		FrontPermissions: &front,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrVersionConflict))
	assert.Empty(t, f.recorder.all(), "no audit entry without a committed write")
}

func TestUpdateUserPermissionsAuditFailureIsSwallowed(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.recorder.err = errors.New("audit store down")

	front := []string{shared.PermSeeBadges}
	updated, err := f.service.UpdateUserPermissions(context.Background(), f.requestor(2), 3, OverridePatch{
		FrontPermissions: &front,
	})
	require.NoError(t, err, "audit failures never fail the mutation")
	assert.Equal(t, int64(1), updated.Version)
	// The other best-effort steps still ran.
	require.Len(t, f.notifier.all(), 1)
}

func TestUpdateUserPermissionsNotifyFailureIsSwallowed(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.notifier.err = errors.New("queue down")

	front := []string{shared.PermSeeBadges}
	_, err := f.service.UpdateUserPermissions(context.Background(), f.requestor(2), 3, OverridePatch{
		FrontPermissions: &front,
	})
	require.NoError(t, err)
	require.Len(t, f.recorder.all(), 1)
}

func TestUpdateUserPermissionsConcurrentWritersSerialise(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	front := []string{shared.PermSeePermissionsLog}
	back := []string{shared.PermSeeUsersManagement}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.service.UpdateUserPermissions(ctx, f.requestor(2), 3, OverridePatch{FrontPermissions: &front})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.service.UpdateUserPermissions(ctx, f.requestor(2), 3, OverridePatch{BackPermissions: &back})
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Neither write may be lost: both patched fields survive.
	final := f.requestor(3)
	assert.Equal(t, front, final.Override.FrontPermissions)
	assert.Equal(t, back, final.Override.BackPermissions)
	assert.Equal(t, int64(2), final.Version)
	assert.Len(t, f.recorder.all(), 2)
}

// ============================================================================
// ROLE MUTATIONS
// ============================================================================

func TestUpdateRolePermissionsHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SetJSON(ctx, cache.RoleKey("Employee"), []string{"stale"}, 0))
	require.NoError(t, f.store.SetJSON(ctx, cache.ActorKey(3), []string{"stale"}, 0))
	require.NoError(t, f.store.SetJSON(ctx, cache.ActorKey(9), []string{"stale"}, 0))
	require.NoError(t, f.store.SetJSON(ctx, cache.AllActorsKey, []string{"stale"}, 0))

	updated, err := f.service.UpdateRolePermissions(ctx, f.requestor(2), "Employee", []string{
		shared.PermViewSchedule,
		shared.PermViewSchedule,
		shared.PermSeeBadges,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermViewSchedule, shared.PermSeeBadges}, updated.Permissions)

	records := f.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.EntityRole, records[0].kind)
	assert.Equal(t, "Employee", records[0].entityID)
	assert.ElementsMatch(t, []string{shared.PermViewSchedule, shared.PermRequestSwap, shared.PermSeeBadges}, records[0].prior)

	notices := f.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, []string{shared.PermRequestSwap}, notices[0].Removed)

	// Role defaults changed, so every cached actor view is stale.
	for _, key := range []string{cache.RoleKey("Employee"), cache.ActorKey(3), cache.ActorKey(9), cache.AllActorsKey} {
		has, err := f.store.Has(ctx, key)
		require.NoError(t, err)
		assert.False(t, has, "expected %s to be invalidated", key)
	}
}

func TestUpdateRolePermissionsRequiresPermission(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.service.UpdateRolePermissions(context.Background(), f.requestor(3), "Employee", []string{shared.PermViewSchedule})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))
	assert.Empty(t, f.recorder.all())
}

func TestUpdateRolePermissionsUnknownRole(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.service.UpdateRolePermissions(context.Background(), f.requestor(2), "Ghost", []string{shared.PermViewSchedule})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestUpdateRolePermissionsDeniedBeforeRoleLoad(t *testing.T) {
	f := newOrchestratorFixture(t)

	// An unprivileged requestor gets the same verdict for unknown and
	// known role names.
	_, err := f.service.UpdateRolePermissions(context.Background(), f.requestor(3), "Ghost", []string{shared.PermViewSchedule})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))
	assert.False(t, errors.Is(err, httpx.ErrNotFound))
}

func TestApplyPreset(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	updated, err := f.service.ApplyPreset(ctx, f.requestor(2), "Employee", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermViewSchedule}, updated.Permissions)
}

func TestApplyPresetRoleMismatch(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.service.ApplyPreset(context.Background(), f.requestor(2), "Manager", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))
	assert.Empty(t, f.recorder.all())
}

func TestApplyPresetDeniedBeforePresetLookup(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// Anonymous callers read unauthorized regardless of the preset id.
	_, err := f.service.ApplyPreset(ctx, nil, "Employee", 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrUnauthorized))

	// Unprivileged callers read forbidden, again without a lookup.
	_, err = f.service.ApplyPreset(ctx, f.requestor(3), "Employee", 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))
	assert.False(t, errors.Is(err, httpx.ErrNotFound))

	assert.Equal(t, 0, f.roles.presetLookups(), "denied apply must not touch the preset store")
}

// ============================================================================
// CACHE CONSISTENCY
// ============================================================================

func TestUpdateUserPermissionsRefreshesCachedEffectiveView(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// A second resolver shares the orchestrator's cache store, reading
	// through the per-actor key like the HTTP read path does.
	cached := NewResolver(f.roles, f.accounts, f.store, slog.Default())

	before, err := cached.EffectivePermissionsByID(ctx, 3)
	require.NoError(t, err)
	assert.NotContains(t, before, shared.PermSeePermissionsLog)
	has, err := f.store.Has(ctx, cache.ActorKey(3))
	require.NoError(t, err)
	require.True(t, has, "first read populates the actor key")

	front := []string{shared.PermSeePermissionsLog}
	_, err = f.service.UpdateUserPermissions(ctx, f.requestor(2), 3, OverridePatch{
		FrontPermissions: &front,
	})
	require.NoError(t, err)

	// The mutation invalidated the key, so the very next read sees the
	// committed state.
	after, err := cached.EffectivePermissionsByID(ctx, 3)
	require.NoError(t, err)
	assert.Contains(t, after, shared.PermSeePermissionsLog)

	fresh, err := cached.EffectivePermissionsByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, after, fresh, "repopulated cache serves the same view")
}
