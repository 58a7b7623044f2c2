package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-reports/internal/common/clock"
	"go-reports/internal/common/errs"
	common_models "go-reports/internal/common/models"
	"go-reports/internal/features/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MockReportRepository keeps reports in memory and applies the same
// visibility rule as the Mongo implementation.
type MockReportRepository struct {
	mu      sync.Mutex
	reports map[primitive.ObjectID]Report
}

func NewMockReportRepository() *MockReportRepository {
	return &MockReportRepository{reports: make(map[primitive.ObjectID]Report)}
}

func (m *MockReportRepository) Create(ctx context.Context, report *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = *report
	return nil
}

func (m *MockReportRepository) FindVisible(ctx context.Context, id primitive.ObjectID, org, userID string) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok || r.OrganizationID != org || (r.OwnerUserID != userID && !r.IsShared) {
		return nil, errs.ErrNotFound
	}
	return &r, nil
}

func (m *MockReportRepository) List(ctx context.Context, org, userID string, filter ListFilter, onlyIDs []primitive.ObjectID) ([]Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	only := make(map[primitive.ObjectID]bool)
	for _, id := range onlyIDs {
		only[id] = true
	}
	var out []Report
	for _, r := range m.reports {
		if r.OrganizationID != org || (r.OwnerUserID != userID && !r.IsShared) {
			continue
		}
		if filter.SharedOnly && !r.IsShared {
			continue
		}
		if onlyIDs != nil && !only[r.ID] {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MockReportRepository) Update(ctx context.Context, report *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = *report
	return nil
}

func (m *MockReportRepository) SetSharing(ctx context.Context, id primitive.ObjectID, org string, isShared bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.reports[id]
	r.IsShared = isShared
	r.UpdatedAt = at
	m.reports[id] = r
	return nil
}

func (m *MockReportRepository) Delete(ctx context.Context, id primitive.ObjectID, org string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, id)
	return nil
}

func (m *MockReportRepository) EnsureIndexes(ctx context.Context) error { return nil }

type favKey struct {
	user   string
	report primitive.ObjectID
}

type MockFavoriteRepository struct {
	mu   sync.Mutex
	favs map[favKey]string
}

func NewMockFavoriteRepository() *MockFavoriteRepository {
	return &MockFavoriteRepository{favs: make(map[favKey]string)}
}

func (m *MockFavoriteRepository) Toggle(ctx context.Context, userID string, reportID primitive.ObjectID, org string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := favKey{userID, reportID}
	if _, ok := m.favs[k]; ok {
		delete(m.favs, k)
		return false, nil
	}
	m.favs[k] = org
	return true, nil
}

func (m *MockFavoriteRepository) IsFavorite(ctx context.Context, userID string, reportID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.favs[favKey{userID, reportID}]
	return ok, nil
}

func (m *MockFavoriteRepository) ListReportIDs(ctx context.Context, userID, org string) ([]primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []primitive.ObjectID{}
	for k, o := range m.favs {
		if k.user == userID && o == org {
			ids = append(ids, k.report)
		}
	}
	return ids, nil
}

func (m *MockFavoriteRepository) DeleteByReport(ctx context.Context, reportID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.favs {
		if k.report == reportID {
			delete(m.favs, k)
		}
	}
	return nil
}

func (m *MockFavoriteRepository) EnsureIndexes(ctx context.Context) error { return nil }

type MockAuditService struct {
	mu      sync.Mutex
	actions []common_models.AuditAction
}

func (m *MockAuditService) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	return nil
}

func (m *MockAuditService) ListLogs(ctx context.Context, org string, filters map[string]interface{}, page, limit int64) ([]common_models.AuditLog, error) {
	return nil, nil
}

type MockCascade struct {
	deleted []string
	err     error
}

func (m *MockCascade) DeleteByReport(ctx context.Context, reportID string, org string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, reportID)
	return nil
}

type serviceFixture struct {
	svc     ReportService
	repo    *MockReportRepository
	favs    *MockFavoriteRepository
	audit   *MockAuditService
	cascade *MockCascade
	clock   *clock.Fake
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	f := serviceFixture{
		repo:    NewMockReportRepository(),
		favs:    NewMockFavoriteRepository(),
		audit:   &MockAuditService{},
		cascade: &MockCascade{},
		clock:   clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.svc = NewReportService(f.repo, f.favs, newTestValidator(t), f.audit, f.cascade, f.clock, zap.NewNop())
	return f
}

var (
	alice   = tenant.Caller{UserID: "alice", OrganizationID: "7"}
	bob     = tenant.Caller{UserID: "bob", OrganizationID: "7"}
	mallory = tenant.Caller{UserID: "mallory", OrganizationID: "8"}
)

func TestCreateValidatesFirst(t *testing.T) {
	f := newServiceFixture(t)
	def := confirmedWorksByProject()
	def.Columns[0].Field = "secret_column"

	_, err := f.svc.Create(context.Background(), def, alice.OrganizationID, alice.UserID)
	v, ok := errs.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "columns_config[0].field", v[0].Field)
	assert.Empty(t, f.repo.reports)
}

func TestCreateAndGet(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, confirmedWorksByProject(), alice.OrganizationID, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, f.clock.Now(), created.CreatedAt)
	assert.False(t, created.IsShared)

	got, err := f.svc.Get(ctx, created.ID.Hex(), alice)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	// Private report: same org but not owner, and other org
	_, err = f.svc.Get(ctx, created.ID.Hex(), bob)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.svc.Get(ctx, created.ID.Hex(), mallory)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.Get(ctx, "not-an-id", alice)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.Equal(t, []common_models.AuditAction{common_models.AuditActionCreate}, f.audit.actions)
}

func TestSharingVisibilityAndOwnership(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, confirmedWorksByProject(), alice.OrganizationID, alice.UserID)
	require.NoError(t, err)
	id := created.ID.Hex()

	_, err = f.svc.SetSharing(ctx, id, true, bob)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	shared, err := f.svc.SetSharing(ctx, id, true, alice)
	require.NoError(t, err)
	assert.True(t, shared.IsShared)

	_, err = f.svc.Get(ctx, id, bob)
	assert.NoError(t, err)
	// Sharing never crosses organizations
	_, err = f.svc.Get(ctx, id, mallory)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	name := "Renamed"
	_, err = f.svc.Update(ctx, id, Patch{Name: &name}, bob)
	assert.ErrorIs(t, err, errs.ErrAccessDenied)
	assert.ErrorIs(t, f.svc.Delete(ctx, id, bob), errs.ErrAccessDenied)
	_, err = f.svc.SetSharing(ctx, id, false, bob)
	assert.ErrorIs(t, err, errs.ErrAccessDenied)

	list, err := f.svc.List(ctx, bob, ListFilter{SharedOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateRevalidatesAndBumpsVersion(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, confirmedWorksByProject(), alice.OrganizationID, alice.UserID)
	require.NoError(t, err)
	id := created.ID.Hex()

	f.clock.Advance(time.Hour)
	name := "Q1 works"
	updated, err := f.svc.Update(ctx, id, Patch{Name: &name}, alice)
	require.NoError(t, err)
	assert.Equal(t, "Q1 works", updated.Name)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, f.clock.Now(), updated.UpdatedAt)
	assert.Len(t, updated.Filters, 1)

	bad := []FilterClause{{Source: "completed_works", Field: "secret_column", Operator: "eq", Values: []any{"x"}}}
	_, err = f.svc.Update(ctx, id, Patch{Filters: &bad}, alice)
	_, ok := errs.AsValidation(err)
	assert.True(t, ok)

	stored, err := f.svc.Get(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "status", stored.Filters[0].Field)
}

func TestCloneResetsFlagsAndLeavesSourceIntact(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, confirmedWorksByProject(), alice.OrganizationID, alice.UserID)
	require.NoError(t, err)
	id := created.ID.Hex()
	_, err = f.svc.SetSharing(ctx, id, true, alice)
	require.NoError(t, err)
	_, err = f.svc.ToggleFavorite(ctx, id, alice)
	require.NoError(t, err)
	_, err = f.svc.ToggleFavorite(ctx, id, bob)
	require.NoError(t, err)

	clone, err := f.svc.Clone(ctx, id, bob)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, clone.ID)
	assert.Equal(t, "bob", clone.OwnerUserID)
	assert.False(t, clone.IsShared)
	assert.False(t, clone.IsFavorite)
	assert.Equal(t, created.Name+" (copy)", clone.Name)

	bobView, err := f.svc.Get(ctx, clone.ID.Hex(), bob)
	require.NoError(t, err)
	assert.False(t, bobView.IsFavorite)

	// Mutating the clone's config must not reach the source
	clone.Filters[0].Values[0] = "rejected"
	src, err := f.svc.Get(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", src.Filters[0].Values[0])
	assert.True(t, src.IsShared)
	assert.True(t, src.IsFavorite)
	assert.Equal(t, created.Name, src.Name)

	stored, err := f.repo.FindVisible(ctx, clone.ID, bob.OrganizationID, bob.UserID)
	require.NoError(t, err)
	stored.Filters[0].Values[0] = "draft"
	srcStored, err := f.repo.FindVisible(ctx, created.ID, alice.OrganizationID, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", srcStored.Filters[0].Values[0])

	_, err = f.svc.Clone(ctx, id, mallory)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFavoritesArePerUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, confirmedWorksByProject(), alice.OrganizationID, alice.UserID)
	require.NoError(t, err)
	id := created.ID.Hex()
	_, err = f.svc.SetSharing(ctx, id, true, alice)
	require.NoError(t, err)

	fav, err := f.svc.ToggleFavorite(ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, fav)

	bobView, err := f.svc.Get(ctx, id, bob)
	require.NoError(t, err)
	assert.False(t, bobView.IsFavorite)

	aliceFavs, err := f.svc.List(ctx, alice, ListFilter{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Len(t, aliceFavs, 1)
	bobFavs, err := f.svc.List(ctx, bob, ListFilter{FavoritesOnly: true})
	require.NoError(t, err)
	assert.Empty(t, bobFavs)

	fav, err = f.svc.ToggleFavorite(ctx, id, alice)
	require.NoError(t, err)
	assert.False(t, fav)

	_, err = f.svc.ToggleFavorite(ctx, id, mallory)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, confirmedWorksByProject(), alice.OrganizationID, alice.UserID)
	require.NoError(t, err)
	id := created.ID.Hex()
	_, err = f.svc.ToggleFavorite(ctx, id, alice)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, id, alice))
	assert.Equal(t, []string{id}, f.cascade.deleted)
	assert.Empty(t, f.favs.favs)
	_, err = f.svc.Get(ctx, id, alice)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteKeepsReportWhenCascadeFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.cascade.err = errors.New("mongo down")

	created, err := f.svc.Create(ctx, confirmedWorksByProject(), alice.OrganizationID, alice.UserID)
	require.NoError(t, err)

	assert.Error(t, f.svc.Delete(ctx, created.ID.Hex(), alice))
	_, err = f.svc.Get(ctx, created.ID.Hex(), alice)
	assert.NoError(t, err)
}
