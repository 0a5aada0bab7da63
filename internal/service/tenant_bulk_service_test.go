package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/repository"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
)

// fakeTenantStore mimics the tenants table with unique school_code and email.
type fakeTenantStore struct {
	tenants   map[string]*model.Tenant
	inactive  map[string]bool
	batchErr  error
	inserts   int
	lookupErr error
	// rejected codes fail with a data exception, as an out-of-range
	// value would in Postgres.
	rejected map[string]bool
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{tenants: map[string]*model.Tenant{}, inactive: map[string]bool{}, rejected: map[string]bool{}}
}

func (f *fakeTenantStore) ExistingCodes(_ context.Context, codes []string) (map[string]bool, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := map[string]bool{}
	for _, c := range codes {
		if _, ok := f.tenants[c]; ok {
			out[c] = true
		}
	}
	return out, nil
}

func (f *fakeTenantStore) ActiveCodes(_ context.Context, codes []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, c := range codes {
		if _, ok := f.tenants[c]; ok && !f.inactive[c] {
			out[c] = true
		}
	}
	return out, nil
}

func (f *fakeTenantStore) emailTaken(email, except string) bool {
	for code, t := range f.tenants {
		if code != except && t.Email == email {
			return true
		}
	}
	return false
}

func (f *fakeTenantStore) InsertBatch(_ context.Context, tenants []*model.Tenant) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	for _, t := range tenants {
		if f.rejected[t.SchoolCode] {
			return &repository.DataError{Code: "22003", Message: "numeric field overflow"}
		}
		if f.emailTaken(t.Email, "") {
			return &repository.DuplicateError{Constraint: "tenants_email_key"}
		}
	}
	for _, t := range tenants {
		f.tenants[t.SchoolCode] = t
		f.inserts++
	}
	return nil
}

func (f *fakeTenantStore) InsertOne(_ context.Context, t *model.Tenant) error {
	if f.rejected[t.SchoolCode] {
		return &repository.DataError{Code: "22003", Message: "numeric field overflow"}
	}
	if f.emailTaken(t.Email, "") {
		return &repository.DuplicateError{Constraint: "tenants_email_key"}
	}
	f.tenants[t.SchoolCode] = t
	f.inserts++
	return nil
}

func (f *fakeTenantStore) apply(row *model.TenantRow) bool {
	t, ok := f.tenants[row.SchoolCode]
	if !ok || f.inactive[row.SchoolCode] {
		return false
	}
	if row.SchoolName != nil {
		t.SchoolName = *row.SchoolName
	}
	if row.Email != nil {
		t.Email = *row.Email
	}
	if row.MaximumCapacity != nil {
		t.MaximumCapacity = *row.MaximumCapacity
	}
	return true
}

func (f *fakeTenantStore) UpdateBatch(_ context.Context, rows []model.TenantRow) ([]string, error) {
	for i := range rows {
		if rows[i].Email != nil && f.emailTaken(*rows[i].Email, rows[i].SchoolCode) {
			return nil, &repository.DuplicateError{Constraint: "tenants_email_key"}
		}
	}
	var missing []string
	for i := range rows {
		if !f.apply(&rows[i]) {
			missing = append(missing, rows[i].SchoolCode)
		}
	}
	return missing, nil
}

func (f *fakeTenantStore) UpdateOne(_ context.Context, row *model.TenantRow) (bool, error) {
	if row.Email != nil && f.emailTaken(*row.Email, row.SchoolCode) {
		return false, &repository.DuplicateError{Constraint: "tenants_email_key"}
	}
	return f.apply(row), nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func tenantRows(codes ...string) []model.TenantRow {
	rows := make([]model.TenantRow, len(codes))
	for i, c := range codes {
		rows[i] = model.TenantRow{RowNumber: i + 2, SchoolCode: c}
	}
	return rows
}

func TestTenantBulkService_CreateAppliesDefaults(t *testing.T) {
	store := newFakeTenantStore()
	svc := NewTenantBulkService(store, 100, zerolog.Nop())

	res, err := svc.Create(context.Background(), tenantRows("SCH1"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, model.OperationCompleted, res.Status())

	got := store.tenants["SCH1"]
	require.NotNil(t, got)
	assert.Equal(t, "New School", got.SchoolName)
	assert.Equal(t, "SCH1@example.com", got.Email)
	assert.Equal(t, 1000, got.MaximumCapacity)
	assert.Equal(t, model.DefaultGradeLevels, got.GradeLevels)
	assert.True(t, got.IsActive)
}

func TestTenantBulkService_CreateSkipsExistingAndDuplicates(t *testing.T) {
	store := newFakeTenantStore()
	store.tenants["SCH1"] = &model.Tenant{SchoolCode: "SCH1", Email: "one@x.edu"}
	svc := NewTenantBulkService(store, 2, zerolog.Nop())

	var snapshots []tracker.Progress
	res, err := svc.Create(context.Background(), tenantRows("SCH1", "SCH2", "SCH2", "SCH3"), func(p tracker.Progress) {
		snapshots = append(snapshots, p)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, model.OperationCompletedWithErrors, res.Status())
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "Tenant with school_code SCH1 already exists", res.Errors[0].Error)
	assert.Equal(t, 2, res.Errors[0].RowNumber)
	assert.Equal(t, 4, res.Errors[1].RowNumber)

	require.Len(t, snapshots, 2)
	assert.Equal(t, 2, snapshots[0].Processed)
	assert.Equal(t, 4, snapshots[1].Processed)
}

func TestTenantBulkService_CreateFallsBackOnUniqueViolation(t *testing.T) {
	store := newFakeTenantStore()
	store.tenants["OLD"] = &model.Tenant{SchoolCode: "OLD", Email: "taken@x.edu"}
	svc := NewTenantBulkService(store, 100, zerolog.Nop())

	rows := tenantRows("A", "B", "C")
	rows[1].Email = strPtr("taken@x.edu")

	res, err := svc.Create(context.Background(), rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].RowNumber)
	assert.Contains(t, res.Errors[0].Error, "tenants_email_key")
	assert.Contains(t, store.tenants, "A")
	assert.Contains(t, store.tenants, "C")
	assert.NotContains(t, store.tenants, "B")
}

func TestTenantBulkService_CreateIsolatesDataError(t *testing.T) {
	store := newFakeTenantStore()
	store.rejected["B"] = true
	svc := NewTenantBulkService(store, 100, zerolog.Nop())

	res, err := svc.Create(context.Background(), tenantRows("A", "B", "C"), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].RowNumber)
	assert.Nil(t, res.Errors[0].BatchStart)
	assert.Contains(t, res.Errors[0].Error, "invalid data")
	assert.Contains(t, store.tenants, "A")
	assert.Contains(t, store.tenants, "C")
}

func TestTenantBulkService_CreateChunkFailure(t *testing.T) {
	store := newFakeTenantStore()
	store.batchErr = errors.New("connection reset")
	svc := NewTenantBulkService(store, 2, zerolog.Nop())

	res, err := svc.Create(context.Background(), tenantRows("A", "B", "C"), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Successful)
	assert.Equal(t, 3, res.Failed)
	require.Len(t, res.Errors, 2)
	require.NotNil(t, res.Errors[0].BatchStart)
	assert.Equal(t, 2, *res.Errors[0].BatchStart)
	assert.Equal(t, 3, *res.Errors[0].BatchEnd)
	assert.Equal(t, 4, *res.Errors[1].BatchStart)
}

func TestTenantBulkService_UpdateIsIdempotent(t *testing.T) {
	store := newFakeTenantStore()
	store.tenants["SCH1"] = &model.Tenant{SchoolCode: "SCH1", SchoolName: "Old", Email: "a@x.edu", MaximumCapacity: 100}
	store.tenants["SCH2"] = &model.Tenant{SchoolCode: "SCH2", SchoolName: "Keep", Email: "b@x.edu", MaximumCapacity: 200}
	svc := NewTenantBulkService(store, 100, zerolog.Nop())

	rows := tenantRows("SCH1", "SCH2")
	rows[0].SchoolName = strPtr("New Name")
	rows[1].MaximumCapacity = intPtr(250)

	for i := 0; i < 2; i++ {
		res, err := svc.Update(context.Background(), rows, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Successful, "run %d", i)
		assert.Equal(t, 0, res.Failed, "run %d", i)
	}

	assert.Equal(t, 0, store.inserts)
	assert.Len(t, store.tenants, 2)
	assert.Equal(t, "New Name", store.tenants["SCH1"].SchoolName)
	assert.Equal(t, 100, store.tenants["SCH1"].MaximumCapacity)
	assert.Equal(t, "Keep", store.tenants["SCH2"].SchoolName)
	assert.Equal(t, 250, store.tenants["SCH2"].MaximumCapacity)
}

func TestTenantBulkService_UpdateRowErrors(t *testing.T) {
	store := newFakeTenantStore()
	store.tenants["SCH1"] = &model.Tenant{SchoolCode: "SCH1", Email: "a@x.edu"}
	store.tenants["GONE"] = &model.Tenant{SchoolCode: "GONE", Email: "g@x.edu"}
	store.inactive["GONE"] = true
	svc := NewTenantBulkService(store, 100, zerolog.Nop())

	rows := tenantRows("SCH1", "SCH1", "NOPE", "GONE")
	rows[0].SchoolName = strPtr("Fine")
	rows[2].SchoolName = strPtr("x")
	rows[3].SchoolName = strPtr("x")

	res, err := svc.Update(context.Background(), rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 3, res.Failed)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, "No valid data to update", res.Errors[0].Error)
	assert.Equal(t, "Tenant with school_code NOPE not found", res.Errors[1].Error)
	assert.Equal(t, "Tenant with school_code GONE not found", res.Errors[2].Error)
}

func TestTenantBulkService_UpdateFallsBackOnUniqueViolation(t *testing.T) {
	store := newFakeTenantStore()
	for i := 1; i <= 3; i++ {
		code := fmt.Sprintf("S%d", i)
		store.tenants[code] = &model.Tenant{SchoolCode: code, Email: code + "@x.edu"}
	}
	svc := NewTenantBulkService(store, 100, zerolog.Nop())

	rows := tenantRows("S1", "S2", "S3")
	rows[0].SchoolName = strPtr("One")
	rows[1].Email = strPtr("S3@x.edu")
	rows[2].SchoolName = strPtr("Three")

	res, err := svc.Update(context.Background(), rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, res.Errors[0].RowNumber)
	assert.Equal(t, "One", store.tenants["S1"].SchoolName)
	assert.Equal(t, "S2@x.edu", store.tenants["S2"].Email)
}

func TestTenantBulkService_CancelledContext(t *testing.T) {
	svc := NewTenantBulkService(newFakeTenantStore(), 100, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Create(ctx, tenantRows("A"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
