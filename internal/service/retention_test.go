package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"authlog-service/internal/config"
	"authlog-service/internal/geo"
	"authlog-service/internal/models"
	"authlog-service/internal/repository"
)

type fixedProvider struct {
	location *geo.Location
}

func (p *fixedProvider) Lookup(_ context.Context, _ string) (*geo.Location, error) {
	return p.location, nil
}

func (p *fixedProvider) Close() error { return nil }

func newRetentionService(store repository.ActivityStore, cfg config.RetentionConfig, resolver *geo.Resolver) *RetentionService {
	svc := NewRetentionService(store, resolver, cfg, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func seedRecord(t *testing.T, store repository.ActivityStore, age time.Duration, mutate func(*models.AuthLog)) *models.AuthLog {
	t.Helper()
	record := &models.AuthLog{
		ID:          uuid.New(),
		SubjectType: "user",
		SubjectID:   "1",
		EventLevel:  models.EventLogin,
		IPAddress:   "203.0.113.7",
		CreatedAt:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC).Add(-age),
	}
	if mutate != nil {
		mutate(record)
	}
	require.NoError(t, store.Create(context.Background(), record))
	return record
}

func TestSweepSoftDeletesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newRetentionService(store, config.RetentionConfig{
		Enabled:      true,
		Days:         90,
		DeleteMethod: DeleteMethodSoft,
		BatchSize:    10,
	}, nil)

	seedRecord(t, store, 100*24*time.Hour, nil)
	seedRecord(t, store, 95*24*time.Hour, nil)
	fresh := seedRecord(t, store, 24*time.Hour, nil)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, DeleteMethodSoft, result.Method)

	records, err := store.ListBySubject(ctx, fresh.Subject(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fresh.ID, records[0].ID)

	// Soft sweeps are idempotent: a rerun finds nothing left to delete.
	result, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
}

func TestSweepHardDelete(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newRetentionService(store, config.RetentionConfig{
		Enabled:      true,
		Days:         30,
		DeleteMethod: DeleteMethodHard,
		BatchSize:    10,
	}, nil)

	old := seedRecord(t, store, 40*24*time.Hour, nil)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	records, err := store.ListBySubject(ctx, old.Subject(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSweepDisabled(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newRetentionService(store, config.RetentionConfig{Enabled: false}, nil)

	record := seedRecord(t, store, 365*24*time.Hour, nil)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)

	records, err := store.ListBySubject(ctx, record.Subject(), 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSweepBatchesUntilDrained(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newRetentionService(store, config.RetentionConfig{
		Enabled:      true,
		Days:         7,
		DeleteMethod: DeleteMethodSoft,
		BatchSize:    2,
	}, nil)

	for i := 0; i < 5; i++ {
		seedRecord(t, store, 30*24*time.Hour, nil)
	}

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Deleted)
}

func TestPruneSuspicious(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newRetentionService(store, config.RetentionConfig{
		DeleteMethod: DeleteMethodSoft,
		BatchSize:    10,
	}, nil)

	seedRecord(t, store, time.Hour, func(r *models.AuthLog) { r.IsNewDevice = true })
	seedRecord(t, store, time.Hour, func(r *models.AuthLog) { r.IsNewLocation = true })
	seedRecord(t, store, time.Hour, nil)

	result, err := svc.PruneSuspicious(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)

	count, err := store.CountSuspicious(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncGeoBackfillsMissingRecords(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	resolver := geo.NewResolver(&fixedProvider{
		location: &geo.Location{Country: "Germany", City: "Berlin"},
	}, time.Second, zap.NewNop())
	svc := newRetentionService(store, config.RetentionConfig{BatchSize: 10}, resolver)

	missing := seedRecord(t, store, time.Hour, nil)
	seedRecord(t, store, time.Hour, func(r *models.AuthLog) {
		r.Country = "France"
		r.City = "Paris"
	})

	result, err := svc.SyncGeo(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Updated)

	records, err := store.ListBySubject(ctx, missing.Subject(), 0)
	require.NoError(t, err)
	found := false
	for _, r := range records {
		if r.ID == missing.ID {
			found = true
			assert.Equal(t, "Germany", r.Country)
			assert.Equal(t, "Berlin", r.City)
		}
	}
	assert.True(t, found)
}

func TestSyncGeoWithoutResolver(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newRetentionService(store, config.RetentionConfig{BatchSize: 10}, nil)

	seedRecord(t, store, time.Hour, nil)

	result, err := svc.SyncGeo(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Zero(t, result.Updated)
}
