package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authlog-service/internal/models"
)

func newLoginRecord(subject models.Subject, createdAt time.Time) *models.AuthLog {
	loginAt := createdAt
	return &models.AuthLog{
		ID:          uuid.New(),
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
		IPAddress:   "203.0.113.7",
		UserAgent:   "Mozilla/5.0",
		EventLevel:  models.EventLogin,
		LoginAt:     &loginAt,
		CreatedAt:   createdAt,
	}
}

func TestCreateAndListBySubject(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	older := newLoginRecord(subject, time.Now().Add(-2*time.Hour))
	newer := newLoginRecord(subject, time.Now().Add(-time.Hour))
	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	records, err := store.ListBySubject(ctx, subject, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID, "newest record comes first")

	limited, err := store.ListBySubject(ctx, subject, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFindOpenSessionPicksNewestOpen(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	closedAt := time.Now().Add(-30 * time.Minute)
	closed := newLoginRecord(subject, time.Now().Add(-2*time.Hour))
	closed.LogoutAt = &closedAt
	open := newLoginRecord(subject, time.Now().Add(-time.Hour))

	require.NoError(t, store.Create(ctx, closed))
	require.NoError(t, store.Create(ctx, open))

	found, err := store.FindOpenSession(ctx, subject, "")
	require.NoError(t, err)
	assert.Equal(t, open.ID, found.ID)
}

func TestFindOpenSessionBySessionID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	first := newLoginRecord(subject, time.Now().Add(-2*time.Hour))
	first.SessionID = "sess-a"
	second := newLoginRecord(subject, time.Now().Add(-time.Hour))
	second.SessionID = "sess-b"
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	found, err := store.FindOpenSession(ctx, subject, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = store.FindOpenSession(ctx, subject, "sess-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	record := newLoginRecord(subject, time.Now().Add(-time.Hour))
	require.NoError(t, store.Create(ctx, record))

	logoutAt := time.Now()
	require.NoError(t, store.CloseSession(ctx, record, logoutAt))
	require.NotNil(t, record.LogoutAt)

	// A second lookup must see no open session anymore.
	_, err := store.FindOpenSession(ctx, subject, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExistsForSubject(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}
	other := models.Subject{Type: "user", ID: "2"}

	record := newLoginRecord(subject, time.Now())
	require.NoError(t, store.Create(ctx, record))

	seen, err := store.ExistsForSubject(ctx, subject, AttrUserAgent, "Mozilla/5.0")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.ExistsForSubject(ctx, subject, AttrIPAddress, "198.51.100.9")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = store.ExistsForSubject(ctx, other, AttrUserAgent, "Mozilla/5.0")
	require.NoError(t, err)
	assert.False(t, seen, "history is per subject")
}

func TestSoftDeleteHidesRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	record := newLoginRecord(subject, time.Now().Add(-time.Hour))
	require.NoError(t, store.Create(ctx, record))
	require.NoError(t, store.SoftDelete(ctx, record))

	records, err := store.ListBySubject(ctx, subject, 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	seen, err := store.ExistsForSubject(ctx, subject, AttrUserAgent, "Mozilla/5.0")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestListOlderThanSkipsSoftDeleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	old := newLoginRecord(subject, time.Now().Add(-48*time.Hour))
	recent := newLoginRecord(subject, time.Now())
	require.NoError(t, store.Create(ctx, old))
	require.NoError(t, store.Create(ctx, recent))

	cutoff := time.Now().Add(-24 * time.Hour)

	expired, err := store.ListOlderThan(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)

	require.NoError(t, store.SoftDelete(ctx, old))

	expired, err = store.ListOlderThan(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Empty(t, expired, "soft-deleted records never reappear")
}

func TestHardDeleteRemovesRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	record := newLoginRecord(subject, time.Now())
	require.NoError(t, store.Create(ctx, record))
	require.NoError(t, store.HardDelete(ctx, record))

	records, err := store.ListBySubject(ctx, subject, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListSuspicious(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	plain := newLoginRecord(subject, time.Now().Add(-time.Hour))
	flagged := newLoginRecord(subject, time.Now())
	flagged.IsNewDevice = true
	require.NoError(t, store.Create(ctx, plain))
	require.NoError(t, store.Create(ctx, flagged))

	records, err := store.ListSuspicious(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, flagged.ID, records[0].ID)

	count, err := store.CountSuspicious(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQueriesHelpers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	first := newLoginRecord(subject, time.Now().Add(-2*time.Hour))
	second := newLoginRecord(subject, time.Now().Add(-time.Hour))
	failed := newLoginRecord(subject, time.Now().Add(-30*time.Minute))
	failed.EventLevel = models.EventFailed
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, failed))

	last, err := LastLogin(ctx, store, subject)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, second.ID, last.ID)

	previous, err := PreviousLogin(ctx, store, subject)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, first.ID, previous.ID)

	failedCount, err := FailedLoginsCount(ctx, store, subject)
	require.NoError(t, err)
	assert.Equal(t, 1, failedCount)

	active, err := ActiveSessions(ctx, store, subject)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	multiple, err := HasMultipleSessions(ctx, store, subject)
	require.NoError(t, err)
	assert.True(t, multiple)
}

func TestInactiveSince(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	subject := models.Subject{Type: "user", ID: "1"}

	// No history at all counts as inactive.
	inactive, err := InactiveSince(ctx, store, subject, 30)
	require.NoError(t, err)
	assert.True(t, inactive)

	stale := newLoginRecord(subject, time.Now().UTC().AddDate(0, 0, -45))
	require.NoError(t, store.Create(ctx, stale))

	inactive, err = InactiveSince(ctx, store, subject, 30)
	require.NoError(t, err)
	assert.True(t, inactive)

	recent := newLoginRecord(subject, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, store.Create(ctx, recent))

	inactive, err = InactiveSince(ctx, store, subject, 30)
	require.NoError(t, err)
	assert.False(t, inactive)
}

func TestMemoryLockoutStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLockoutStore()

	count, err := store.RegisterAttempt(ctx, "key", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.RegisterAttempt(ctx, "key", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	locked, err := store.IsLocked(ctx, "key")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, store.Lock(ctx, "key", time.Minute))

	locked, err = store.IsLocked(ctx, "key")
	require.NoError(t, err)
	assert.True(t, locked)

	ttl, err := store.LockTTL(ctx, "key")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Clear(ctx, "key"))

	locked, err = store.IsLocked(ctx, "key")
	require.NoError(t, err)
	assert.False(t, locked)

	attempts, err := store.Attempts(ctx, "key")
	require.NoError(t, err)
	assert.Zero(t, attempts)
}

func TestMemoryFingerprintStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFingerprintStore()

	require.NoError(t, store.Save(ctx, "sess-1", "abc123", time.Hour))

	value, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", value)

	value, err = store.Get(ctx, "sess-missing")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.Delete(ctx, "sess-1"))

	value, err = store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestMemoryFingerprintStoreTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFingerprintStore()
	store.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, store.Save(ctx, "sess-1", "abc123", time.Minute))

	store.now = func() time.Time { return time.Date(2026, 1, 1, 12, 2, 0, 0, time.UTC) }

	value, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, value, "expired fingerprints read as absent")
}
