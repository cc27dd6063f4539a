package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"authlog-service/internal/bucketing"
	"authlog-service/internal/models"
	"authlog-service/internal/repository"
)

// Table layout:
//
//	PRIMARY KEY ((subject_bucket, subject_type, subject_id), created_at, id)
//	WITH CLUSTERING ORDER BY (created_at DESC, id ASC)
//
// Per-subject history reads stay within one partition; the batch jobs
// (retention, prune, geo-sync) scan with filtering, which is acceptable for
// scheduled work outside the request path.
const (
	stmtInsert = `INSERT INTO auth_logs (
		subject_bucket, subject_type, subject_id, created_at, id,
		ip_address, country, city, location,
		browser, platform, device, is_mobile,
		user_agent, referrer, metadata,
		is_new_device, is_new_location, event_level,
		login_at, logout_at, session_id, deleted_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmtSelectBySubject = `SELECT subject_bucket, subject_type, subject_id, created_at, id,
		ip_address, country, city, location,
		browser, platform, device, is_mobile,
		user_agent, referrer, metadata,
		is_new_device, is_new_location, event_level,
		login_at, logout_at, session_id, deleted_at
	FROM auth_logs
	WHERE subject_bucket = ? AND subject_type = ? AND subject_id = ?
	LIMIT ?`

	stmtSelectOlderThan = selectAllColumns + ` WHERE created_at < ? LIMIT ? ALLOW FILTERING`

	stmtSelectSuspiciousDevice   = selectAllColumns + ` WHERE is_new_device = true LIMIT ? ALLOW FILTERING`
	stmtSelectSuspiciousLocation = selectAllColumns + ` WHERE is_new_location = true LIMIT ? ALLOW FILTERING`

	stmtCloseSession = `UPDATE auth_logs SET logout_at = ?
		WHERE subject_bucket = ? AND subject_type = ? AND subject_id = ? AND created_at = ? AND id = ?`

	stmtUpdateGeo = `UPDATE auth_logs SET country = ?, city = ?, location = ?, metadata = ?
		WHERE subject_bucket = ? AND subject_type = ? AND subject_id = ? AND created_at = ? AND id = ?`

	stmtSoftDelete = `UPDATE auth_logs SET deleted_at = ?
		WHERE subject_bucket = ? AND subject_type = ? AND subject_id = ? AND created_at = ? AND id = ?`

	stmtHardDelete = `DELETE FROM auth_logs
		WHERE subject_bucket = ? AND subject_type = ? AND subject_id = ? AND created_at = ? AND id = ?`

	selectAllColumns = `SELECT subject_bucket, subject_type, subject_id, created_at, id,
		ip_address, country, city, location,
		browser, platform, device, is_mobile,
		user_agent, referrer, metadata,
		is_new_device, is_new_location, event_level,
		login_at, logout_at, session_id, deleted_at
	FROM auth_logs`
)

// ActivityRepository is the ScyllaDB implementation of
// repository.ActivityStore.
type ActivityRepository struct {
	client  *Client
	buckets *bucketing.Manager
	logger  *zap.Logger
}

func NewActivityRepository(client *Client, buckets *bucketing.Manager, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{
		client:  client,
		buckets: buckets,
		logger:  logger,
	}
}

var _ repository.ActivityStore = (*ActivityRepository)(nil)

func (r *ActivityRepository) Create(ctx context.Context, record *models.AuthLog) error {
	err := r.client.Session.Query(stmtInsert,
		record.SubjectBucket, record.SubjectType, record.SubjectID, record.CreatedAt, gocql.UUID(record.ID),
		record.IPAddress, record.Country, record.City, record.Location,
		record.Browser, record.Platform, record.Device, record.IsMobile,
		record.UserAgent, record.Referrer, record.Metadata,
		record.IsNewDevice, record.IsNewLocation, string(record.EventLevel),
		timeOrZero(record.LoginAt), timeOrZero(record.LogoutAt), record.SessionID, timeOrZero(record.DeletedAt),
	).WithContext(ctx).Exec()
	if err != nil {
		r.logger.Error("Failed to insert auth log",
			zap.String("subject", record.Subject().String()),
			zap.Error(err))
		return fmt.Errorf("failed to insert auth log: %w", err)
	}
	return nil
}

func (r *ActivityRepository) FindOpenSession(ctx context.Context, subject models.Subject, sessionID string) (*models.AuthLog, error) {
	records, err := r.ListBySubject(ctx, subject, 0)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if !rec.IsActive() {
			continue
		}
		if sessionID != "" && rec.SessionID != sessionID {
			continue
		}
		return rec, nil
	}
	return nil, repository.ErrNotFound
}

func (r *ActivityRepository) CloseSession(ctx context.Context, record *models.AuthLog, logoutAt time.Time) error {
	err := r.client.Session.Query(stmtCloseSession,
		logoutAt,
		record.SubjectBucket, record.SubjectType, record.SubjectID, record.CreatedAt, gocql.UUID(record.ID),
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	at := logoutAt
	record.LogoutAt = &at
	return nil
}

func (r *ActivityRepository) ExistsForSubject(ctx context.Context, subject models.Subject, attr repository.Attribute, value string) (bool, error) {
	records, err := r.ListBySubject(ctx, subject, 0)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		var got string
		switch attr {
		case repository.AttrIPAddress:
			got = rec.IPAddress
		case repository.AttrUserAgent:
			got = rec.UserAgent
		case repository.AttrSessionID:
			got = rec.SessionID
		}
		if got == value {
			return true, nil
		}
	}
	return false, nil
}

func (r *ActivityRepository) ListBySubject(ctx context.Context, subject models.Subject, limit int) ([]*models.AuthLog, error) {
	scanLimit := limit
	if scanLimit <= 0 {
		scanLimit = 1000
	}
	bucket := r.buckets.SubjectBucket(subject)

	iter := r.client.Session.Query(stmtSelectBySubject,
		bucket, subject.Type, subject.ID, scanLimit,
	).WithContext(ctx).Iter()

	records, err := scanRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth logs by subject: %w", err)
	}
	return records, nil
}

func (r *ActivityRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.AuthLog, error) {
	if limit <= 0 {
		limit = 1000
	}
	iter := r.client.Session.Query(stmtSelectOlderThan, cutoff, limit).WithContext(ctx).Iter()
	records, err := scanRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth logs older than cutoff: %w", err)
	}
	return records, nil
}

func (r *ActivityRepository) ListSuspicious(ctx context.Context, limit int) ([]*models.AuthLog, error) {
	if limit <= 0 {
		limit = 1000
	}

	iter := r.client.Session.Query(stmtSelectSuspiciousDevice, limit).WithContext(ctx).Iter()
	byDevice, err := scanRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list new-device logs: %w", err)
	}

	iter = r.client.Session.Query(stmtSelectSuspiciousLocation, limit).WithContext(ctx).Iter()
	byLocation, err := scanRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list new-location logs: %w", err)
	}

	seen := make(map[gocql.UUID]struct{}, len(byDevice))
	out := make([]*models.AuthLog, 0, len(byDevice)+len(byLocation))
	for _, rec := range byDevice {
		seen[gocql.UUID(rec.ID)] = struct{}{}
		out = append(out, rec)
	}
	for _, rec := range byLocation {
		if _, dup := seen[gocql.UUID(rec.ID)]; !dup {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ActivityRepository) ListMissingGeo(ctx context.Context, limit int) ([]*models.AuthLog, error) {
	if limit <= 0 {
		limit = 1000
	}
	// No server-side predicate for "country empty or city empty"; over-fetch
	// recent rows and filter client-side.
	iter := r.client.Session.Query(selectAllColumns+` LIMIT ?`, limit*4).WithContext(ctx).Iter()
	records, err := scanRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth logs for geo sync: %w", err)
	}

	var out []*models.AuthLog
	for _, rec := range records {
		if rec.IPAddress == "" {
			continue
		}
		if rec.Country == "" || rec.City == "" {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *ActivityRepository) UpdateGeo(ctx context.Context, record *models.AuthLog) error {
	err := r.client.Session.Query(stmtUpdateGeo,
		record.Country, record.City, record.Location, record.Metadata,
		record.SubjectBucket, record.SubjectType, record.SubjectID, record.CreatedAt, gocql.UUID(record.ID),
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update geo fields: %w", err)
	}
	return nil
}

func (r *ActivityRepository) SoftDelete(ctx context.Context, record *models.AuthLog) error {
	err := r.client.Session.Query(stmtSoftDelete,
		time.Now().UTC(),
		record.SubjectBucket, record.SubjectType, record.SubjectID, record.CreatedAt, gocql.UUID(record.ID),
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to soft-delete auth log: %w", err)
	}
	return nil
}

func (r *ActivityRepository) HardDelete(ctx context.Context, record *models.AuthLog) error {
	err := r.client.Session.Query(stmtHardDelete,
		record.SubjectBucket, record.SubjectType, record.SubjectID, record.CreatedAt, gocql.UUID(record.ID),
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to hard-delete auth log: %w", err)
	}
	return nil
}

func (r *ActivityRepository) CountSuspicious(ctx context.Context) (int, error) {
	records, err := r.ListSuspicious(ctx, 0)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (r *ActivityRepository) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.client.HealthCheck()
}

func scanRecords(iter *gocql.Iter) ([]*models.AuthLog, error) {
	var out []*models.AuthLog
	for {
		var (
			rec        models.AuthLog
			id         gocql.UUID
			eventLevel string
			loginAt    time.Time
			logoutAt   time.Time
			deletedAt  time.Time
		)
		ok := iter.Scan(
			&rec.SubjectBucket, &rec.SubjectType, &rec.SubjectID, &rec.CreatedAt, &id,
			&rec.IPAddress, &rec.Country, &rec.City, &rec.Location,
			&rec.Browser, &rec.Platform, &rec.Device, &rec.IsMobile,
			&rec.UserAgent, &rec.Referrer, &rec.Metadata,
			&rec.IsNewDevice, &rec.IsNewLocation, &eventLevel,
			&loginAt, &logoutAt, &rec.SessionID, &deletedAt,
		)
		if !ok {
			break
		}

		rec.ID = uuid.UUID(id)
		rec.EventLevel = models.NormalizeEventLevel(eventLevel)
		rec.LoginAt = timeOrNil(loginAt)
		rec.LogoutAt = timeOrNil(logoutAt)
		rec.DeletedAt = timeOrNil(deletedAt)

		// Soft-deleted rows stay out of every read path.
		if rec.DeletedAt == nil {
			out = append(out, &rec)
		}
	}
	if err := iter.Close(); err != nil && !errors.Is(err, gocql.ErrNotFound) {
		return nil, err
	}
	return out, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	clone := t
	return &clone
}
