package repository

import (
	"context"
	"errors"
	"time"

	"authlog-service/internal/models"
)

// ErrNotFound is returned when no activity record matches a point lookup.
var ErrNotFound = errors.New("activity record not found")

// Attribute names a record field used for prior-history existence checks.
type Attribute string

const (
	AttrIPAddress Attribute = "ip_address"
	AttrUserAgent Attribute = "user_agent"
	AttrSessionID Attribute = "session_id"
)

// ActivityStore is the persistence abstraction for activity records.
// Implementations must treat records as immutable apart from the single
// logout-at update, the geo re-sync update, and soft deletion. Reads exclude
// soft-deleted records.
type ActivityStore interface {
	// Create persists a new record. The record's ID, bucket, and CreatedAt
	// must already be assigned.
	Create(ctx context.Context, record *models.AuthLog) error

	// FindOpenSession returns the most recent login-level record for the
	// subject with a null logout time. When sessionID is non-empty the match
	// is further restricted to that session. Returns ErrNotFound when no
	// open record exists.
	FindOpenSession(ctx context.Context, subject models.Subject, sessionID string) (*models.AuthLog, error)

	// CloseSession sets the logout timestamp on an open record.
	CloseSession(ctx context.Context, record *models.AuthLog, logoutAt time.Time) error

	// ExistsForSubject reports whether any prior record for the subject
	// carries the given attribute value.
	ExistsForSubject(ctx context.Context, subject models.Subject, attr Attribute, value string) (bool, error)

	// ListBySubject returns the subject's records, newest first.
	ListBySubject(ctx context.Context, subject models.Subject, limit int) ([]*models.AuthLog, error)

	// ListOlderThan returns records created before the cutoff, up to limit.
	// Soft-deleted records are excluded, which keeps the retention sweep
	// idempotent.
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.AuthLog, error)

	// ListSuspicious returns records flagged as new-device or new-location.
	ListSuspicious(ctx context.Context, limit int) ([]*models.AuthLog, error)

	// ListMissingGeo returns records that have an IP but no resolved country
	// or city, for the geo re-sync job.
	ListMissingGeo(ctx context.Context, limit int) ([]*models.AuthLog, error)

	// UpdateGeo rewrites the geo-derived fields of an existing record.
	UpdateGeo(ctx context.Context, record *models.AuthLog) error

	SoftDelete(ctx context.Context, record *models.AuthLog) error
	HardDelete(ctx context.Context, record *models.AuthLog) error

	CountSuspicious(ctx context.Context) (int, error)

	HealthCheck(ctx context.Context) error
}
