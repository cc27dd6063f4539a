package repository

import (
	"context"
	"time"

	"authlog-service/internal/models"
)

// Subject-history helpers built on ActivityStore. Each takes the store and
// subject explicitly; none of these mutate anything.

const historyScanLimit = 200

// LastLogin returns the most recent login-level record for the subject, or
// nil when there is none.
func LastLogin(ctx context.Context, store ActivityStore, subject models.Subject) (*models.AuthLog, error) {
	logins, err := RecentLogins(ctx, store, subject, 1)
	if err != nil || len(logins) == 0 {
		return nil, err
	}
	return logins[0], nil
}

// PreviousLogin returns the login before the most recent one, or nil.
func PreviousLogin(ctx context.Context, store ActivityStore, subject models.Subject) (*models.AuthLog, error) {
	logins, err := RecentLogins(ctx, store, subject, 2)
	if err != nil || len(logins) < 2 {
		return nil, err
	}
	return logins[1], nil
}

// RecentLogins returns up to count login-level records, newest first.
func RecentLogins(ctx context.Context, store ActivityStore, subject models.Subject, count int) ([]*models.AuthLog, error) {
	records, err := store.ListBySubject(ctx, subject, historyScanLimit)
	if err != nil {
		return nil, err
	}
	logins := make([]*models.AuthLog, 0, count)
	for _, rec := range records {
		if rec.EventLevel != models.EventLogin {
			continue
		}
		logins = append(logins, rec)
		if len(logins) == count {
			break
		}
	}
	return logins, nil
}

// LoginsToday returns login-level records whose login time falls on the
// current UTC date.
func LoginsToday(ctx context.Context, store ActivityStore, subject models.Subject) ([]*models.AuthLog, error) {
	records, err := store.ListBySubject(ctx, subject, historyScanLimit)
	if err != nil {
		return nil, err
	}
	today := time.Now().UTC().Format("2006-01-02")
	var out []*models.AuthLog
	for _, rec := range records {
		if rec.EventLevel != models.EventLogin || rec.LoginAt == nil {
			continue
		}
		if rec.LoginAt.UTC().Format("2006-01-02") == today {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FailedLoginsCount counts failed-level records attached to the subject.
func FailedLoginsCount(ctx context.Context, store ActivityStore, subject models.Subject) (int, error) {
	records, err := store.ListBySubject(ctx, subject, historyScanLimit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range records {
		if rec.EventLevel == models.EventFailed {
			count++
		}
	}
	return count, nil
}

// SuspiciousLogins returns the subject's records flagged as new-device or
// new-location.
func SuspiciousLogins(ctx context.Context, store ActivityStore, subject models.Subject) ([]*models.AuthLog, error) {
	records, err := store.ListBySubject(ctx, subject, historyScanLimit)
	if err != nil {
		return nil, err
	}
	var out []*models.AuthLog
	for _, rec := range records {
		if rec.IsNewDevice || rec.IsNewLocation {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ActiveSessions returns login-level records that have not been logged out.
func ActiveSessions(ctx context.Context, store ActivityStore, subject models.Subject) ([]*models.AuthLog, error) {
	records, err := store.ListBySubject(ctx, subject, historyScanLimit)
	if err != nil {
		return nil, err
	}
	var out []*models.AuthLog
	for _, rec := range records {
		if rec.IsActive() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// HasMultipleSessions reports whether the subject holds more than one open
// session.
func HasMultipleSessions(ctx context.Context, store ActivityStore, subject models.Subject) (bool, error) {
	sessions, err := ActiveSessions(ctx, store, subject)
	if err != nil {
		return false, err
	}
	return len(sessions) > 1, nil
}

// InactiveSince reports whether the subject's most recent login is older
// than the given number of days. Subjects with no login at all count as
// inactive.
func InactiveSince(ctx context.Context, store ActivityStore, subject models.Subject, days int) (bool, error) {
	last, err := LastLogin(ctx, store, subject)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return last.CreatedAt.Before(cutoff), nil
}
