package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"authlog-service/internal/models"
)

// MemoryStore is an in-memory ActivityStore used in development mode and in
// tests. All operations are safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*models.AuthLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(ctx context.Context, record *models.AuthLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.records = append(s.records, &clone)
	return nil
}

func (s *MemoryStore) FindOpenSession(ctx context.Context, subject models.Subject, sessionID string) (*models.AuthLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.AuthLog
	for _, rec := range s.records {
		if rec.IsDeleted() || !rec.IsActive() {
			continue
		}
		if rec.SubjectType != subject.Type || rec.SubjectID != subject.ID {
			continue
		}
		if sessionID != "" && rec.SessionID != sessionID {
			continue
		}
		if newest == nil || laterLogin(rec, newest) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	clone := *newest
	return &clone, nil
}

func (s *MemoryStore) CloseSession(ctx context.Context, record *models.AuthLog, logoutAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID == record.ID {
			at := logoutAt
			rec.LogoutAt = &at
			record.LogoutAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ExistsForSubject(ctx context.Context, subject models.Subject, attr Attribute, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.IsDeleted() {
			continue
		}
		if rec.SubjectType != subject.Type || rec.SubjectID != subject.ID {
			continue
		}
		if attributeValue(rec, attr) == value {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListBySubject(ctx context.Context, subject models.Subject, limit int) ([]*models.AuthLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuthLog
	for _, rec := range s.records {
		if rec.IsDeleted() {
			continue
		}
		if rec.SubjectType == subject.Type && rec.SubjectID == subject.ID {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.AuthLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuthLog
	for _, rec := range s.records {
		if rec.IsDeleted() {
			continue
		}
		if rec.CreatedAt.Before(cutoff) {
			clone := *rec
			out = append(out, &clone)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) ListSuspicious(ctx context.Context, limit int) ([]*models.AuthLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuthLog
	for _, rec := range s.records {
		if rec.IsDeleted() {
			continue
		}
		if rec.IsNewDevice || rec.IsNewLocation {
			clone := *rec
			out = append(out, &clone)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) ListMissingGeo(ctx context.Context, limit int) ([]*models.AuthLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuthLog
	for _, rec := range s.records {
		if rec.IsDeleted() || rec.IPAddress == "" {
			continue
		}
		if rec.Country == "" || rec.City == "" {
			clone := *rec
			out = append(out, &clone)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateGeo(ctx context.Context, record *models.AuthLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID == record.ID {
			rec.Country = record.Country
			rec.City = record.City
			rec.Location = record.Location
			rec.Metadata = record.Metadata
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) SoftDelete(ctx context.Context, record *models.AuthLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID == record.ID {
			if rec.DeletedAt == nil {
				now := time.Now().UTC()
				rec.DeletedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) HardDelete(ctx context.Context, record *models.AuthLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records {
		if rec.ID == record.ID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) CountSuspicious(ctx context.Context) (int, error) {
	records, err := s.ListSuspicious(ctx, 0)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func attributeValue(rec *models.AuthLog, attr Attribute) string {
	switch attr {
	case AttrIPAddress:
		return rec.IPAddress
	case AttrUserAgent:
		return rec.UserAgent
	case AttrSessionID:
		return rec.SessionID
	}
	return ""
}

func sortNewestFirst(records []*models.AuthLog) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

func laterLogin(a, b *models.AuthLog) bool {
	at, bt := a.CreatedAt, b.CreatedAt
	if a.LoginAt != nil && b.LoginAt != nil {
		at, bt = *a.LoginAt, *b.LoginAt
	}
	return at.After(bt)
}
