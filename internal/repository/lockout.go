package repository

import (
	"context"
	"sync"
	"time"
)

// LockoutStore keeps failed-attempt counters and lock flags for login
// throttling. Keys are opaque identifiers produced by the rate limiter
// (an IP, an email, or a combination, depending on configuration).
type LockoutStore interface {
	// RegisterAttempt increments the attempt counter for key and refreshes
	// its expiry window. It returns the new attempt count.
	RegisterAttempt(ctx context.Context, key string, window time.Duration) (int64, error)

	// Lock marks key as locked out for the given duration.
	Lock(ctx context.Context, key string, duration time.Duration) error

	// IsLocked reports whether key is currently locked out.
	IsLocked(ctx context.Context, key string) (bool, error)

	// LockTTL returns the remaining lockout time for key, or zero when the
	// key is not locked.
	LockTTL(ctx context.Context, key string) (time.Duration, error)

	// Attempts returns the current attempt count for key.
	Attempts(ctx context.Context, key string) (int64, error)

	// Clear removes both the attempt counter and the lock flag for key.
	Clear(ctx context.Context, key string) error
}

// FingerprintStore persists per-session request fingerprints used for
// hijack detection.
type FingerprintStore interface {
	Save(ctx context.Context, sessionID, fingerprint string, ttl time.Duration) error

	// Get returns the stored fingerprint for sessionID, or the empty string
	// when none exists.
	Get(ctx context.Context, sessionID string) (string, error)

	Delete(ctx context.Context, sessionID string) error
}

type lockoutEntry struct {
	attempts    int64
	attemptsExp time.Time
	lockedUntil time.Time
}

// MemoryLockoutStore is an in-process LockoutStore for single-node
// deployments and tests.
type MemoryLockoutStore struct {
	mu      sync.Mutex
	entries map[string]*lockoutEntry
	now     func() time.Time
}

func NewMemoryLockoutStore() *MemoryLockoutStore {
	return &MemoryLockoutStore{
		entries: make(map[string]*lockoutEntry),
		now:     time.Now,
	}
}

var _ LockoutStore = (*MemoryLockoutStore)(nil)

func (s *MemoryLockoutStore) RegisterAttempt(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.attemptsExp) {
		// Counter window elapsed; keep any active lock.
		entry = &lockoutEntry{lockedUntil: entryLock(entry)}
		s.entries[key] = entry
	}
	entry.attempts++
	entry.attemptsExp = now.Add(window)
	return entry.attempts, nil
}

func (s *MemoryLockoutStore) Lock(_ context.Context, key string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &lockoutEntry{}
		s.entries[key] = entry
	}
	entry.lockedUntil = s.now().Add(duration)
	return nil
}

func (s *MemoryLockoutStore) IsLocked(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	return s.now().Before(entry.lockedUntil), nil
}

func (s *MemoryLockoutStore) LockTTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	remaining := entry.lockedUntil.Sub(s.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (s *MemoryLockoutStore) Attempts(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.attemptsExp) {
		return 0, nil
	}
	return entry.attempts, nil
}

func (s *MemoryLockoutStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func entryLock(e *lockoutEntry) time.Time {
	if e == nil {
		return time.Time{}
	}
	return e.lockedUntil
}

// MemoryFingerprintStore is an in-process FingerprintStore for
// single-node deployments and tests. TTLs are honored lazily on read.
type MemoryFingerprintStore struct {
	mu      sync.RWMutex
	entries map[string]fingerprintEntry
	now     func() time.Time
}

type fingerprintEntry struct {
	value   string
	expires time.Time
}

func NewMemoryFingerprintStore() *MemoryFingerprintStore {
	return &MemoryFingerprintStore{
		entries: make(map[string]fingerprintEntry),
		now:     time.Now,
	}
}

var _ FingerprintStore = (*MemoryFingerprintStore)(nil)

func (s *MemoryFingerprintStore) Save(_ context.Context, sessionID, fingerprint string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = s.now().Add(ttl)
	}
	s.entries[sessionID] = fingerprintEntry{value: fingerprint, expires: expires}
	return nil
}

func (s *MemoryFingerprintStore) Get(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return "", nil
	}
	if !entry.expires.IsZero() && s.now().After(entry.expires) {
		return "", nil
	}
	return entry.value, nil
}

func (s *MemoryFingerprintStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)
	return nil
}
