package service

import (
	"context"
	"fmt"
	"sync"

	"authlog-service/internal/models"
)

// SubjectLookup resolves a claimed login identifier (usually an email) to a
// subject reference. Returning a zero Subject with a nil error means "no
// such account"; callers must never leak that distinction to the client.
type SubjectLookup func(ctx context.Context, identifier string) (models.Subject, error)

// SubjectRegistry maps subject type tags to lookup functions. The pre-auth
// guard uses it to resolve the principal a login attempt claims to be,
// without ever surfacing whether the account exists.
type SubjectRegistry struct {
	mu      sync.RWMutex
	lookups map[string]SubjectLookup
}

func NewSubjectRegistry() *SubjectRegistry {
	return &SubjectRegistry{lookups: make(map[string]SubjectLookup)}
}

// Register binds a lookup for a subject type tag, replacing any previous
// binding.
func (r *SubjectRegistry) Register(subjectType string, lookup SubjectLookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[subjectType] = lookup
}

// Resolve runs the lookup for the given subject type. An unregistered type
// is an error; a registered lookup that finds no account returns a zero
// Subject and no error.
func (r *SubjectRegistry) Resolve(ctx context.Context, subjectType, identifier string) (models.Subject, error) {
	r.mu.RLock()
	lookup, ok := r.lookups[subjectType]
	r.mu.RUnlock()

	if !ok {
		return models.Subject{}, fmt.Errorf("no subject lookup registered for type %q", subjectType)
	}
	return lookup(ctx, identifier)
}
