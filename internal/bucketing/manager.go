package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"

	"authlog-service/internal/models"
)

// Manager assigns subjects to stable partition buckets so the activity table
// spreads across the cluster without hot partitions. The assignment is pure
// function of the subject reference; the same subject always lands in the
// same bucket.
type Manager struct {
	subjectBuckets int
	hasherPool     sync.Pool
}

func NewManager(subjectBuckets int) *Manager {
	if subjectBuckets <= 0 {
		subjectBuckets = 64
	}
	m := &Manager{subjectBuckets: subjectBuckets}

	// Pool of hash functions to avoid allocation overhead on the hot path
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// SubjectBucket returns the bucket (0 to subjectBuckets-1) for a subject.
// The zero subject (failed logins with no resolved principal) maps to
// bucket 0.
func (m *Manager) SubjectBucket(subject models.Subject) int {
	if subject.IsZero() {
		return 0
	}
	return int(m.hashKey(subject.String()) % uint64(m.subjectBuckets))
}

// SubjectBuckets returns the configured bucket count.
func (m *Manager) SubjectBuckets() int {
	return m.subjectBuckets
}

func (m *Manager) hashKey(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
