package bucketing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"authlog-service/internal/models"
)

func TestSubjectBucketStable(t *testing.T) {
	manager := NewManager(64)
	subject := models.Subject{Type: "user", ID: "42"}

	first := manager.SubjectBucket(subject)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, manager.SubjectBucket(subject))
	}
}

func TestSubjectBucketRange(t *testing.T) {
	manager := NewManager(16)

	for _, id := range []string{"1", "2", "3", "abc", "def", "user@example.com"} {
		bucket := manager.SubjectBucket(models.Subject{Type: "user", ID: id})
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 16)
	}
}

func TestZeroSubjectBucket(t *testing.T) {
	manager := NewManager(64)
	assert.Equal(t, 0, manager.SubjectBucket(models.Subject{}))
}

func TestDefaultBucketCount(t *testing.T) {
	manager := NewManager(0)
	assert.Equal(t, 64, manager.SubjectBuckets())
}
