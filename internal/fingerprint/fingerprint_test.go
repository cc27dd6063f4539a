package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"authlog-service/internal/models"
)

func baseContext() models.RequestContext {
	return models.RequestContext{
		IP:             "203.0.113.7",
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "en-US",
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	engine := NewEngine("node-1")

	first := engine.Generate(baseContext())
	second := engine.Generate(baseContext())

	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex-encoded sha256
}

func TestGenerateChangesPerField(t *testing.T) {
	engine := NewEngine("node-1")
	base := engine.Generate(baseContext())

	tests := []struct {
		name   string
		mutate func(*models.RequestContext)
	}{
		{"different ip", func(rc *models.RequestContext) { rc.IP = "198.51.100.9" }},
		{"different user agent", func(rc *models.RequestContext) { rc.UserAgent = "curl/8.0" }},
		{"different accept-language", func(rc *models.RequestContext) { rc.AcceptLanguage = "de-DE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := baseContext()
			tt.mutate(&rc)
			assert.NotEqual(t, base, engine.Generate(rc))
		})
	}
}

func TestGenerateChangesWithPlatformMarker(t *testing.T) {
	a := NewEngine("node-1").Generate(baseContext())
	b := NewEngine("node-2").Generate(baseContext())
	assert.NotEqual(t, a, b)
}

func TestMatches(t *testing.T) {
	engine := NewEngine("node-1")
	stored := engine.Generate(baseContext())

	assert.True(t, engine.Matches(stored, baseContext()))

	changed := baseContext()
	changed.IP = "198.51.100.9"
	assert.False(t, engine.Matches(stored, changed))
}

func TestMatchesEmptyStored(t *testing.T) {
	engine := NewEngine("node-1")
	assert.False(t, engine.Matches("", baseContext()))
}
