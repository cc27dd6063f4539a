package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"authlog-service/internal/models"
)

// Engine derives a stable hash from client-identifying request attributes.
// The same (ip, user agent, accept-language, platform marker) tuple always
// yields the same hash; there is no time or random component, so a value
// stored at login can be validated on any later request in the session.
type Engine struct {
	platformMarker string
}

// NewEngine creates an engine with a stable server-side marker mixed into
// every hash. The marker must not change across requests within a session.
func NewEngine(platformMarker string) *Engine {
	return &Engine{platformMarker: platformMarker}
}

// Generate hashes the request context into a hex-encoded 256-bit digest.
func (e *Engine) Generate(rc models.RequestContext) string {
	parts := strings.Join([]string{
		rc.IP,
		rc.UserAgent,
		rc.AcceptLanguage,
		e.platformMarker,
	}, "|")

	sum := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(sum[:])
}

// Matches compares a stored fingerprint against the one derived from the
// current request context, in constant time.
func (e *Engine) Matches(stored string, rc models.RequestContext) bool {
	if stored == "" {
		return false
	}
	current := e.Generate(rc)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(current)) == 1
}
