package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"authlog-service/internal/config"
	"authlog-service/internal/models"
	"authlog-service/internal/service"
	"authlog-service/internal/util"
)

// Principal identification headers set by the host application's auth layer.
const (
	SubjectTypeHeader = "X-Subject-Type"
	SubjectIDHeader   = "X-Subject-ID"
)

const maxPeekBodySize = 1 << 20 // 1 MiB

// PrincipalResolver extracts the authenticated principal from a request.
// The second return is false for unauthenticated requests.
type PrincipalResolver interface {
	Principal(r *http.Request) (models.Subject, bool)
}

// HeaderPrincipalResolver trusts the subject headers injected by an
// upstream gateway. Deployments without a trusted gateway must swap in a
// resolver that verifies a token instead.
type HeaderPrincipalResolver struct{}

func (HeaderPrincipalResolver) Principal(r *http.Request) (models.Subject, bool) {
	subject := models.Subject{
		Type: r.Header.Get(SubjectTypeHeader),
		ID:   r.Header.Get(SubjectIDHeader),
	}
	if subject.IsZero() {
		return models.Subject{}, false
	}
	return subject, true
}

// VerifySessionFingerprint terminates sessions whose fingerprint no longer
// matches the device that logged in. Unauthenticated requests and sessions
// without a stored fingerprint pass through untouched. Store failures are
// logged and fail open; only a genuine mismatch is acted on.
func VerifySessionFingerprint(processor *service.EventProcessor, cfg *config.Config, resolver PrincipalResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guard := cfg.SessionTrack.Fingerprint
			if !cfg.SessionTrack.Enabled || !guard.ValidateOnRequest {
				next.ServeHTTP(w, r)
				return
			}

			subject, authenticated := resolver.Principal(r)
			rc := models.RequestContextFrom(r)
			if !authenticated || rc.SessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := processor.VerifySession(r.Context(), rc)
			if err != nil {
				logger.Error("session fingerprint check failed",
					util.String("subject", subject.String()),
					util.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("session fingerprint mismatch",
				util.String("subject", subject.String()),
				util.String("ip", rc.IP))

			processor.TerminateSession(r.Context(), subject, rc)
			processor.NotifyHijack(r.Context(), subject, rc)

			if guard.AbortOnMismatch {
				respondBlocked(w, http.StatusForbidden, "Session integrity check failed.")
				return
			}
			http.Redirect(w, r, guard.RedirectTo, http.StatusFound)
		})
	}
}

// EnforceLoginRateLimit rejects login attempts from identifiers that are
// currently locked out. It runs in front of the login and failed-login
// endpoints; counting failures happens in the event pipeline, not here.
func EnforceLoginRateLimit(limiter *service.LoginRateLimiter, cfg config.LockoutConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			rc := models.RequestContextFrom(r)
			identifier := peekIdentifier(r)
			key := limiter.ResolveIdentifier(rc.IP, identifier)

			locked, err := limiter.IsLockedOut(r.Context(), key)
			if err != nil {
				logger.Error("lockout check failed", util.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}
			if !locked {
				next.ServeHTTP(w, r)
				return
			}

			seconds, err := limiter.SecondsRemaining(r.Context(), key)
			if err != nil {
				logger.Warn("failed to read lockout ttl", util.ErrorField(err))
			}
			if seconds > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
			}

			if !cfg.GenericResponse && cfg.RedirectTo != "" {
				http.Redirect(w, r, cfg.RedirectTo, http.StatusFound)
				return
			}
			respondBlocked(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		})
	}
}

// BlockSuspiciousLoginAttempt stops a login before credential verification
// when the attempt would be flagged for the account it claims to be. The
// response is identical whether the account exists or not.
func BlockSuspiciousLoginAttempt(processor *service.EventProcessor, subjects *service.SubjectRegistry, cfg config.PreAuthConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			identifier := peekField(r, cfg.RequestInputKey)
			if identifier == "" {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := subjects.Resolve(r.Context(), cfg.SubjectType, identifier)
			if err != nil {
				// Resolution trouble must not leak to the client.
				logger.Warn("pre-auth subject resolution failed", util.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}

			block, err := processor.PreAuthCheck(r.Context(), subject, models.RequestContextFrom(r))
			if err != nil {
				logger.Error("pre-auth check failed", util.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}
			if block == nil {
				next.ServeHTTP(w, r)
				return
			}

			if block.IsRedirect() {
				http.Redirect(w, r, block.RedirectTo, http.StatusFound)
				return
			}
			respondBlocked(w, block.StatusCode, block.Message)
		})
	}
}

// peekIdentifier reads the login identifier out of the JSON body without
// consuming it for the downstream handler.
func peekIdentifier(r *http.Request) string {
	return peekField(r, "identifier")
}

func peekField(r *http.Request, field string) string {
	if r.Body == nil || field == "" {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBodySize))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	raw, ok := fields[field]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

func respondBlocked(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := Response{Success: false, Error: message}
	_ = json.NewEncoder(w).Encode(response)
}
