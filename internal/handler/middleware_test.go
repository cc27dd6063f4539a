package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"authlog-service/internal/bucketing"
	"authlog-service/internal/config"
	"authlog-service/internal/device"
	"authlog-service/internal/fingerprint"
	"authlog-service/internal/models"
	"authlog-service/internal/repository"
	"authlog-service/internal/service"
)

const guardUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type guardFixture struct {
	cfg       *config.Config
	store     *repository.MemoryStore
	limiter   *service.LoginRateLimiter
	processor *service.EventProcessor
}

func newGuardFixture(t *testing.T, mutate func(*config.Config)) *guardFixture {
	t.Helper()

	cfg := &config.Config{
		Enabled: true,
		LogEvents: config.LogEventsConfig{
			Login:       true,
			Logout:      true,
			FailedLogin: true,
		},
		SessionTrack: config.SessionTrackingConfig{
			Enabled:        true,
			PlatformMarker: "node-1",
			FingerprintTTL: time.Hour,
			Fingerprint: config.FingerprintGuardConfig{
				ValidateOnRequest: true,
				AbortOnMismatch:   true,
				RedirectTo:        "/login",
			},
		},
		Suspicion: config.SuspicionRules{
			NewDevice:   true,
			NewLocation: true,
		},
		Lockout: config.LockoutConfig{
			Enabled:         true,
			MaxAttempts:     3,
			LockoutDuration: time.Minute,
			TrackBy:         "ip",
			GenericResponse: true,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	f := &guardFixture{
		cfg:     cfg,
		store:   repository.NewMemoryStore(),
		limiter: service.NewLoginRateLimiter(repository.NewMemoryLockoutStore(), cfg.Lockout, zap.NewNop()),
	}

	var blockHandler service.BlockHandler
	if cfg.Suspicion.BlockEnabled {
		blockHandler = service.GenericBlockHandler
	}

	f.processor = service.NewEventProcessor(service.ProcessorDeps{
		Config:       cfg,
		Store:        f.store,
		Fingerprints: repository.NewMemoryFingerprintStore(),
		Devices:      device.NewParser(),
		Engine:       fingerprint.NewEngine(cfg.SessionTrack.PlatformMarker),
		Buckets:      bucketing.NewManager(8),
		Limiter:      f.limiter,
		Hooks:        service.NewHookExecutor(zap.NewNop()),
		BlockHandler: blockHandler,
		Logger:       zap.NewNop(),
	})
	return f
}

func newGuardRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "203.0.113.7:4455"
	req.Header.Set("User-Agent", guardUserAgent)
	req.Header.Set("Accept-Language", "en-US")
	return req
}

func nextRecorder(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestHeaderPrincipalResolver(t *testing.T) {
	req := newGuardRequest(http.MethodGet, "/", "")
	_, ok := HeaderPrincipalResolver{}.Principal(req)
	assert.False(t, ok)

	req.Header.Set(SubjectTypeHeader, "user")
	req.Header.Set(SubjectIDHeader, "1")
	subject, ok := HeaderPrincipalResolver{}.Principal(req)
	require.True(t, ok)
	assert.Equal(t, models.Subject{Type: "user", ID: "1"}, subject)
}

func TestVerifySessionFingerprintMatchingPasses(t *testing.T) {
	f := newGuardFixture(t, nil)
	subject := models.Subject{Type: "user", ID: "1"}

	req := newGuardRequest(http.MethodGet, "/api/v1/whatever", "")
	req.Header.Set(models.SessionHeader, "sess-1")
	req.Header.Set(SubjectTypeHeader, subject.Type)
	req.Header.Set(SubjectIDHeader, subject.ID)

	_, err := f.processor.HandleLogin(context.Background(), subject, "", models.RequestContextFrom(req))
	require.NoError(t, err)

	called := false
	mw := VerifySessionFingerprint(f.processor, f.cfg, HeaderPrincipalResolver{}, zap.NewNop())
	rr := httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestVerifySessionFingerprintMismatchAborts(t *testing.T) {
	f := newGuardFixture(t, nil)
	subject := models.Subject{Type: "user", ID: "1"}

	loginReq := newGuardRequest(http.MethodPost, "/api/v1/events/login", "")
	loginReq.Header.Set(models.SessionHeader, "sess-1")
	_, err := f.processor.HandleLogin(context.Background(), subject, "", models.RequestContextFrom(loginReq))
	require.NoError(t, err)

	// Same session, different network and device.
	req := newGuardRequest(http.MethodGet, "/api/v1/whatever", "")
	req.RemoteAddr = "198.51.100.9:4455"
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set(models.SessionHeader, "sess-1")
	req.Header.Set(SubjectTypeHeader, subject.Type)
	req.Header.Set(SubjectIDHeader, subject.ID)

	called := false
	mw := VerifySessionFingerprint(f.processor, f.cfg, HeaderPrincipalResolver{}, zap.NewNop())
	rr := httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Session integrity check failed.")
}

func TestVerifySessionFingerprintMismatchRedirects(t *testing.T) {
	f := newGuardFixture(t, func(cfg *config.Config) {
		cfg.SessionTrack.Fingerprint.AbortOnMismatch = false
	})
	subject := models.Subject{Type: "user", ID: "1"}

	loginReq := newGuardRequest(http.MethodPost, "/api/v1/events/login", "")
	loginReq.Header.Set(models.SessionHeader, "sess-1")
	_, err := f.processor.HandleLogin(context.Background(), subject, "", models.RequestContextFrom(loginReq))
	require.NoError(t, err)

	req := newGuardRequest(http.MethodGet, "/api/v1/whatever", "")
	req.RemoteAddr = "198.51.100.9:4455"
	req.Header.Set(models.SessionHeader, "sess-1")
	req.Header.Set(SubjectTypeHeader, subject.Type)
	req.Header.Set(SubjectIDHeader, subject.ID)

	called := false
	mw := VerifySessionFingerprint(f.processor, f.cfg, HeaderPrincipalResolver{}, zap.NewNop())
	rr := httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestVerifySessionFingerprintSkipsUnauthenticated(t *testing.T) {
	f := newGuardFixture(t, nil)

	req := newGuardRequest(http.MethodGet, "/health", "")
	req.Header.Set(models.SessionHeader, "sess-1")

	called := false
	mw := VerifySessionFingerprint(f.processor, f.cfg, HeaderPrincipalResolver{}, zap.NewNop())
	rr := httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)

	assert.True(t, called)
}

func TestEnforceLoginRateLimitLocked(t *testing.T) {
	f := newGuardFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.limiter.RegisterFailure(ctx, "203.0.113.7")
		require.NoError(t, err)
	}

	req := newGuardRequest(http.MethodPost, "/api/v1/events/login", `{"identifier":"a@example.com"}`)
	called := false
	mw := EnforceLoginRateLimit(f.limiter, f.cfg.Lockout, zap.NewNop())
	rr := httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestEnforceLoginRateLimitPassesWhenClean(t *testing.T) {
	f := newGuardFixture(t, nil)

	req := newGuardRequest(http.MethodPost, "/api/v1/events/login", `{"identifier":"a@example.com"}`)
	called := false
	mw := EnforceLoginRateLimit(f.limiter, f.cfg.Lockout, zap.NewNop())
	rr := httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestEnforceLoginRateLimitRedirects(t *testing.T) {
	f := newGuardFixture(t, func(cfg *config.Config) {
		cfg.Lockout.GenericResponse = false
		cfg.Lockout.RedirectTo = "/locked"
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.limiter.RegisterFailure(ctx, "203.0.113.7")
		require.NoError(t, err)
	}

	req := newGuardRequest(http.MethodPost, "/api/v1/events/login", `{"identifier":"a@example.com"}`)
	called := false
	mw := EnforceLoginRateLimit(f.limiter, f.cfg.Lockout, zap.NewNop())
	rr := httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/locked", rr.Header().Get("Location"))
}

func TestBlockSuspiciousLoginAttempt(t *testing.T) {
	f := newGuardFixture(t, func(cfg *config.Config) {
		cfg.Suspicion.BlockEnabled = true
	})
	subject := models.Subject{Type: "user", ID: "1"}

	// Known device and location for the account.
	seedReq := newGuardRequest(http.MethodPost, "/api/v1/events/login", "")
	_, err := f.processor.HandleLogin(context.Background(), subject, "", models.RequestContextFrom(seedReq))
	require.NoError(t, err)

	subjects := service.NewSubjectRegistry()
	subjects.Register("user", func(_ context.Context, identifier string) (models.Subject, error) {
		if identifier == "a@example.com" {
			return subject, nil
		}
		return models.Subject{}, nil
	})

	preAuth := config.PreAuthConfig{
		Enabled:         true,
		SubjectType:     "user",
		RequestInputKey: "email",
	}
	mw := BlockSuspiciousLoginAttempt(f.processor, subjects, preAuth, zap.NewNop())

	// A login attempt from an unknown device is stopped pre-credential.
	req := newGuardRequest(http.MethodPost, "/api/v1/events/login", `{"email":"a@example.com"}`)
	req.RemoteAddr = "198.51.100.9:4455"
	req.Header.Set("User-Agent", "curl/8.0")
	called := false
	rr := httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// The usual device sails through.
	req = newGuardRequest(http.MethodPost, "/api/v1/events/login", `{"email":"a@example.com"}`)
	called = false
	rr = httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)
	assert.True(t, called)

	// An identifier with no account behaves exactly like a clean login.
	req = newGuardRequest(http.MethodPost, "/api/v1/events/login", `{"email":"nobody@example.com"}`)
	req.RemoteAddr = "198.51.100.9:4455"
	called = false
	rr = httptest.NewRecorder()
	mw(nextRecorder(&called)).ServeHTTP(rr, req)
	assert.True(t, called)
}

func TestBlockSuspiciousLoginAttemptRestoresBody(t *testing.T) {
	f := newGuardFixture(t, nil)

	subjects := service.NewSubjectRegistry()
	subjects.Register("user", func(_ context.Context, _ string) (models.Subject, error) {
		return models.Subject{}, nil
	})
	preAuth := config.PreAuthConfig{
		Enabled:         true,
		SubjectType:     "user",
		RequestInputKey: "email",
	}

	body := `{"email":"a@example.com","password":"secret"}`
	req := newGuardRequest(http.MethodPost, "/api/v1/events/login", body)

	var downstreamBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		downstreamBody = string(data)
	})

	mw := BlockSuspiciousLoginAttempt(f.processor, subjects, preAuth, zap.NewNop())
	mw(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, body, downstreamBody)
}

func TestBlockSuspiciousLoginAttemptDisabled(t *testing.T) {
	f := newGuardFixture(t, nil)

	mw := BlockSuspiciousLoginAttempt(f.processor, service.NewSubjectRegistry(), config.PreAuthConfig{}, zap.NewNop())
	req := newGuardRequest(http.MethodPost, "/api/v1/events/login", `{"email":"a@example.com"}`)
	called := false
	mw(nextRecorder(&called)).ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, called)
}
