package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"authlog-service/internal/config"
	"authlog-service/internal/models"
	"authlog-service/internal/service"
	"authlog-service/internal/util"
)

// requireHTTPS rejects any request that wasn't made over TLS.
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			w.Write([]byte(`{"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RouterDeps carries everything the router wires together.
type RouterDeps struct {
	Config    *config.Config
	Events    *EventHandler
	Admin     *AdminHandler
	Processor *service.EventProcessor
	Subjects  *service.SubjectRegistry
	Resolver  PrincipalResolver
	Logger    *zap.Logger
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
func NewRouter(deps RouterDeps) chi.Router {
	router := chi.NewRouter()
	cfg := deps.Config
	logger := deps.Logger

	if cfg.Server.EnableTLS {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", models.SessionHeader, SubjectTypeHeader, SubjectIDHeader},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Session integrity runs on every authenticated request.
	router.Use(VerifySessionFingerprint(deps.Processor, cfg, deps.Resolver, logger))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"authlog-service"}`))
	})

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		// The login-path guards wrap only the endpoints that take credentials.
		r.Group(func(guarded chi.Router) {
			guarded.Use(EnforceLoginRateLimit(deps.Processor.Limiter(), cfg.Lockout, logger))
			guarded.Use(BlockSuspiciousLoginAttempt(deps.Processor, deps.Subjects, cfg.PreAuth, logger))
			guarded.Post("/events/login", deps.Events.ReportLogin)
			guarded.Post("/events/failed", deps.Events.ReportFailed)
		})

		r.Post("/events/logout", deps.Events.ReportLogout)
		r.Post("/events/password-reset", deps.Events.ReportPasswordReset)
		r.Post("/events/re-authenticated", deps.Events.ReportReAuthenticated)

		r.Route("/subjects/{subjectType}/{subjectID}", func(sr chi.Router) {
			sr.Get("/last-login", deps.Events.GetLastLogin)
			sr.Get("/logins", deps.Events.GetRecentLogins)
			sr.Get("/active-sessions", deps.Events.GetActiveSessions)
			sr.Get("/stats", deps.Events.GetSubjectStats)
		})

		deps.Admin.RegisterRoutes(r)
	})

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
