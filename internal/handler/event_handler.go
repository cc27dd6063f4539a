package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"authlog-service/internal/models"
	"authlog-service/internal/repository"
	"authlog-service/internal/service"
	"authlog-service/internal/util"
)

// EventHandler exposes the activity pipeline over HTTP: host applications
// report auth events here and query per-subject history.
type EventHandler struct {
	processor *service.EventProcessor
	store     repository.ActivityStore
	logger    *zap.Logger
}

func NewEventHandler(processor *service.EventProcessor, store repository.ActivityStore, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		processor: processor,
		store:     store,
		logger:    logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// EventRequest is the body for event-reporting endpoints. SubjectType and
// SubjectID identify the authenticated principal; Identifier is the raw
// credential the client presented (failed logins have no subject yet).
type EventRequest struct {
	SubjectType string `json:"subject_type,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	Identifier  string `json:"identifier,omitempty"`
}

func (req *EventRequest) subject() models.Subject {
	return models.Subject{Type: req.SubjectType, ID: req.SubjectID}
}

// ReportLogin records a successful authentication and returns the anomaly
// verdict. A blocked login still returns 200 to the reporting application;
// the block outcome is in the body for it to enforce.
func (h *EventHandler) ReportLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	req, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	subject := req.subject()
	if subject.IsZero() {
		h.respondWithError(w, http.StatusBadRequest, errors.New("subject is required"), "Login events require a subject")
		return
	}

	result, err := h.processor.HandleLogin(ctx, subject, req.Identifier, models.RequestContextFrom(r))
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to record login")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(result, "Login recorded"))
	h.logger.Info("Login event recorded",
		util.String("subject", subject.String()),
		util.Bool("suspicious", result.Suspicious),
		util.Bool("blocked", result.Blocked != nil),
		util.Duration("duration", time.Since(startTime)))
}

// ReportLogout closes the subject's open session. Logouts with no matching
// open session succeed with a no-op message.
func (h *EventHandler) ReportLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	subject := req.subject()
	if subject.IsZero() {
		h.respondWithError(w, http.StatusBadRequest, errors.New("subject is required"), "Logout events require a subject")
		return
	}

	record, err := h.processor.HandleLogout(ctx, subject, models.RequestContextFrom(r))
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to record logout")
		return
	}
	if record == nil {
		h.respondWithJSON(w, http.StatusOK, successResponse(nil, "No open session to close"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(record, "Logout recorded"))
}

// ReportFailed records a failed authentication attempt. The attempt always
// counts toward lockout, whether or not a record is written.
func (h *EventHandler) ReportFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}

	record, err := h.processor.HandleFailed(ctx, req.Identifier, models.RequestContextFrom(r))
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to record failed login")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(record, "Failed login recorded"))
}

func (h *EventHandler) ReportPasswordReset(w http.ResponseWriter, r *http.Request) {
	h.reportPlain(w, r, "password reset", h.processor.HandlePasswordReset)
}

func (h *EventHandler) ReportReAuthenticated(w http.ResponseWriter, r *http.Request) {
	h.reportPlain(w, r, "re-authentication", h.processor.HandleReAuthenticated)
}

func (h *EventHandler) reportPlain(w http.ResponseWriter, r *http.Request, label string, handle func(ctx context.Context, subject models.Subject, rc models.RequestContext) (*models.AuthLog, error)) {
	ctx := r.Context()

	req, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	subject := req.subject()
	if subject.IsZero() {
		h.respondWithError(w, http.StatusBadRequest, errors.New("subject is required"), "Event requires a subject")
		return
	}

	record, err := handle(ctx, subject, models.RequestContextFrom(r))
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to record "+label)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(record, "Event recorded"))
}

// GetLastLogin returns the subject's most recent login record.
func (h *EventHandler) GetLastLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := subjectFromURL(r)

	record, err := repository.LastLogin(ctx, h.store, subject)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to load last login")
		return
	}
	if record == nil {
		h.respondWithError(w, http.StatusNotFound, repository.ErrNotFound, "No login recorded for subject")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(record, "Last login retrieved"))
}

// GetRecentLogins returns up to ?limit= login records, newest first.
func (h *EventHandler) GetRecentLogins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := subjectFromURL(r)

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondWithError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"), "Invalid limit")
			return
		}
		limit = parsed
	}

	records, err := repository.RecentLogins(ctx, h.store, subject, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to load logins")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(records, "Logins retrieved"))
}

// GetActiveSessions returns the subject's currently open sessions.
func (h *EventHandler) GetActiveSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := subjectFromURL(r)

	records, err := repository.ActiveSessions(ctx, h.store, subject)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to load active sessions")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(records, "Active sessions retrieved"))
}

// SubjectStats is the aggregate view returned by the stats endpoint.
type SubjectStats struct {
	LoginsToday      int  `json:"logins_today"`
	FailedLogins     int  `json:"failed_logins"`
	SuspiciousLogins int  `json:"suspicious_logins"`
	ActiveSessions   int  `json:"active_sessions"`
	MultipleSessions bool `json:"multiple_sessions"`
}

func (h *EventHandler) GetSubjectStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := subjectFromURL(r)

	today, err := repository.LoginsToday(ctx, h.store, subject)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to load subject stats")
		return
	}
	failed, err := repository.FailedLoginsCount(ctx, h.store, subject)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to load subject stats")
		return
	}
	suspicious, err := repository.SuspiciousLogins(ctx, h.store, subject)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to load subject stats")
		return
	}
	active, err := repository.ActiveSessions(ctx, h.store, subject)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to load subject stats")
		return
	}

	stats := SubjectStats{
		LoginsToday:      len(today),
		FailedLogins:     failed,
		SuspiciousLogins: len(suspicious),
		ActiveSessions:   len(active),
		MultipleSessions: len(active) > 1,
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(stats, "Subject stats retrieved"))
}

func (h *EventHandler) decodeEvent(w http.ResponseWriter, r *http.Request) (*EventRequest, bool) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return nil, false
	}
	return &req, true
}

func subjectFromURL(r *http.Request) models.Subject {
	return models.Subject{
		Type: chi.URLParam(r, "subjectType"),
		ID:   chi.URLParam(r, "subjectID"),
	}
}

func (h *EventHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *EventHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}
