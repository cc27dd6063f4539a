package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"authlog-service/internal/service"
	"authlog-service/internal/util"
)

// AdminHandler exposes the batch maintenance jobs. These endpoints belong
// behind operator-only network policy; the service itself does not
// authenticate them.
type AdminHandler struct {
	retention *service.RetentionService
	logger    *zap.Logger
}

func NewAdminHandler(retention *service.RetentionService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		retention: retention,
		logger:    logger,
	}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Post("/retention/sweep", h.RunRetentionSweep)
		r.Post("/retention/prune-suspicious", h.PruneSuspicious)
		r.Post("/geo/sync", h.SyncGeo)
	})
}

// RunRetentionSweep deletes records past the retention window.
func (h *AdminHandler) RunRetentionSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	result, err := h.retention.Sweep(ctx)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Retention sweep failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Retention sweep finished"))
	h.logger.Info("Retention sweep via HTTP",
		util.Int("deleted", result.Deleted),
		util.Duration("duration", time.Since(startTime)))
}

// PruneSuspicious deletes all anomaly-flagged records.
func (h *AdminHandler) PruneSuspicious(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.retention.PruneSuspicious(ctx)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Prune failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Suspicious records pruned"))
}

// SyncGeo backfills geo data for records missing it, up to ?limit= records.
func (h *AdminHandler) SyncGeo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondWithError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"), "Invalid limit")
			return
		}
		limit = parsed
	}

	result, err := h.retention.SyncGeo(ctx, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Geo sync failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Geo sync finished"))
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AdminHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}
