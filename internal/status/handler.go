// Package status exposes a read-only HTTP surface over processing
// state: run summaries, per-location validation, and epoch coverage.
package status

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
)

// Handler serves the status API.
type Handler struct {
	store nearby.Store
}

// NewHandler creates a Handler over the given store.
func NewHandler(store nearby.Store) *Handler {
	return &Handler{store: store}
}

// Router builds the chi router with CORS enabled for browser dashboards.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.health)
	r.Get("/status/{dataYear}", h.summary)
	r.Get("/status/{dataYear}/completeness", h.completeness)
	r.Get("/validate/{dataYear}/{locationID}", h.validate)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	dataYear, ok := intParam(w, r, "dataYear")
	if !ok {
		return
	}
	summary, err := h.store.Summary(r.Context(), dataYear)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) completeness(w http.ResponseWriter, r *http.Request) {
	dataYear, ok := intParam(w, r, "dataYear")
	if !ok {
		return
	}
	c, err := h.store.ValidateCompleteness(r.Context(), dataYear)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	dataYear, ok := intParam(w, r, "dataYear")
	if !ok {
		return
	}
	locationID, err := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid locationID"})
		return
	}
	result, err := h.store.Validate(r.Context(), locationID, dataYear)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("status handler error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
