// internal/server/handlers/clusters.go

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sentinel/internal/domain/cluster"
	"sentinel/internal/service/analysis"
)

// ClusterHandler handles cluster-related HTTP requests
type ClusterHandler struct {
	store        cluster.Store
	orchestrator *analysis.Orchestrator
	logger       *zap.Logger
}

// NewClusterHandler creates a new cluster handler
func NewClusterHandler(store cluster.Store, orchestrator *analysis.Orchestrator, logger *zap.Logger) *ClusterHandler {
	return &ClusterHandler{
		store:        store,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// ListClusters returns clusters filtered by status and date range
func (h *ClusterHandler) ListClusters(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r, 30)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date parameter", err)
		return
	}

	var statuses []cluster.AcceptStatus
	if status := r.URL.Query().Get("status"); status != "" {
		statuses = append(statuses, cluster.AcceptStatus(status))
	}

	clusters, err := h.store.FindByStatus(r.Context(), statuses, from, to)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list clusters", err)
		return
	}

	respondWithJSON(w, http.StatusOK, clusters)
}

// GetCluster returns a specific cluster by ID
func (h *ClusterHandler) GetCluster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing cluster ID", nil)
		return
	}

	c, err := h.store.GetCluster(r.Context(), id)
	if err != nil {
		if errors.Is(err, cluster.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Cluster not found", nil)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to get cluster", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

// GetPending returns clusters still awaiting review
func (h *ClusterHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r, 30)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date parameter", err)
		return
	}

	clusters, err := h.store.FindByStatus(r.Context(),
		[]cluster.AcceptStatus{cluster.StatusPendingMerge, cluster.StatusPendingNew}, from, to)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list pending clusters", err)
		return
	}

	respondWithJSON(w, http.StatusOK, clusters)
}

// GetResults returns the flat per-case rows for one analysis date
func (h *ClusterHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		respondWithError(w, http.StatusBadRequest, "Missing date parameter", nil)
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date parameter", err)
		return
	}

	results, err := h.store.ResultsForDate(r.Context(), date)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load results", err)
		return
	}

	respondWithJSON(w, http.StatusOK, results)
}

// Review applies a human accept/reject decision to a pending cluster
func (h *ClusterHandler) Review(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing cluster ID", nil)
		return
	}

	var body struct {
		Decision cluster.AcceptStatus `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.orchestrator.Review(r.Context(), id, body.Decision); err != nil {
		switch {
		case errors.Is(err, cluster.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "Cluster not found", nil)
		case errors.Is(err, cluster.ErrConflict):
			respondWithError(w, http.StatusConflict, "Cluster is not pending review", nil)
		default:
			respondWithError(w, http.StatusBadRequest, "Failed to apply review decision", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"cluster_id": id,
		"decision":   string(body.Decision),
	})
}

// dateRange parses optional from/to query parameters, defaulting to
// the trailing defaultDays ending today.
func dateRange(r *http.Request, defaultDays int) (time.Time, time.Time, error) {
	now := time.Now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -defaultDays)

	if s := r.URL.Query().Get("to"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
		from = to.AddDate(0, 0, -defaultDays)
	}
	if s := r.URL.Query().Get("from"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	return from, to, nil
}
