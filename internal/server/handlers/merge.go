// internal/server/handlers/merge.go

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sentinel/internal/domain/cluster"
	"sentinel/internal/service/merge"
)

// MergeHandler handles merge-related HTTP requests
type MergeHandler struct {
	engine *merge.Engine
	logger *zap.Logger
}

// NewMergeHandler creates a new merge handler
func NewMergeHandler(engine *merge.Engine, logger *zap.Logger) *MergeHandler {
	return &MergeHandler{
		engine: engine,
		logger: logger,
	}
}

// RunMerge triggers one merge pass
func (h *MergeHandler) RunMerge(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Run(r.Context())
	if err != nil {
		h.logger.Error("merge run failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Merge run failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// Approve resolves a pending manual merge by absorbing the cluster
func (h *MergeHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.engine.Approve, "approved")
}

// Decline resolves a pending manual merge by clearing the marker
func (h *MergeHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.engine.Decline, "declined")
}

func (h *MergeHandler) resolve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error, outcome string) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "Missing cluster ID", nil)
		return
	}

	if err := op(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, cluster.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "Cluster not found", nil)
		case errors.Is(err, cluster.ErrConflict):
			respondWithError(w, http.StatusConflict, "Cluster has no pending merge", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to resolve merge", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"cluster_id": id,
		"outcome":    outcome,
	})
}
