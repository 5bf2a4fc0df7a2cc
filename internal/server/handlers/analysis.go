// internal/server/handlers/analysis.go

package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"sentinel/internal/config"
	"sentinel/internal/domain/cluster"
	"sentinel/internal/service/analysis"
)

// AnalysisHandler handles analysis-related HTTP requests
type AnalysisHandler struct {
	orchestrator *analysis.Orchestrator
	processing   cluster.ProcessingStore
	cfg          config.Config
	logger       *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(orchestrator *analysis.Orchestrator, processing cluster.ProcessingStore, cfg config.Config, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		orchestrator: orchestrator,
		processing:   processing,
		cfg:          cfg,
		logger:       logger,
	}
}

// RunAnalysis triggers one analysis invocation
func (h *AnalysisHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.Run(r.Context())
	if err != nil {
		h.logger.Error("analysis run failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Analysis run failed", err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetStatus returns the processing history
func (h *AnalysisHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	records, err := h.processing.Summary(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load processing status", err)
		return
	}

	type record struct {
		AnalysisInputDate string `json:"analysis_input_date"`
		TotalClusters     int    `json:"total_clusters"`
		TotalCases        int    `json:"total_cases"`
		ProcessedAt       string `json:"processed_at"`
	}

	out := struct {
		DatesProcessed int      `json:"dates_processed"`
		LastDate       string   `json:"last_date,omitempty"`
		Records        []record `json:"records"`
	}{
		DatesProcessed: len(records),
		Records:        make([]record, 0, len(records)),
	}
	if len(records) > 0 {
		out.LastDate = records[0].AnalysisInputDate.Format("2006-01-02")
	}
	for _, rec := range records {
		out.Records = append(out.Records, record{
			AnalysisInputDate: rec.AnalysisInputDate.Format("2006-01-02"),
			TotalClusters:     rec.TotalClusters,
			TotalCases:        rec.TotalCases,
			ProcessedAt:       rec.ProcessedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	respondWithJSON(w, http.StatusOK, out)
}

// GetConfig returns the active clustering configuration
func (h *AnalysisHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"geocoding_threshold_pct":    h.cfg.Clustering.GeocodingThresholdPct,
		"date_floor_days":            h.cfg.Clustering.DateFloorDays,
		"time_window_days":           h.cfg.Clustering.TimeWindowDays,
		"min_cluster_size":           h.cfg.Clustering.MinClusterSize,
		"gis_radius_meters":          h.cfg.Clustering.GISRadiusMeters,
		"match_lookback_days":        h.cfg.Clustering.MatchLookbackDays,
		"accept_distance_meters":     h.cfg.Clustering.AcceptDistanceMeters,
		"merge_distance_meters":      h.cfg.Clustering.MergeDistanceMeters,
		"auto_accept_timeout_days":   h.cfg.Clustering.AutoAcceptTimeoutDays,
		"merge_window_days":          h.cfg.Merge.WindowDays,
		"merge_auto_threshold":       h.cfg.Merge.AutoMergeThreshold,
		"merge_review_threshold":     h.cfg.Merge.ReviewThreshold,
		"merge_max_pending_ratio":    h.cfg.Merge.MaxPendingRatio,
		"merge_eligibility_lookback": h.cfg.Merge.EligibilityLookbackDays,
	})
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil && code < 500 {
		response["detail"] = err.Error()
	}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}
