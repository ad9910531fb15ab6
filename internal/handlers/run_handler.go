package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

const defaultRunListLimit = 50

// RunStarter kicks off an ingestion run for one source.
type RunStarter interface {
	StartRun(ctx context.Context, sourceID, category string) (*models.IngestionRun, error)
}

// RunHandler exposes ingestion run management.
type RunHandler struct {
	starter RunStarter
	runs    interfaces.RunStorage
	logger  arbor.ILogger
}

func NewRunHandler(starter RunStarter, runs interfaces.RunStorage) *RunHandler {
	return &RunHandler{
		starter: starter,
		runs:    runs,
		logger:  common.GetLogger(),
	}
}

// RunsHandler serves /api/runs: POST starts a run, GET lists recent runs.
func (h *RunHandler) RunsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.startRun(w, r)
	case http.MethodGet:
		h.listRuns(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// RunByIDHandler serves GET /api/runs/{id}.
func (h *RunHandler) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		WriteError(w, http.StatusBadRequest, "Run ID required")
		return
	}

	run, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Run not found")
			return
		}
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to load run")
		WriteError(w, http.StatusInternalServerError, "Failed to load run")
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

func (h *RunHandler) startRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID string `json:"source_id"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.SourceID == "" {
		WriteError(w, http.StatusBadRequest, "source_id is required")
		return
	}

	run, err := h.starter.StartRun(r.Context(), req.SourceID, req.Category)
	if err != nil {
		h.logger.Warn().Err(err).Str("source", req.SourceID).Msg("Run start rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, run)
}

func (h *RunHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := QueryInt(r, "limit", defaultRunListLimit)
	sourceID := r.URL.Query().Get("source")

	var (
		runs []*models.IngestionRun
		err  error
	)
	if sourceID != "" {
		runs, err = h.runs.ListBySource(r.Context(), sourceID, limit)
	} else {
		runs, err = h.runs.List(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
