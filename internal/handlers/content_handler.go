package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

// ContentHandler exposes per-item admin operations: forcing a stage to
// run again after a prompt change or a bad image.
type ContentHandler struct {
	content interfaces.ContentStorage
	queue   interfaces.Enqueuer
	logger  arbor.ILogger
}

func NewContentHandler(content interfaces.ContentStorage, queue interfaces.Enqueuer) *ContentHandler {
	return &ContentHandler{
		content: content,
		queue:   queue,
		logger:  common.GetLogger(),
	}
}

// ContentRoutes dispatches /api/content/{id} and its action sub-paths.
func (h *ContentHandler) ContentRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/content/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.getItem(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "rerun-rewrite":
		h.rerunStage(w, r, parts[0], models.StageRewrite)
	case len(parts) == 2 && parts[1] == "refetch-image":
		h.rerunStage(w, r, parts[0], models.StageImage)
	default:
		WriteError(w, http.StatusNotFound, "Unknown content route")
	}
}

func (h *ContentHandler) getItem(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	item, err := h.content.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Content item not found")
			return
		}
		h.logger.Error().Err(err).Str("content_id", id).Msg("Failed to load content item")
		WriteError(w, http.StatusInternalServerError, "Failed to load content item")
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

// rerunStage resets the stage state and enqueues a fresh message so the
// worker picks the item up again.
func (h *ContentHandler) rerunStage(w http.ResponseWriter, r *http.Request, id string, stage models.Stage) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	item, err := h.content.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Content item not found")
			return
		}
		h.logger.Error().Err(err).Str("content_id", id).Msg("Failed to load content item")
		WriteError(w, http.StatusInternalServerError, "Failed to load content item")
		return
	}

	switch stage {
	case models.StageRewrite:
		item.ResetRewrite()
	case models.StageImage:
		item.ResetImage()
	default:
		WriteError(w, http.StatusBadRequest, "Stage cannot be rerun")
		return
	}

	if err := h.content.Update(r.Context(), item); err != nil {
		h.logger.Error().Err(err).Str("content_id", id).Msg("Failed to reset stage state")
		WriteError(w, http.StatusInternalServerError, "Failed to reset stage state")
		return
	}

	msg, err := models.NewItemMessage(common.NewJobID(), stage, models.ItemPayload{ContentID: id})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to build queue message")
		return
	}
	if err := h.queue.Enqueue(r.Context(), msg); err != nil {
		h.logger.Error().Err(err).Str("content_id", id).Msg("Failed to enqueue stage rerun")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue stage rerun")
		return
	}

	h.logger.Info().Str("content_id", id).Str("stage", string(stage)).Msg("Stage rerun enqueued")
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":     "queued",
		"content_id": id,
		"stage":      string(stage),
	})
}
