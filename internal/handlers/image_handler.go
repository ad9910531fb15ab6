package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/models"
	"github.com/ternarybob/newswire/internal/services/images"
)

// CandidateFinder runs the cached image search path synchronously.
type CandidateFinder interface {
	FindCandidate(ctx context.Context, query string) (*models.ImageCandidate, error)
}

// ImageHandler serves ad-hoc image lookups for UI clients that need a
// picture right now and cannot wait for the pipeline.
type ImageHandler struct {
	finder CandidateFinder
	logger arbor.ILogger
}

func NewImageHandler(finder CandidateFinder) *ImageHandler {
	return &ImageHandler{
		finder: finder,
		logger: common.GetLogger(),
	}
}

// FallbackImageHandler serves GET /api/fallback-image?topic=&category=
// (title accepted as an alias for topic). It consults the search cache
// and providers only; it never generates and never uploads.
func (h *ImageHandler) FallbackImageHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = r.URL.Query().Get("title")
	}
	if topic == "" {
		WriteError(w, http.StatusBadRequest, "topic or title parameter required")
		return
	}

	query := images.BuildQuery(topic, r.URL.Query().Get("category"))

	candidate, err := h.finder.FindCandidate(r.Context(), query)
	if err != nil {
		h.logger.Debug().Err(err).Str("query", query).Msg("Fallback image lookup found nothing")
		WriteError(w, http.StatusNotFound, "No usable image found")
		return
	}

	WriteJSON(w, http.StatusOK, candidate)
}
