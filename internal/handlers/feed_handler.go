package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
)

const defaultFeedLimit = 20

// feedEntry is the reader-facing projection of a content item: the best
// available title and summary regardless of pipeline progress.
type feedEntry struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Category    string    `json:"category,omitempty"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`

	EnrichmentStatus models.EnrichmentStatus `json:"enrichment_status"`
	RewriteStatus    models.RewriteStatus    `json:"rewrite_status"`
	ImageStatus      models.ImageStatus      `json:"image_status"`
}

// FeedHandler serves the paginated content feed.
type FeedHandler struct {
	content interfaces.ContentStorage
	logger  arbor.ILogger
}

func NewFeedHandler(content interfaces.ContentStorage) *FeedHandler {
	return &FeedHandler{
		content: content,
		logger:  common.GetLogger(),
	}
}

// GetFeedHandler serves GET /api/feed with cursor pagination. The
// cursor is opaque and encodes the created_at and id of the last entry
// from the previous page, so same-timestamp items never fall between
// pages.
func (h *FeedHandler) GetFeedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := interfaces.FeedOptions{
		SourceID: r.URL.Query().Get("source"),
		Category: r.URL.Query().Get("category"),
		Limit:    QueryInt(r, "limit", defaultFeedLimit),
	}

	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, cursorID, err := decodeFeedCursor(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid cursor")
			return
		}
		opts.Cursor = cursor
		opts.CursorID = cursorID
	}

	items, err := h.content.Feed(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load feed")
		WriteError(w, http.StatusInternalServerError, "Failed to load feed")
		return
	}

	entries := make([]feedEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, projectItem(item))
	}

	response := map[string]interface{}{
		"items": entries,
		"count": len(entries),
	}
	if len(items) == opts.Limit && len(items) > 0 {
		last := items[len(items)-1]
		response["next_cursor"] = encodeFeedCursor(last.CreatedAt, last.ID)
	}

	WriteJSON(w, http.StatusOK, response)
}

func encodeFeedCursor(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeFeedCursor(raw string) (time.Time, string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode cursor: %w", err)
	}

	nanosPart, id, _ := strings.Cut(string(decoded), "|")
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse cursor timestamp: %w", err)
	}
	return time.Unix(0, nanos), id, nil
}

func projectItem(item *models.ContentItem) feedEntry {
	return feedEntry{
		ID:               item.ID,
		SourceID:         item.SourceID,
		Category:         item.SourceCategory,
		Title:            item.BestTitle(),
		Summary:          item.BestSummary(),
		SourceURL:        item.SourceURL,
		ImageURL:         item.ImageStorageURL,
		PublishedAt:      item.PublishedAt,
		CreatedAt:        item.CreatedAt,
		EnrichmentStatus: item.EnrichmentStatus,
		RewriteStatus:    item.RewriteStatus,
		ImageStatus:      item.ImageStatus,
	}
}
