package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
)

const defaultDeadLetterLimit = 50

// QueueHandler exposes queue depths and dead-letter management.
type QueueHandler struct {
	queue  interfaces.QueueManager
	logger arbor.ILogger
}

func NewQueueHandler(queue interfaces.QueueManager) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		logger: common.GetLogger(),
	}
}

// StatsHandler serves GET /api/queues.
func (h *QueueHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read queue stats")
		WriteError(w, http.StatusInternalServerError, "Failed to read queue stats")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"queues": stats})
}

// DeadLettersHandler serves GET /api/queues/dead.
func (h *QueueHandler) DeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := QueryInt(r, "limit", defaultDeadLetterLimit)
	dead, err := h.queue.DeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list dead letters")
		WriteError(w, http.StatusInternalServerError, "Failed to list dead letters")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messages": dead,
		"count":    len(dead),
	})
}

// RetryDeadLetterHandler serves POST /api/queues/dead/{id}/retry.
func (h *QueueHandler) RetryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/queues/dead/")
	id := strings.TrimSuffix(rest, "/retry")
	if id == "" || id == rest {
		WriteError(w, http.StatusBadRequest, "Dead letter ID required")
		return
	}

	if err := h.queue.RetryDeadLetter(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("id", id).Msg("Dead letter retry failed")
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info().Str("id", id).Msg("Dead letter requeued")
	WriteSuccess(w, "Message requeued")
}
