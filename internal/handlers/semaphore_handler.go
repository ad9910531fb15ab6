package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/interfaces"
)

// SemaphoreHandler exposes the DB-concurrency semaphores for
// observability and operator recovery after a crash leaves slots held.
type SemaphoreHandler struct {
	semaphores map[string]interfaces.Semaphore
	logger     arbor.ILogger
}

func NewSemaphoreHandler(semaphores map[string]interfaces.Semaphore) *SemaphoreHandler {
	return &SemaphoreHandler{
		semaphores: semaphores,
		logger:     common.GetLogger(),
	}
}

// StatsHandler serves GET /api/semaphores.
func (h *SemaphoreHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	names := make([]string, 0, len(h.semaphores))
	for name := range h.semaphores {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := make([]interfaces.SemaphoreStats, 0, len(names))
	for _, name := range names {
		s, err := h.semaphores[name].Stats(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Str("semaphore", name).Msg("Failed to read semaphore stats")
			WriteError(w, http.StatusInternalServerError, "Failed to read semaphore stats")
			return
		}
		stats = append(stats, s)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"semaphores": stats})
}

// ResetHandler serves POST /api/semaphores/{name}/reset. Resetting
// while workers are mid-write releases slots they still hold; it is an
// operator recovery tool, not routine maintenance.
func (h *SemaphoreHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/semaphores/")
	name := strings.TrimSuffix(rest, "/reset")
	if name == "" || name == rest {
		WriteError(w, http.StatusBadRequest, "Semaphore name required")
		return
	}

	sem, ok := h.semaphores[name]
	if !ok {
		WriteError(w, http.StatusNotFound, "Unknown semaphore")
		return
	}

	if err := sem.Reset(r.Context()); err != nil {
		h.logger.Error().Err(err).Str("semaphore", name).Msg("Semaphore reset failed")
		WriteError(w, http.StatusInternalServerError, "Semaphore reset failed")
		return
	}

	h.logger.Warn().Str("semaphore", name).Msg("Semaphore forcibly reset")
	WriteSuccess(w, "Semaphore reset")
}
