package handlers

import (
	"net/http"

	"github.com/ternarybob/newswire/internal/models"
)

// DefinitionLister exposes the loaded source definitions.
type DefinitionLister interface {
	Definitions() []models.SourceDefinition
}

// SourcesHandler lists the configured news sources.
type SourcesHandler struct {
	registry DefinitionLister
}

func NewSourcesHandler(registry DefinitionLister) *SourcesHandler {
	return &SourcesHandler{registry: registry}
}

// ListHandler serves GET /api/sources.
func (h *SourcesHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	definitions := h.registry.Definitions()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sources": definitions,
		"count":   len(definitions),
	})
}
