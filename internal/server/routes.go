package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Stored media (downloaded and generated images)
	mux.Handle("/media/", http.StripPrefix("/media/",
		http.FileServer(http.Dir(s.app.ObjectStore.BaseDir()))))

	// API routes - Ingestion runs
	mux.HandleFunc("/api/runs", s.app.RunHandler.RunsHandler)       // GET (list), POST (start)
	mux.HandleFunc("/api/runs/", s.app.RunHandler.RunByIDHandler)   // GET /{id}
	mux.HandleFunc("/api/sources", s.app.SourcesHandler.ListHandler)

	// API routes - Content
	mux.HandleFunc("/api/feed", s.app.FeedHandler.GetFeedHandler)
	mux.HandleFunc("/api/content/", s.app.ContentHandler.ContentRoutes) // GET /{id}, POST /{id}/rerun-rewrite, /{id}/refetch-image

	// API routes - Images
	mux.HandleFunc("/api/fallback-image", s.app.ImageHandler.FallbackImageHandler)

	// API routes - Queues
	mux.HandleFunc("/api/queues", s.app.QueueHandler.StatsHandler)
	mux.HandleFunc("/api/queues/dead", s.app.QueueHandler.DeadLettersHandler)
	mux.HandleFunc("/api/queues/dead/", s.app.QueueHandler.RetryDeadLetterHandler) // POST /{id}/retry

	// API routes - Semaphores
	mux.HandleFunc("/api/semaphores", s.app.SemaphoreHandler.StatsHandler)
	mux.HandleFunc("/api/semaphores/", s.app.SemaphoreHandler.ResetHandler) // POST /{name}/reset

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Catch-all for unknown API paths
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.app.APIHandler.NotFoundHandler(w, r)
			return
		}
		http.NotFound(w, r)
	})

	return mux
}
