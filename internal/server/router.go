package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pauldavis/2brain/internal/api"
	"github.com/pauldavis/2brain/internal/api/handlers"
	"github.com/pauldavis/2brain/internal/api/middleware"
)

type RouterConfig struct {
	DocumentHandler   *handlers.DocumentHandler
	SearchHandler     *handlers.SearchHandler
	IngestHandler     *handlers.IngestHandler
	AttachmentHandler *handlers.AttachmentHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024
	// Zipped exports regularly exceed the default body cap.
	const maxUploadBytes int64 = 512 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodyBytes(maxBodyBytes))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Get("/{id}/transcript", cfg.DocumentHandler.Transcript)
			r.Get("/{id}/versions", cfg.DocumentHandler.Versions)
			r.Post("/{id}/keywords", cfg.DocumentHandler.Tag)
			r.Delete("/{id}/keywords/{keywordID}", cfg.DocumentHandler.Untag)
		})

		r.Get("/keywords", cfg.DocumentHandler.Vocabulary)
		r.Get("/search", cfg.SearchHandler.Search)
		r.Get("/attachments/{id}/download", cfg.AttachmentHandler.Download)

		r.Post("/ingest/batch", cfg.IngestHandler.Batch)
		r.Get("/ingest/batches/{id}", cfg.IngestHandler.GetBatch)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodyBytes(maxUploadBytes))
		r.Post("/ingest/upload", cfg.IngestHandler.Upload)
	})

	return r
}
