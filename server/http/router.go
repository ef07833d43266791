package serverhttp

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"cellar-service/internal/config"
	"cellar-service/internal/middleware"
	recHnd "cellar-service/internal/reconcile/handler"
	"cellar-service/server/http/handlers"
)

func NewRouter(cfg config.Config, logger zerolog.Logger, api *handlers.API, rec *recHnd.Handler) *chi.Mux {
	r := chi.NewRouter()

	// порядок важен: recover -> requestID -> logging -> cors -> limit
	r.Use(middleware.Recover(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))
	r.Use(middleware.LimitBytes(int64(cfg.MaxUploadMB) * 1024 * 1024))

	// health-check
	r.Get("/health", handlers.Health)

	r.Route("/wines", func(r chi.Router) {
		r.Get("/", api.ListWines)
		r.Post("/", api.CreateWine)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", api.GetWine)
			r.Put("/cost", api.UpdateCost)
			r.Put("/list-price", api.UpdateListPrice)
			r.Post("/photo", api.UploadPhoto)
			r.Post("/stock", api.AdjustStock)
			r.Get("/history", api.History)
			r.Post("/description", api.Describe)
			r.Get("/pairings", api.ListPairings)
			r.Post("/pairings", api.CreatePairing)
			r.Delete("/pairings/{pairingID}", api.DeletePairing)
		})
	})

	r.Route("/bodegas", func(r chi.Router) {
		r.Get("/", api.ListBodegas)
		r.Post("/", api.CreateBodega)
		r.Get("/{id}", api.GetBodega)
		r.Patch("/{id}", api.UpdateBodega)
	})

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", api.ListDocuments)
		r.Post("/", api.UploadDocument)
		r.Post("/{id}/extract", api.ExtractDocument)
	})

	// локальное хранилище отдаёт файлы само; у S3 свой публичный URL
	if cfg.StorageDriver == "" || cfg.StorageDriver == "local" {
		r.Get("/files/*", api.Files)
	}

	// сверка прайсов поставщиков
	r.Mount("/reconcile", rec.Routes())

	return r
}
