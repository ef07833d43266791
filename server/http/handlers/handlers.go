// Package handlers serves the inventory API: wines, bodegas, documents and
// AI helpers on top of the catalog store.
package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"cellar-service/internal/ai"
	"cellar-service/internal/catalog"
	"cellar-service/internal/reconcile/model"
	"cellar-service/internal/storage"
	"cellar-service/internal/utils"
)

// API holds the collaborators of the inventory endpoints. Files and AI may be
// nil; the endpoints that need them answer 503.
type API struct {
	store     catalog.Store
	files     storage.Storage
	ai        ai.Provider
	matchOpts model.Options
	maxMemory int64
}

// NewAPI: opts are used to match extracted document wines against the catalog.
func NewAPI(store catalog.Store, files storage.Storage, provider ai.Provider, opts model.Options, maxUploadMB int) *API {
	mem := int64(maxUploadMB) << 20
	if mem <= 0 {
		mem = 32 << 20
	}
	if !model.ValidThreshold(opts.Threshold) {
		opts = model.DefaultOptions()
	}
	return &API{store: store, files: files, ai: provider, matchOpts: opts, maxMemory: mem}
}

func Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeStoreError: ошибки каталога в HTTP-коды, остальное 500 с записью в лог.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		utils.WriteError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, catalog.ErrInvalid):
		utils.WriteError(w, r, http.StatusBadRequest, "invalid", err.Error())
	case errors.Is(err, catalog.ErrInsufficientStock):
		utils.WriteError(w, r, http.StatusConflict, "insufficient_stock", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("store")
		utils.WriteError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeAIError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Warn().Err(err).Msg("ai")
	utils.WriteError(w, r, http.StatusBadGateway, "ai_failed", err.Error())
}
