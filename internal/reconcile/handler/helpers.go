package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"cellar-service/internal/catalog"
	"cellar-service/internal/reconcile/session"
	"cellar-service/internal/utils"
)

// writeSessionError maps workflow errors to HTTP answers.
func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidState):
		utils.WriteError(w, r, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, session.ErrNothingSelected):
		utils.WriteError(w, r, http.StatusConflict, "nothing_selected", "select at least one matched row")
	case errors.Is(err, session.ErrRowOutOfRange):
		utils.WriteError(w, r, http.StatusBadRequest, "bad_index", err.Error())
	case errors.Is(err, catalog.ErrInvalid):
		utils.WriteError(w, r, http.StatusBadRequest, "invalid", err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		utils.WriteError(w, r, http.StatusNotFound, "not_found", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("reconcile")
		utils.WriteError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
