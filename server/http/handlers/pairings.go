package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cellar-service/internal/catalog"
	"cellar-service/internal/utils"
)

func (a *API) ListPairings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.store.GetWine(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	list, err := a.store.ListPairings(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, list)
}

func (a *API) CreatePairing(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewPairing
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	in.WineID = chi.URLParam(r, "id")
	p, err := a.store.CreatePairing(r.Context(), in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusCreated, p)
}

func (a *API) DeletePairing(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeletePairing(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pairingID")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
