package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cellar-service/internal/catalog"
	"cellar-service/internal/utils"
)

func (a *API) ListBodegas(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListBodegas(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, list)
}

func (a *API) GetBodega(w http.ResponseWriter, r *http.Request) {
	b, err := a.store.GetBodega(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, b)
}

func (a *API) CreateBodega(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewBodega
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	b, err := a.store.CreateBodega(r.Context(), in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusCreated, b)
}

func (a *API) UpdateBodega(w http.ResponseWriter, r *http.Request) {
	var p catalog.BodegaPatch
	if err := utils.DecodeJSON(r, &p); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	b, err := a.store.UpdateBodega(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, b)
}
