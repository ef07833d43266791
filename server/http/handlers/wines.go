package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"cellar-service/internal/ai"
	"cellar-service/internal/catalog"
	"cellar-service/internal/storage"
	"cellar-service/internal/utils"
)

func (a *API) ListWines(w http.ResponseWriter, r *http.Request) {
	wines, err := a.store.ListWines(r.Context(), catalog.WineFilter{
		Type:   r.URL.Query().Get("type"),
		Island: r.URL.Query().Get("island"),
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, wines)
}

func (a *API) GetWine(w http.ResponseWriter, r *http.Request) {
	wine, err := a.store.GetWine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, wine)
}

func (a *API) CreateWine(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewWine
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	id, err := a.store.CreateWine(r.Context(), in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	wine, err := a.store.GetWine(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusCreated, wine)
}

// UpdateCost: ручная правка себестоимости, старое значение уходит в историю.
func (a *API) UpdateCost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cost *float64 `json:"cost"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil || req.Cost == nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", `expected {"cost": number}`)
		return
	}
	a.updatePrice(w, r, catalog.FieldCost, *req.Cost)
}

// UpdateListPrice: цена в карте, с той же историей.
func (a *API) UpdateListPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price *float64 `json:"price"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil || req.Price == nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", `expected {"price": number}`)
		return
	}
	a.updatePrice(w, r, catalog.FieldListPrice, *req.Price)
}

func (a *API) updatePrice(w http.ResponseWriter, r *http.Request, field string, value float64) {
	id := chi.URLParam(r, "id")
	wine, err := a.store.GetWine(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	old := wine.Cost
	if field == catalog.FieldListPrice {
		old = wine.ListPrice
		err = a.store.UpdateListPrice(r.Context(), id, value)
		wine.ListPrice = &value
	} else {
		err = a.store.UpdateCost(r.Context(), id, value)
		wine.Cost = &value
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	change := catalog.CostChange{
		WineID: id,
		Field:  field,
		Old:    old,
		New:    value,
		Reason: catalog.CostReasonManual,
	}
	if err := a.store.RecordCostChange(r.Context(), change); err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, wine)
}

type stockRequest struct {
	Delta  int     `json:"delta"`
	Reason string  `json:"reason"`
	Notes  *string `json:"notes"`
}

func (a *API) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	mv, err := a.store.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta, req.Reason, req.Notes)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, mv)
}

type historyResponse struct {
	Costs []catalog.CostChange    `json:"costs"`
	Stock []catalog.StockMovement `json:"stock"`
}

func (a *API) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.store.GetWine(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	costs, err := a.store.CostHistory(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	stock, err := a.store.StockHistory(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, historyResponse{Costs: costs, Stock: stock})
}

type describeRequest struct {
	Field ai.DescriptionField `json:"field"`
	// Save пишет короткое описание в карточку вина
	Save bool `json:"save"`
}

func (a *API) Describe(w http.ResponseWriter, r *http.Request) {
	if a.ai == nil {
		utils.WriteError(w, r, http.StatusServiceUnavailable, "ai_not_configured", "set ANTHROPIC_API_KEY or GEMINI_API_KEY")
		return
	}
	var req describeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Field == "" {
		req.Field = ai.FieldShort
	}
	if !req.Field.Valid() {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_field", "field must be descripcion_corta, maridaje or descripcion_larga")
		return
	}

	wine, err := a.store.GetWine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	desc, err := ai.Describe(r.Context(), a.ai, ai.WineInfo{
		Name:    wine.Name,
		Type:    wine.Type,
		Island:  wine.Island,
		Grapes:  wine.Grapes,
		Vintage: wine.Vintage,
		Winery:  wine.Winery,
		DO:      wine.DO,
	}, req.Field)
	if err != nil {
		writeAIError(w, r, err)
		return
	}
	if req.Save && desc.Field == ai.FieldShort {
		if err := a.store.SetShortDescription(r.Context(), wine.ID, desc.Text); err != nil {
			writeStoreError(w, r, err)
			return
		}
	}
	utils.WriteJSON(w, r, http.StatusOK, desc)
}

// UploadPhoto: multipart "file" с изображением, ссылка пишется в карточку вина.
func (a *API) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if a.files == nil {
		utils.WriteError(w, r, http.StatusServiceUnavailable, "storage_not_configured", "object storage is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := a.store.GetWine(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := r.ParseMultipartForm(a.maxMemory); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_upload", "bad multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_upload", "missing file: "+err.Error())
		return
	}
	defer file.Close()

	ct := contentType(header.Header.Get("Content-Type"), header.Filename)
	if !strings.HasPrefix(ct, "image/") {
		utils.WriteError(w, r, http.StatusBadRequest, "not_image", "photo must be an image, got "+ct)
		return
	}

	key := storage.NewKey("photos", header.Filename)
	url, err := a.files.Put(r.Context(), key, file, header.Size, ct)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("photo upload")
		utils.WriteError(w, r, http.StatusBadGateway, "storage_failed", "could not store the file")
		return
	}
	if err := a.store.SetPhotoURL(r.Context(), id, url); err != nil {
		if derr := a.files.Delete(context.WithoutCancel(r.Context()), key); derr != nil {
			zerolog.Ctx(r.Context()).Warn().Err(derr).Str("key", key).Msg("orphan object left")
		}
		writeStoreError(w, r, err)
		return
	}
	wine, err := a.store.GetWine(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, wine)
}
