package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"cellar-service/internal/ai"
	"cellar-service/internal/catalog"
	"cellar-service/internal/reconcile/model"
	"cellar-service/internal/reconcile/service"
	"cellar-service/internal/storage"
	"cellar-service/internal/utils"
)

// maxExtractBytes caps what is read back from storage for extraction.
const maxExtractBytes = 20 << 20

func (a *API) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := a.store.ListDocuments(r.Context(), catalog.DocumentFilter{
		WineID:   r.URL.Query().Get("wine_id"),
		BodegaID: r.URL.Query().Get("bodega_id"),
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, docs)
}

// UploadDocument: multipart "file" + type, wine_id, bodega_id. Файл уходит в
// хранилище, в базе остаются только метаданные.
func (a *API) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if a.files == nil {
		utils.WriteError(w, r, http.StatusServiceUnavailable, "storage_not_configured", "object storage is not configured")
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

	in := catalog.NewDocument{
		Type:        r.FormValue("type"),
		Filename:    header.Filename,
		ContentType: contentType(header.Header.Get("Content-Type"), header.Filename),
		Size:        header.Size,
		WineID:      formPtr(r, "wine_id"),
		BodegaID:    formPtr(r, "bodega_id"),
	}
	// тип проверяем до загрузки, чтобы не оставлять сирот в хранилище
	if in.Type != "" && !catalog.ValidDocType(in.Type) {
		utils.WriteError(w, r, http.StatusBadRequest, "invalid", "unknown document type "+in.Type)
		return
	}

	in.ObjectKey = storage.NewKey("documents", header.Filename)
	url, err := a.files.Put(r.Context(), in.ObjectKey, file, header.Size, in.ContentType)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("key", in.ObjectKey).Msg("upload")
		utils.WriteError(w, r, http.StatusBadGateway, "storage_failed", "could not store the file")
		return
	}
	in.URL = url

	doc, err := a.store.CreateDocument(r.Context(), in)
	if err != nil {
		if derr := a.files.Delete(context.WithoutCancel(r.Context()), in.ObjectKey); derr != nil {
			zerolog.Ctx(r.Context()).Warn().Err(derr).Str("key", in.ObjectKey).Msg("orphan object left")
		}
		writeStoreError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusCreated, doc)
}

// extractedWine is an extracted wine with its best catalog candidate and the
// bodega it names, when one exists. Match is nil when nothing clears the threshold.
type extractedWine struct {
	ai.ExtractedWine
	Match            *model.MatchResult `json:"match"`
	ExistingBodegaID *string            `json:"existingBodegaId"`
}

type extractResponse struct {
	Document *catalog.Document `json:"document"`
	Wines    []extractedWine   `json:"wines"`
}

// ExtractDocument читает PDF из хранилища и просит модель достать из него вина.
func (a *API) ExtractDocument(w http.ResponseWriter, r *http.Request) {
	if a.ai == nil {
		utils.WriteError(w, r, http.StatusServiceUnavailable, "ai_not_configured", "set ANTHROPIC_API_KEY or GEMINI_API_KEY")
		return
	}
	if a.files == nil {
		utils.WriteError(w, r, http.StatusServiceUnavailable, "storage_not_configured", "object storage is not configured")
		return
	}
	doc, err := a.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if doc.ContentType != "application/pdf" {
		utils.WriteError(w, r, http.StatusUnprocessableEntity, "not_pdf", "only PDF documents can be extracted")
		return
	}

	rc, err := a.files.Get(r.Context(), doc.ObjectKey)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(rc, maxExtractBytes))
	rc.Close()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	ex, raw, err := ai.Extract(r.Context(), a.ai, data, doc.ContentType)
	if err != nil {
		writeAIError(w, r, err)
		return
	}
	if err := a.store.MarkDocumentProcessed(r.Context(), doc.ID, raw); err != nil {
		writeStoreError(w, r, err)
		return
	}
	doc.Processed = true
	doc.Extracted = &raw
	utils.WriteJSON(w, r, http.StatusOK, extractResponse{Document: doc, Wines: a.enrich(r.Context(), ex.Wines)})
}

// enrich сверяет извлечённые вина с каталогом и бодегами. Ошибка каталога не
// ломает ответ: вина уходят без подсказок.
func (a *API) enrich(ctx context.Context, wines []ai.ExtractedWine) []extractedWine {
	out := make([]extractedWine, len(wines))
	for i, w := range wines {
		out[i].ExtractedWine = w
	}
	if len(wines) == 0 {
		return out
	}
	log := zerolog.Ctx(ctx)

	if cat, err := a.store.ListCatalog(ctx); err != nil {
		log.Warn().Err(err).Msg("extract: catalog unavailable, no matches")
	} else {
		rows := make([]model.ExternalPriceRow, len(wines))
		for i, w := range wines {
			rows[i] = model.ExternalPriceRow{Name: deref(w.Name), Winery: w.Winery}
			if w.Price != nil {
				rows[i].Price = *w.Price
			}
			if w.Vintage != nil {
				v := strconv.Itoa(*w.Vintage)
				rows[i].Vintage = &v
			}
		}
		for i, m := range service.MatchEach(rows, cat, a.matchOpts) {
			if m.Matched() {
				out[i].Match = &m
			}
		}
	}

	bodegas, err := a.store.ListBodegas(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("extract: bodegas unavailable")
		return out
	}
	byName := make(map[string]string, len(bodegas))
	for _, b := range bodegas {
		if _, dup := byName[service.Normalize(b.Name)]; !dup {
			byName[service.Normalize(b.Name)] = b.ID
		}
	}
	for i, w := range wines {
		if w.Winery == nil {
			continue
		}
		if id, ok := byName[service.Normalize(*w.Winery)]; ok {
			out[i].ExistingBodegaID = &id
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Files отдаёт объекты локального хранилища по /files/*.
func (a *API) Files(w http.ResponseWriter, r *http.Request) {
	if a.files == nil {
		http.NotFound(w, r)
		return
	}
	key := chi.URLParam(r, "*")
	rc, err := a.files.Get(r.Context(), key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", contentType("", key))
	if _, err := io.Copy(w, rc); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("key", key).Msg("serve file")
	}
}

// заголовок клиента важнее расширения; octet-stream ничего не говорит
func contentType(declared, filename string) string {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}

func formPtr(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}
