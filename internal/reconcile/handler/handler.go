package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"cellar-service/internal/fileio"
	"cellar-service/internal/reconcile/model"
	"cellar-service/internal/reconcile/session"
	"cellar-service/internal/utils"
)

// Handler serves the price-list reconciliation workflow over HTTP.
type Handler struct {
	reg       *session.Registry
	maxMemory int64
}

// New: maxUploadMB ограничивает multipart в памяти, остальное уходит во временные файлы.
func New(reg *session.Registry, maxUploadMB int) *Handler {
	mem := int64(maxUploadMB) << 20
	if mem <= 0 {
		mem = 32 << 20
	}
	return &Handler{reg: reg, maxMemory: mem}
}

// Routes монтируется в роутере как r.Mount("/reconcile", h.Routes()).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Upload)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/selection", h.Selection)
		r.Post("/commit", h.Commit)
		r.Post("/unmatched/{index}/wine", h.AddWine)
	})
	return r
}

type uploadResponse struct {
	Outcome session.Outcome  `json:"outcome"`
	Session session.Snapshot `json:"session"`
}

// Upload: multipart "file" (xlsx/xls/csv) + необязательные threshold и strip_years.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := zerolog.Ctx(r.Context())

	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_upload", "bad multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_upload", "missing file: "+err.Error())
		return
	}
	defer file.Close()
	if !fileio.Supported(header.Filename) {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_upload", "unsupported file type, expected xlsx, xls or csv")
		return
	}

	opts := h.reg.Options()
	opts.Threshold = utils.ToFloat(r.FormValue("threshold"), opts.Threshold)
	opts.StripYears = utils.ToBool(r.FormValue("strip_years"), opts.StripYears)
	if !model.ValidThreshold(opts.Threshold) {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_threshold", "threshold must be in (0, 1]")
		return
	}

	s := h.reg.CreateWith(opts)
	out, err := s.LoadFile(r.Context(), file, header.Filename)
	switch {
	case errors.Is(err, session.ErrUnreadableFile):
		h.reg.Delete(s.ID())
		utils.WriteError(w, r, http.StatusBadRequest, "bad_upload", err.Error())
		return
	case errors.Is(err, session.ErrCatalogUnavailable):
		h.reg.Delete(s.ID())
		log.Error().Err(err).Msg("catalog unavailable")
		utils.WriteError(w, r, http.StatusServiceUnavailable, "catalog_unavailable", "catalog could not be loaded, try again")
		return
	case err != nil:
		h.reg.Delete(s.ID())
		writeSessionError(w, r, err)
		return
	case out.NoData:
		h.reg.Delete(s.ID())
		utils.WriteError(w, r, http.StatusUnprocessableEntity, "no_usable_rows",
			"no header with name and price columns, or no row with a name and a price")
		return
	}

	log.Info().
		Str("file", header.Filename).
		Int("rows", out.Rows).
		Int("matched", out.Matched).
		Int("unmatched", out.Unmatched).
		Dur("elapsed", time.Since(start)).
		Msg("reconcile done")

	utils.WriteJSON(w, r, http.StatusCreated, uploadResponse{Outcome: out, Session: s.Snapshot()})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, s.Snapshot())
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.reg.Delete(chi.URLParam(r, "id")) {
		utils.WriteError(w, r, http.StatusNotFound, "not_found", "no such session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// selectionRequest: {"all": true} | {"index": 2} (переключить) | {"index": 2, "selected": false}
type selectionRequest struct {
	All      *bool `json:"all"`
	Index    *int  `json:"index"`
	Selected *bool `json:"selected"`
}

func (h *Handler) Selection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var err error
	switch {
	case req.All != nil:
		err = s.SelectAll(*req.All)
	case req.Index != nil && req.Selected != nil:
		err = s.SetSelected(*req.Index, *req.Selected)
	case req.Index != nil:
		err = s.Toggle(*req.Index)
	default:
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", `expected "all" or "index"`)
		return
	}
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, s.Snapshot())
}

// Commit: частичные ошибки дают 200 с отчётом, а не ошибку запроса.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	rep, err := s.Commit(r.Context())
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusOK, rep)
}

type addWineResponse struct {
	ID      string           `json:"id"`
	Session session.Snapshot `json:"session"`
}

func (h *Handler) AddWine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var form session.NewWineForm
	if err := utils.DecodeJSON(r, &form); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	id, err := s.AddAsNew(r.Context(), utils.Atoi(chi.URLParam(r, "index"), -1), form)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	utils.WriteJSON(w, r, http.StatusCreated, addWineResponse{ID: id, Session: s.Snapshot()})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, r, http.StatusNotFound, "not_found", "no such session")
		return nil, false
	}
	return s, true
}
