package handlers

import (
	"net/http"
	"strings"

	"github.com/diewo77/go-esign/httpx"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/internal/services"
)

type TemplateHandler struct {
	svc *services.TemplateService
	log logging.Logger
}

func NewTemplateHandler(svc *services.TemplateService) *TemplateHandler {
	return &TemplateHandler{svc: svc, log: logging.GetLogger("http.templates")}
}

// templateInput is the writable part of a template. Missing numbers and the
// active flag take their defaults on create and keep their value on update.
type templateInput struct {
	Name          string `json:"name"`
	Sequence      *int   `json:"sequence"`
	Active        *bool  `json:"active"`
	XAxis         *int   `json:"x_axis"`
	YAxis         *int   `json:"y_axis"`
	PageType      string `json:"page_type"`
	PageNumber    *int   `json:"page_number"`
	SignatureType string `json:"signature_type"`
	IsDefault     *bool  `json:"is_default"`
}

func (in templateInput) apply(t *models.SignatureTemplate) {
	t.Name = strings.TrimSpace(in.Name)
	if in.Sequence != nil {
		t.Sequence = *in.Sequence
	}
	if in.Active != nil {
		t.Active = *in.Active
	}
	if in.XAxis != nil {
		t.XAxis = *in.XAxis
	}
	if in.YAxis != nil {
		t.YAxis = *in.YAxis
	}
	if in.PageType != "" {
		t.PageType = models.PageType(in.PageType)
	}
	if in.PageNumber != nil {
		t.PageNumber = *in.PageNumber
	} else if t.PageType == models.PageTypeLast {
		t.PageNumber = 0
	}
	if in.SignatureType != "" {
		t.SignatureType = models.SignatureType(in.SignatureType)
	}
	if in.IsDefault != nil {
		t.IsDefault = *in.IsDefault
	}
}

// List returns active templates, all of them with ?archived=1.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	archived := r.URL.Query().Get("archived")
	list, err := h.svc.List(r.Context(), archived == "1" || archived == "true")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *TemplateHandler) Default(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Default(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in templateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	t := models.SignatureTemplate{
		Sequence: models.DefaultTemplateSequence,
		Active:   true,
		XAxis:    models.DefaultTemplateAxis,
		YAxis:    models.DefaultTemplateAxis,
	}
	in.apply(&t)
	if err := h.svc.Create(r.Context(), &t); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("template created", "id", t.ID, "name", t.Name)
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var in templateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if in.Name == "" {
		in.Name = t.Name
	}
	in.apply(t)
	if err := h.svc.Update(r.Context(), t); err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
