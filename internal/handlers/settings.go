package handlers

import (
	"net/http"

	"github.com/diewo77/go-esign/httpx"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/services"
)

type SettingsHandler struct {
	svc *services.SettingsService
	log logging.Logger
}

func NewSettingsHandler(svc *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{svc: svc, log: logging.GetLogger("http.settings")}
}

// Get never returns the token itself, only whether one is set.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.View(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

type settingsRequest struct {
	BaseURL     string `json:"base_url"`
	BearerToken string `json:"bearer_token"`
}

// Update stores the API credentials. An empty token keeps the current one.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in settingsRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.svc.Update(r.Context(), in.BaseURL, in.BearerToken); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("signature api settings updated")
	h.Get(w, r)
}
