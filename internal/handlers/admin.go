package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/go-esign/httpx"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/internal/policy"
	"gorm.io/gorm"
)

// AdminHandler lets administrators assign profiles to users.
type AdminHandler struct {
	db   *gorm.DB
	gate *policy.Gate
	log  logging.Logger
}

func NewAdminHandler(db *gorm.DB, gate *policy.Gate) *AdminHandler {
	return &AdminHandler{db: db, gate: gate, log: logging.GetLogger("http.admin")}
}

// Users lists users with their profile, and the profiles that can be assigned.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	if err := h.db.WithContext(r.Context()).Preload("Profile").Order("email").Find(&users).Error; err != nil {
		writeError(w, h.log, err)
		return
	}
	var profiles []models.Profile
	if err := h.db.WithContext(r.Context()).Preload("Permissions").Order("name").Find(&profiles).Error; err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users, "profiles": profiles})
}

type assignProfileRequest struct {
	ProfileID *uint `json:"profile_id"`
}

// AssignProfile sets or clears (null profile_id) the profile of a user.
func (h *AdminHandler) AssignProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(r, "id")
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_user_id", nil)
		return
	}
	var in assignProfileRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	ctx := r.Context()
	if in.ProfileID != nil && *in.ProfileID == 0 {
		in.ProfileID = nil
	}
	if in.ProfileID != nil {
		var profile models.Profile
		if err := h.db.WithContext(ctx).First(&profile, *in.ProfileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				httpx.JSONError(w, http.StatusNotFound, "profile_not_found", nil)
				return
			}
			writeError(w, h.log, err)
			return
		}
	}
	res := h.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("profile_id", in.ProfileID)
	if res.Error != nil {
		writeError(w, h.log, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		httpx.JSONError(w, http.StatusNotFound, "user_not_found", nil)
		return
	}
	h.gate.InvalidateUser(userID)
	h.log.Info("profile assigned", "user", userID, "profile", in.ProfileID)
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "profile_id": in.ProfileID})
}
