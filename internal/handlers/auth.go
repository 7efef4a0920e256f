package handlers

import (
	"net/http"
	"strings"

	"github.com/diewo77/go-esign/auth"
	"github.com/diewo77/go-esign/httpx"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	db       *gorm.DB
	sessions *auth.Sessions
	log      logging.Logger
}

func NewAuthHandler(db *gorm.DB, sessions *auth.Sessions) *AuthHandler {
	return &AuthHandler{db: db, sessions: sessions, log: logging.GetLogger("http.auth")}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login accepts a JSON body or a form post.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_form", nil)
			return
		}
		in.Email, in.Password = r.FormValue("email"), r.FormValue("password")
	}
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || in.Password == "" {
		httpx.JSONError(w, http.StatusBadRequest, "email_and_password_required", nil)
		return
	}

	var user models.User
	if err := h.db.WithContext(r.Context()).Where("email = ?", in.Email).First(&user).Error; err != nil {
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	}
	if !user.Active || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)) != nil {
		h.log.Info("login refused", "email", in.Email)
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
		return
	}
	h.sessions.Create(w, user.ID)
	httpx.JSON(w, http.StatusOK, map[string]any{"id": user.ID, "email": user.Email, "name": user.Name})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current user with the permission codes of its profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var user models.User
	if err := h.db.WithContext(r.Context()).Preload("Profile.Permissions").First(&user, uid).Error; err != nil {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	perms := []string{}
	if user.Profile != nil {
		perms = user.Profile.Codes()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"name":        user.Name,
		"permissions": perms,
	})
}
