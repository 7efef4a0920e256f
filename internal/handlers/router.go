package handlers

import (
	"context"
	"net/http"

	"github.com/diewo77/go-esign/auth"
	"github.com/diewo77/go-esign/httpx"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/policy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds the handlers and middleware the router is built from.
type RouterConfig struct {
	Gate     *policy.Gate
	Sessions *auth.Sessions

	Auth      *AuthHandler
	Templates *TemplateHandler
	Orders    *OrderHandler
	Settings  *SettingsHandler
	Admin     *AdminHandler

	// Ready reports whether dependencies (database) answer. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter registers every route of the API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.HTTPMiddleware(logging.GetLogger("http")))
	r.Use(cfg.Sessions.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				httpx.JSONError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", cfg.Auth.Login)
		r.Post("/logout", cfg.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Get("/me", cfg.Auth.Me)

			g := cfg.Gate
			r.Route("/templates", func(r chi.Router) {
				r.With(g.RequirePermission(policy.ResourceTemplate, policy.ActionList)).Get("/", cfg.Templates.List)
				r.With(g.RequirePermission(policy.ResourceTemplate, policy.ActionList)).Get("/default", cfg.Templates.Default)
				r.With(g.RequirePermission(policy.ResourceTemplate, policy.ActionCreate)).Post("/", cfg.Templates.Create)
				r.With(g.RequirePermission(policy.ResourceTemplate, policy.ActionView)).Get("/{id}", cfg.Templates.Get)
				r.With(g.RequirePermission(policy.ResourceTemplate, policy.ActionUpdate)).Put("/{id}", cfg.Templates.Update)
				r.With(g.RequirePermission(policy.ResourceTemplate, policy.ActionDelete)).Delete("/{id}", cfg.Templates.Delete)
			})

			// Order handlers authorize against the loaded order themselves.
			r.Route("/orders/{id}", func(r chi.Router) {
				r.Get("/", cfg.Orders.Get)
				r.Get("/chatter", cfg.Orders.Chatter)
				r.Route("/signature", func(r chi.Router) {
					r.Get("/selection", cfg.Orders.Selection)
					r.Post("/send", cfg.Orders.Send)
					r.Post("/resend", cfg.Orders.Resend)
					r.Post("/launch", cfg.Orders.Launch)
					r.Post("/refresh", cfg.Orders.Refresh)
					r.Get("/history", cfg.Orders.History)
					r.Get("/document", cfg.Orders.Document)
				})
			})

			r.Route("/settings/esign", func(r chi.Router) {
				r.With(g.RequirePermission(policy.ResourceSettings, policy.ActionView)).Get("/", cfg.Settings.Get)
				r.With(g.RequirePermission(policy.ResourceSettings, policy.ActionUpdate)).Put("/", cfg.Settings.Update)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(g.RequireAdmin())
				r.Get("/users", cfg.Admin.Users)
				r.Put("/users/{id}/profile", cfg.Admin.AssignProfile)
			})
		})
	})
	return r
}
