package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/RogueElectron/Cypher/internal/handler"
	"github.com/RogueElectron/Cypher/internal/rate"
)

// SetupRoutes wires the auth endpoints with their rate tiers: strict on the
// password factor, moderate on TOTP verification, aggressive on enrollment.
func SetupRoutes(r chi.Router, h *handler.AuthHandler, limiter *rate.Limiter, allowedOrigins []string) chi.Router {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Group(func(g chi.Router) {
		g.Use(limiter.Middleware("auth", rate.Strict))
		g.Post("/register/init", h.HandleRegisterInit)
		g.Post("/register/finish", h.HandleRegisterFinish)
		g.Post("/login/init", h.HandleLoginInit)
		g.Post("/login/finish", h.HandleLoginFinish)
	})

	r.Group(func(g chi.Router) {
		g.Use(limiter.Middleware("totp_verify", rate.Moderate))
		g.Post("/totp/verify-setup", h.HandleTotpVerifySetup)
		g.Post("/totp/verify-login", h.HandleTotpVerifyLogin)
	})

	r.Group(func(g chi.Router) {
		g.Use(limiter.Middleware("totp_setup", rate.Aggressive))
		g.Post("/totp/setup", h.HandleTotpSetup)
	})

	return r
}
