package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", OwnerHeader},
		ExposedHeaders:   []string{HeaderCache, HeaderCacheKey},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check: public, no auth required
	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		// Apply auth middleware only to /v1 routes
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}
		r.Use(OwnerIdentity)

		r.Route("/voice", func(r chi.Router) {
			r.Post("/speech", h.Speak)

			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Post("/settings/preset/{name}", h.ApplyPreset)
			r.Get("/presets", h.ListPresets)

			r.Get("/voices", h.ListVoices)
			r.Post("/prewarm", h.Prewarm)
		})
	})

	return r
}

// parseOrigins splits CORS_ALLOWED_ORIGINS. Empty means any origin (dev mode).
func parseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
