package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(s *Server) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS - the admin surface is consumed from browser tooling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-UTE-Idempotency-Key", "X-UTE-Signature", "X-UTE-Timestamp"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check and rules listing (no auth required)
	r.Get("/health", s.handleHealth)
	r.Get("/rules", s.handleListRules)

	// Direct parse surface
	r.Post("/parse", s.handleParse)
	r.Post("/parse/batch", s.handleParseBatch)

	// Webhook intake surface (rate limited when redis is configured)
	r.Route("/webhook/v1", func(r chi.Router) {
		if s.redisClient != nil && s.cfg.Redis.Enabled {
			r.Use(s.rateLimit)
		}
		r.Post("/intake", s.handleIntake)
		r.Post("/intake/{client_id}", s.handleIntake)
		r.Post("/intake/{client_id}/{preset_id}", s.handleIntake)
	})

	// Admin surface
	r.Route("/admin", func(r chi.Router) {
		r.Get("/deliveries", s.handleListDeliveries)
		r.Get("/deliveries/{intake_id}", s.handleGetDelivery)
		r.Get("/deliveries/{intake_id}/artifacts.zip", s.handleDeliveryArtifacts)
		r.Post("/deliveries/{intake_id}/replay", s.handleReplay)
		r.Get("/presets", s.handleListPresets)
		r.Post("/presets", s.handleSavePreset)
		r.Delete("/presets/{client_id}/{preset_id}", s.handleDeletePreset)
		r.Get("/settings", s.handleSettings)
	})

	return r
}
