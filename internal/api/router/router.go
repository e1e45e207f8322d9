package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/practice-scheduler/internal/http/middleware"
	"github.com/wolfman30/practice-scheduler/internal/scheduling"
	"github.com/wolfman30/practice-scheduler/internal/voice"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	SchedulingHandler  *scheduling.Handler
	VoiceHandler       *voice.Handler
	MetricsHandler     http.Handler
	MetricsToken       string
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter

	// Practitioner auth: Firebase ID tokens, or HS256 dev tokens when a secret is set.
	IDToken       httpmiddleware.IDTokenConfig
	DevAuthSecret string

	// TTSConfigured is reported on /health so the UI knows whether to offer
	// ElevenLabs playback.
	TTSConfigured bool
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.TTSConfigured))
		if cfg.MetricsHandler != nil {
			public.With(requireMetricsToken(cfg.MetricsToken)).Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Practitioner API, scoped to the authenticated owner
	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.OwnerAuth(cfg.IDToken, cfg.DevAuthSecret))
		api.Use(httpmiddleware.RecordOwner)
		api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))

		if cfg.SchedulingHandler != nil {
			cfg.SchedulingHandler.RegisterRoutes(api)
		}
		if cfg.VoiceHandler != nil {
			cfg.VoiceHandler.RegisterRoutes(api)
		}
	})

	return r
}

func healthHandler(ttsConfigured bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"tts_configured": ttsConfigured,
		})
	}
}
