package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/practice-scheduler/internal/api/router"
	"github.com/wolfman30/practice-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/practice-scheduler/internal/config"
	httpmiddleware "github.com/wolfman30/practice-scheduler/internal/http/middleware"
	"github.com/wolfman30/practice-scheduler/internal/observability/metrics"
	"github.com/wolfman30/practice-scheduler/internal/scheduling"
	"github.com/wolfman30/practice-scheduler/internal/voice"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting practice-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := buildAPI(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize API", "error", err)
		os.Exit(1)
	}
	defer api.Close()

	go api.limiter.Run(ctx, time.Minute)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		api.Close()
		os.Exit(1)
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		api.Close()
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// apiServer is the assembled HTTP surface plus the resources it holds open.
type apiServer struct {
	handler http.Handler
	limiter *httpmiddleware.RateLimiter
	closers []func()
}

func (a *apiServer) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func setupMetrics() (http.Handler, *metrics.PracticeMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewPracticeMetrics(reg)
}

func buildAPI(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*apiServer, error) {
	api := &apiServer{}
	metricsHandler, practiceMetrics := setupMetrics()

	pool, err := bootstrap.BuildPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		api.closers = append(api.closers, pool.Close)
	}

	schedulingService := scheduling.NewService(bootstrap.BuildRepository(pool, logger), logger, scheduling.Options{
		DefaultDurationMinutes: cfg.DefaultAppointmentMinutes,
		HorizonMonths:          cfg.RecurrenceHorizonMonths,
		Location:               cfg.Location(),
		Metrics:                practiceMetrics,
	})

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		api.closers = append(api.closers, func() { _ = redisClient.Close() })
	}

	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		api.Close()
		return nil, err
	}
	voiceOpts := voice.Options{
		PendingTTL:     cfg.VoicePendingTTL,
		MatchThreshold: cfg.VoiceMatchThreshold,
		Assistant:      llmClient,
		MaxTokens:      int32(cfg.VoiceLLMMaxTokens),
		Temperature:    float32(cfg.VoiceLLMTemperature),
		Metrics:        practiceMetrics,
	}
	if llmClient != nil && cfg.VoiceLLMExtraction {
		voiceOpts.Extractor = voice.NewLLMExtractor(llmClient, int32(cfg.VoiceLLMMaxTokens), float32(cfg.VoiceLLMTemperature))
	}
	voiceService := voice.NewService(schedulingService, bootstrap.BuildPendingStore(redisClient, logger), logger, voiceOpts)

	transcriber := bootstrap.BuildTranscriber(cfg)
	if transcriber == nil {
		logger.Info("speech transcription disabled; voice endpoint accepts text transcripts only")
	}

	api.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	api.handler = router.New(&router.Config{
		Logger:             logger,
		SchedulingHandler:  scheduling.NewHandler(schedulingService, logger),
		VoiceHandler:       voice.NewHandler(voiceService, transcriber, logger),
		MetricsHandler:     metricsHandler,
		MetricsToken:       cfg.MetricsToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        api.limiter,
		IDToken: httpmiddleware.IDTokenConfig{
			ProjectID: cfg.FirebaseProject(),
			JWKSURL:   cfg.FirebaseJWKSURL,
		},
		DevAuthSecret: cfg.DevAuthSecret,
		TTSConfigured: cfg.TTSConfigured(),
	})
	return api, nil
}
