package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/mfranzen/storyforge/internal/config"
	"github.com/mfranzen/storyforge/internal/handler"
	"github.com/mfranzen/storyforge/internal/llm"
	"github.com/mfranzen/storyforge/internal/metrics"
	"github.com/mfranzen/storyforge/internal/model"
	"github.com/mfranzen/storyforge/internal/notify"
	"github.com/mfranzen/storyforge/internal/pipeline"
	"github.com/mfranzen/storyforge/internal/registry"
	"github.com/mfranzen/storyforge/internal/storage"
	"github.com/mfranzen/storyforge/internal/topics"
	"github.com/mfranzen/storyforge/pkg/middleware"
)

const version = "1.0.0"

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Initialize logger
	config.InitLogger(cfg)

	slog.Info("Starting StoryForge", "version", version)

	// Create context for graceful shutdown; it is also the base context
	// handed to in-flight pipeline runs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage and presets
	store := storage.NewStore(cfg.ProjectsDir)
	presets, err := pipeline.LoadPresets(cfg.PresetsFile)
	if err != nil {
		slog.Error("Failed to load presets", "error", err)
		os.Exit(1)
	}

	// Model client
	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		Timeout:     cfg.OpenAITimeout,
		MaxRetries:  cfg.OpenAIMaxRetries,
	})

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	// Job registry and pipeline runner
	jobRegistry := registry.New(ctx, cfg.MaxConcurrency, m)
	runner := pipeline.NewRunner(jobRegistry, client, store, presets, pipeline.Settings{
		ReadingRateWPM:          cfg.ReadingRateWPM,
		SceneStepSeconds:        cfg.SceneStepSeconds,
		MaxSceneStampsPerPass:   cfg.MaxSceneStampsPerPass,
		SceneScriptOverlapChars: cfg.SceneScriptOverlapChars,
		TitleVariantCount:       cfg.TitleVariantCount,
		PackagingTitleMaxLen:    cfg.PackagingTitleMaxLen,
		MetadataExcerptMaxChars: cfg.MetadataExcerptMaxChars,
	}, m)
	jobRegistry.SetRunner(runner)

	// Settlement webhook
	if cfg.JobWebhookURL != "" {
		notifier := notify.NewNotifier(cfg.JobWebhookURL, cfg.JobWebhookTimeout, notify.RetryConfig{})
		jobRegistry.SetOnSettled(notifier.JobSettled)
		slog.Info("Settlement webhook enabled", "url", cfg.JobWebhookURL)
	}

	// Topic rotation
	topicService := topics.NewService(client, cfg.ProjectsDir, cfg.TopicGenerateCount, cfg.TopicHistoryLimit)

	// Optional scheduled auto-generation
	var autoCron *cron.Cron
	if cfg.AutoGenerateCron != "" {
		autoCron = cron.New()
		storyType := model.StoryType(cfg.AutoGenerateStoryType)
		if !storyType.Valid() {
			slog.Error("Invalid AUTO_GENERATE_STORY_TYPE", "story_type", cfg.AutoGenerateStoryType)
			os.Exit(1)
		}
		_, err := autoCron.AddFunc(cfg.AutoGenerateCron, func() {
			pick, err := topicService.Next(ctx, cfg.AutoGenerateStoryType)
			seed := ""
			if err != nil {
				slog.Warn("Auto-generate topic rotation failed, using default seed", "error", err)
			} else {
				seed = pick.Topic
			}
			req := &model.GenerateRequest{
				StoryType:     storyType,
				TargetMinutes: cfg.AutoGenerateMinutes,
				SeedTopic:     seed,
			}
			if err := req.Validate(); err != nil {
				slog.Error("Auto-generate request invalid", "error", err)
				return
			}
			id := jobRegistry.Enqueue(model.NewGeneratePayload(req))
			slog.Info("Auto-generate job enqueued", "job_id", id, "seed_topic", seed)
		})
		if err != nil {
			slog.Error("Invalid AUTO_GENERATE_CRON expression", "error", err)
			os.Exit(1)
		}
		autoCron.Start()
		slog.Info("Auto-generation schedule enabled", "cron", cfg.AutoGenerateCron)
	}

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobRegistry, cfg.JobStreamInterval)
	projectHandler := handler.NewProjectHandler(store)
	topicHandler := handler.NewTopicHandler(topicService)
	healthHandler := handler.NewHealthHandler(jobRegistry)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	// Create CORS config
	corsConfig := middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           cfg.CORSMaxAge,
	}

	// Create router
	router := handler.NewRouter(
		jobHandler,
		projectHandler,
		topicHandler,
		healthHandler,
		metricsHandler,
		corsConfig,
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Received shutdown signal, initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if autoCron != nil {
		slog.Info("Stopping auto-generation schedule...")
		autoCron.Stop()
	}

	// Shutdown HTTP server first so no new jobs are admitted
	slog.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Let in-flight pipeline runs settle, then cut their base context
	slog.Info("Draining in-flight jobs...")
	if err := jobRegistry.Drain(shutdownCtx); err != nil {
		slog.Warn("Shutdown deadline reached with jobs still in flight", "error", err)
	}

	slog.Info("StoryForge stopped")
}
