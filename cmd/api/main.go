package main

import (
	"context"
	"log"
	"log/slog"

	"go.uber.org/zap"

	"github.com/terrawatch/excavation-monitor-backend/internal/api/rest"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/cache"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/config"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/database"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/events"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/imagery"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/repository"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/telemetry"
	"github.com/terrawatch/excavation-monitor-backend/internal/metrics"
	"github.com/terrawatch/excavation-monitor-backend/internal/service/earlywarning"
	"github.com/terrawatch/excavation-monitor-backend/internal/service/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	provider, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    "excavation-monitor-api",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := provider.Shutdown(ctx); err != nil {
			log.Printf("Failed to shut down telemetry: %v", err)
		}
	}()

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	slog.SetDefault(logger)

	zapLogger, err := newZapLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to set up infrastructure logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	pool, err := database.NewPool(ctx, &cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()
	registerPoolMetrics(pool)

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		zapLogger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck
	limiter := cache.NewRedisRateLimiter(redisClient, zapLogger)

	baselineCache, err := cache.NewBaselineCache(&cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create baseline cache", zap.Error(err))
	}
	defer baselineCache.Close() //nolint:errcheck

	store := repository.NewPipelineStore(pool)
	samples := repository.NewIndexSampleRepository(pool)
	boundaries := repository.NewBoundaryRepository(pool)
	violations := repository.NewViolationRepository(pool)

	scenes := imagery.NewSceneProvider(cfg.Imagery, zapLogger)

	hub := events.NewAlertHub(zapLogger, events.DefaultHubConfig())
	defer hub.Close() //nolint:errcheck
	registerAlertMetrics(hub.ConnectionCount)
	webhookSeverity, err := violation.ParseSeverity(cfg.Alerts.MinSeverity)
	if err != nil {
		zapLogger.Fatal("invalid alerts min_severity", zap.Error(err))
	}
	webhooks := events.FilteredSink{
		Sink: events.NewWebhookPublisher(cfg.Alerts, zapLogger),
		Sub:  events.Subscription{MinSeverity: webhookSeverity},
	}
	alerts := events.NewFanoutPublisher(zapLogger, events.HubSink{Hub: hub}, webhooks)

	registry, err := metrics.NewRegistry("excavation-monitor")
	if err != nil {
		zapLogger.Fatal("failed to create metrics registry", zap.Error(err))
	}

	pipelineSvc, err := pipeline.NewService(
		scenes, samples, boundaries, baselineCache, store, alerts, registry,
		logger, pipelineConfig(cfg),
	)
	if err != nil {
		zapLogger.Fatal("failed to create pipeline service", zap.Error(err))
	}

	warningSvc := earlywarning.NewService(store, store, logger, earlywarning.Config{
		BufferDistanceM:   cfg.EarlyWarning.BufferDistanceM,
		CriticalDistanceM: cfg.EarlyWarning.CriticalDistanceM,
	})

	handler := rest.NewHandler(pipelineSvc, warningSvc, store, violations, store)
	health := rest.NewHealthService(
		rest.NewDatabaseHealthChecker(pool),
		rest.NewRedisHealthChecker(redisClient),
	)
	server := rest.NewServer(cfg.Server, handler, health,
		rest.NewWebSocketHandler(hub), limiter, MetricsHandler(), logger)

	if err := server.Start(ctx); err != nil {
		zapLogger.Fatal("server error", zap.Error(err))
	}
}

func newZapLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		SigmaThreshold:  cfg.Pipeline.SigmaThreshold,
		NDVICutoff:      cfg.Pipeline.NDVICutoff,
		CloudPenaltyCap: cfg.Pipeline.CloudPenaltyCap,
		MinConfidence:   cfg.Pipeline.MinConfidence,
		SmoothingWindow: cfg.Pipeline.SmoothingWindow,
		MinHistory:      cfg.Pipeline.MinHistory,
		LookbackYears:   cfg.Pipeline.LookbackYears,
		BaselineTTL:     cfg.Pipeline.BaselineTTL,
		MaxRetries:      cfg.Pipeline.MaxRetries,
		RetryBackoff:    cfg.Pipeline.RetryBackoff,
		Violation: violation.Config{
			MinConfidence: cfg.Pipeline.MinConfidence,
			MinAreaHa:     cfg.Violation.MinAreaHa,
			GrowthAbsHa:   cfg.Violation.GrowthAbsHa,
			GrowthRatio:   cfg.Violation.GrowthRatio,
			Bands: violation.SeverityBands{
				LowMaxHa:    cfg.Violation.LowMaxHa,
				MediumMaxHa: cfg.Violation.MediumMaxHa,
				HighMaxHa:   cfg.Violation.HighMaxHa,
			},
		},
	}
}
