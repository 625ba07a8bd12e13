package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bearound/booking-funnel/cmd/mainconfig"
	"github.com/bearound/booking-funnel/internal/api/router"
	"github.com/bearound/booking-funnel/internal/app/bootstrap"
	appconfig "github.com/bearound/booking-funnel/internal/config"
	"github.com/bearound/booking-funnel/internal/events"
	"github.com/bearound/booking-funnel/internal/http/handlers"
	httpmiddleware "github.com/bearound/booking-funnel/internal/http/middleware"
	"github.com/bearound/booking-funnel/pkg/logging"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking funnel API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"marketplace", cfg.MarketplaceBaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	registry, metricsHandler := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	processor, err := bootstrap.BuildProcessor(cfg, logger)
	if err != nil {
		return err
	}

	sqsClient, err := setupSQS(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	publisher, memoryQueue := bootstrap.BuildEventPublisher(cfg, sqsClient, logger)
	if memoryQueue != nil {
		go drainEvents(ctx, memoryQueue.Drain, logger)
	}

	app, err := bootstrap.BuildFunnel(cfg, bootstrap.FunnelDeps{
		Redis:      redisClient,
		Processor:  processor,
		Events:     publisher,
		Registerer: registry,
	}, logger)
	if err != nil {
		return err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go limiter.Run(sweepStop)

	if cfg.SessionSigningSecret == "" {
		logger.Warn("SESSION_SIGNING_SECRET not set; session endpoints are unauthenticated")
	}
	r := router.New(&router.Config{
		Logger:               logger,
		Funnel:               handlers.NewFunnelHandler(app.Controller, cfg.SessionSigningSecret, cfg.SessionTTL, logger),
		Watch:                handlers.NewWatchHandler(app.Controller, cfg.CORSAllowedOrigins, logger),
		Catalog:              handlers.NewCatalogHandler(app.Catalog, logger),
		MetricsHandler:       metricsHandler,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		RateLimiter:          limiter,
		SessionSigningSecret: cfg.SessionSigningSecret,
	})

	// no WriteTimeout: watch streams and waited probes are long-lived
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := app.Controller.Shutdown(shutdownCtx); err != nil {
		logger.Warn("availability probes did not stop in time", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func setupSQS(ctx context.Context, cfg *appconfig.Config) (*sqs.Client, error) {
	if strings.TrimSpace(cfg.OutcomeQueueURL) == "" {
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return mainconfig.NewSQSClient(awsCfg, cfg), nil
}

// drainEvents logs in-memory funnel events so local runs show them.
func drainEvents(ctx context.Context, drain func() []events.Message, logger *logging.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, msg := range drain() {
				logger.Info("funnel event", "event_type", msg.Attributes["event_type"], "body", msg.Body)
			}
		}
	}
}
