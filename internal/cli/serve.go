package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apresai/newsletter-podcaster/internal/config"
	"github.com/apresai/newsletter-podcaster/internal/httpapi"
	"github.com/apresai/newsletter-podcaster/internal/ingest"
	"github.com/apresai/newsletter-podcaster/internal/jobs"
	"github.com/apresai/newsletter-podcaster/internal/mcpserver"
	"github.com/apresai/newsletter-podcaster/internal/observability"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, MCP endpoint, and job workers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := commandLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.ResolveSecrets(ctx, &cfg, logger); err != nil {
		logger.Warn("failed to load secrets, falling back to env vars", "error", err)
	}

	tel, err := observability.Setup(ctx, cfg, Version, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()

	awsCfg := &awsOnce{region: cfg.AWS.Region}
	store, closeStore, err := openStore(ctx, cfg, awsCfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer closeStore()

	results, err := openResults(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fmt.Errorf("open result storage: %w", err)
	}

	hasDefaultKey := true
	if err := cfg.RequireCredentials(); err != nil {
		if !cfg.HTTP.AllowBYOKey {
			return err
		}
		hasDefaultKey = false
		logger.Warn("no server credentials, only requests with their own key will be accepted", "error", err)
	}

	q, err := openQueue(cfg, logger)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}

	stages := newStageBuilder(cfg, awsCfg, logger)
	defer stages.Close()
	orch := newOrchestrator(cfg, store, results, stages.Factory, tel.Metrics, nil, logger)

	svc := jobs.NewService(jobs.ServiceOptions{
		Store:         store,
		Queue:         q,
		HasDefaultKey: hasDefaultKey,
		AllowBYOKey:   cfg.HTTP.AllowBYOKey,
		Logger:        logger,
	})

	var mcpHandler http.Handler
	if cfg.HTTP.MCPEnabled {
		canceller, _ := q.(mcpserver.Canceller)
		mcpHandler = mcpserver.New(mcpserver.Options{
			Jobs:      svc,
			URLs:      ingest.NewLoader(),
			Canceller: canceller,
			Version:   Version,
			Logger:    logger,
		}).Handler()
	}

	srv := httpapi.New(httpapi.Options{
		Service:        svc,
		MaxUploadBytes: int64(cfg.HTTP.MaxUploadMB) << 20,
		Metrics:        tel.MetricsHandler,
		MCP:            mcpHandler,
		Logger:         logger,
	})

	workersDone := make(chan error, 1)
	go func() { workersDone <- q.Run(ctx, orch.Handle) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(httpapi.Addr(cfg.HTTP.Bind, cfg.HTTP.Port)) }()

	logger.Info("podcaster serving",
		"version", Version,
		"queue", cfg.Queue.Backend,
		"store", cfg.Store.Backend,
		"mode", cfg.Pipeline.Mode)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server stopped", "error", err)
		}
		stop()
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	select {
	case err := <-workersDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("workers stopped", "error", err)
		}
	case <-sctx.Done():
		logger.Warn("workers did not stop within grace period")
	}
	if err := q.Close(); err != nil {
		logger.Warn("close queue", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
