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

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"safe-delete/internal/api"
	"safe-delete/internal/auth"
	"safe-delete/internal/config"
	"safe-delete/internal/deletion"
	"safe-delete/internal/disk"
	"safe-delete/internal/events"
	"safe-delete/internal/exitcodes"
	"safe-delete/internal/logging"
	"safe-delete/internal/metrics"
	"safe-delete/internal/scheduler"
)

const retentionInterval = 24 * time.Hour

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the deletion HTTP API and the metrics server",
		Long:  `Starts the HTTP dispatcher in front of the deletion service together with the Prometheus metrics server. Runs until SIGINT or SIGTERM.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				cfg.ListenAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("listen", "", "Override listen_addr from the config")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, closer := logging.NewWithConfig(cfg, os.Stdout)
	defer closer.Close()

	logger.Info("safe-delete starting", "listen", cfg.ListenAddr, "metrics", cfg.PrometheusAddress())

	metrics.Init()

	svc := newService(cfg, logger)
	svc.SetMetrics(deletion.PrometheusMetrics{})

	health := metrics.NewHealthChecker(30 * time.Second)

	db, err := openHistory(cfg, logger)
	if err != nil {
		return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("open deletion database: %w", err))
	}
	opts := api.Options{
		Service:      svc,
		Logger:       logger,
		RateLimit:    rate.Limit(cfg.API.RateLimit),
		RateBurst:    cfg.API.RateBurst,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		MaxBatchSize: cfg.API.MaxBatchSize,
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}()
		svc.AddObserver(db)
		opts.History = db
		health.RegisterComponent("history_db", db.Ping, 5*time.Second)
		// runs before the deferred Close above
		stopRetention := scheduler.Start(ctx, db, cfg.DatabaseRetentionDays, retentionInterval, logger)
		defer stopRetention()
	}
	if cfg.Safety.Enabled {
		for _, root := range cfg.Safety.AllowedRoots {
			health.RegisterComponent("root:"+root, disk.RootCheck(root, 5*time.Second), 10*time.Second)
		}
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := events.NewHub(logger)
	go hub.Run(hubCtx)
	svc.AddObserver(hub)
	opts.Events = hub.Handler()

	if cfg.API.JWTSecret != "" {
		jwtManager, err := auth.NewJWTManager(cfg.API.JWTSecret, cfg.API.JWTExpiry)
		if err != nil {
			return exitcodes.Wrap(exitcodes.InvalidConfig, err)
		}
		opts.JWT = jwtManager
	} else {
		logger.Warn("API authentication disabled: no jwt secret configured")
	}

	health.Start()
	metrics.SetHealthChecker(health)
	metrics.StartServer(cfg.PrometheusAddress(), logger)

	a := api.New(opts)
	defer a.Close()
	srv := api.NewServer(cfg.ListenAddr, a.Router())

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.ListenAddr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("api server: %w", err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), api.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown did not complete", "error", err)
		_ = srv.Close()
	}
	stopHub()
	metrics.Shutdown(shutdownCtx, logger)

	logger.Info("safe-delete stopped")
	return nil
}
