package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"moneta/internal/amqp"
	"moneta/internal/analytics"
	"moneta/internal/backend"
	"moneta/internal/cache"
	"moneta/internal/cli"
	"moneta/internal/config"
	apphttp "moneta/internal/http"
	"moneta/internal/log"
	"moneta/internal/middleware/ratelimit"
	"moneta/internal/query"
	gsheet "moneta/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.SlogLevel())

	// Missing backend credentials stop the process before anything else starts.
	client, err := backend.New(cfg.ServiceURL, cfg.ServiceAnonKey,
		backend.WithLogger(logger),
		backend.WithDevMode(cfg.IsDevelopment()))
	if err != nil {
		logger.Error("Backend client configuration invalid",
			log.FieldError, err,
			"error_type", log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldError, err,
			"error_type", log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	opts := query.DefaultOptions()
	opts.StaleTime = cfg.QueryStaleTime
	opts.GCTime = cfg.QueryGCTime
	opts.MaxEntries = cfg.QueryMaxEntries
	opts.FetchTimeout = cfg.QueryFetchTimeout
	queries := query.NewClient(opts, logger)

	caches := cache.NewManager(logger)
	caches.Register(queries)
	caches.StartCleanup(time.Minute)

	tracker, closeTracker, err := newTracker(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize page-view tracking",
			log.FieldError, err,
			"sink", cfg.TrackingSink)
		os.Exit(1)
	}
	listener := analytics.NewListener(tracker, logger, analytics.WithTimeout(cfg.TrackingTimeout))

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Backend:       client,
		Queries:       queries,
		Listener:      listener,
		Logger:        logger,
		SessionSecret: cfg.SessionSecret,
		SecureCookies: cfg.SecureCookies,
		RateLimit:     ratelimit.DefaultConfig(),
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, sessions end on restart")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		_ = listener.Wait(ctx)
		caches.Stop()
		closeTracker()
	})

	logger.Info("Starting moneta server",
		"port", cfg.Port,
		"env", cfg.AppEnv,
		"tracking_sink", cfg.TrackingSink)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// newTracker builds the page-view sink selected by TRACKING_SINK. The
// returned func releases it.
func newTracker(cfg *config.Config, logger *log.Logger) (analytics.Tracker, func(), error) {
	switch cfg.TrackingSink {
	case config.SinkAMQP:
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("amqp: %w", err)
		}
		logger.Info("Page views published to AMQP", "exchange", cfg.AMQPExchange)
		return c, func() { _ = c.Close() }, nil
	case config.SinkSQLite:
		repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
		logger.Info("Page views journaled to SQLite", "path", cfg.SQLiteDBPath)
		return repo, func() { _ = repo.Close() }, nil
	case config.SinkSheets:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("sheets: %w", err)
		}
		logger.Info("Page views appended to Google Sheets", "sheet", c.SheetName())
		return c, func() {}, nil
	default:
		return analytics.Nop{}, func() {}, nil
	}
}
