package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/cache"
	"github.com/SAP-F-2025/form-exam-service/internal/config"
	"github.com/SAP-F-2025/form-exam-service/internal/events"
	"github.com/SAP-F-2025/form-exam-service/internal/handlers"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories"
	"github.com/SAP-F-2025/form-exam-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/form-exam-service/internal/services"
	"github.com/SAP-F-2025/form-exam-service/internal/utils"
	"github.com/SAP-F-2025/form-exam-service/internal/validator"
	"github.com/SAP-F-2025/form-exam-service/migrations"
	"github.com/SAP-F-2025/form-exam-service/pkg"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "form-exam-service",
		Short:         "Exam sessions, anti-cheat tracking and auto-grading for published forms",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serve := serveCmd()
	root.AddCommand(serve, migrateCmd(), exportCmd())

	// bare invocation serves
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(f *pflag.FlagSet) {
	f.String("database-url", "", "PostgreSQL connection URL (or DATABASE_URL)")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.String("log-format", "", "Log format (text, json)")
}

// ===== SERVE =====

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and event consumers",
		RunE:  runServe,
	}
	addCommonFlags(cmd.Flags())
	f := cmd.Flags()
	f.StringP("port", "p", "", "HTTP listen port (or PORT)")
	f.String("redis-url", "", "Redis URL for the form cache (or REDIS_URL)")
	f.String("events-publisher", "", "Event bus: kafka, gochannel or mock")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return err
	}

	var formCache cache.CacheService
	if redisClient, err := pkg.NewRedisClient(ctx, cfg); err != nil {
		logger.Warn("Redis unavailable, serving forms without cache", "error", err)
	} else {
		defer redisClient.Close()
		formCache = cache.NewRedisCache(redisClient, logger)
	}

	repo := postgres.NewRepository(db, formCache)
	defer repo.Close()

	bus, err := cfg.Events.CreateEventBus(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	// the consumer outlives the signal context so events flushed during
	// shutdown are still handled
	consumerCtx, stopConsumer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopConsumer()
	consumerDone, err := startConsumer(consumerCtx, cfg, repo, bus, logger)
	if err != nil {
		return err
	}

	sessionService := services.NewSessionService(repo, services.SessionServiceOptions{
		Publisher: bus.Publisher,
		Validator: validator.New(),
		Logger:    logger,
	})
	exportService := services.NewExportService(repo, logger)

	var identity handlers.IdentityResolver
	if cfg.Casdoor.Enabled() {
		identity = handlers.NewCasdoorResolver(cfg.Casdoor)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	handlers.NewHandlerManager(sessionService, exportService, utils.NewSlogLogger(logger), handlers.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Identity:       identity,
		Health:         repo,
	}).SetupRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := sessionService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Pending events were not flushed", "error", err)
	}
	stopConsumer()
	if consumerDone != nil {
		select {
		case <-consumerDone:
		case <-shutdownCtx.Done():
		}
	}
	return nil
}

// startConsumer runs the spreadsheet sync when the bus has a subscriber side
func startConsumer(ctx context.Context, cfg *config.Config, repo repositories.Repository, bus *config.EventBus, logger *slog.Logger) (<-chan struct{}, error) {
	if bus.Subscriber == nil || !cfg.Sheets.Enabled {
		return nil, nil
	}

	consumer, err := events.NewConsumer(bus.Subscriber, cfg.Events.NotificationTopic, logger,
		services.NewSheetSync(repo, cfg.Sheets.OutputDir, logger))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil {
			logger.Error("Event consumer stopped", "error", err)
		}
	}()
	return done, nil
}

// ===== MIGRATE =====

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the database schema",
	}
	addCommonFlags(cmd.PersistentFlags())

	run := func(fn func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			m, err := newMigrate(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer m.Close()
			if err := fn(m, args); err != nil {
				return err
			}
			version, dirty, err := m.Version()
			if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
				return err
			}
			logger.Info("Schema version", "version", version, "dirty", dirty)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: run(func(m *migrate.Migrate, _ []string) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("up failed: %w", err)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: run(func(m *migrate.Migrate, _ []string) error {
				if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("down failed: %w", err)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE:  run(func(*migrate.Migrate, []string) error { return nil }),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(m *migrate.Migrate, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version: %w", err)
				}
				return m.Force(v)
			}),
		},
	)
	return cmd
}

func newMigrate(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("migration failed to initialize: %w", err)
	}
	return m, nil
}

// ===== EXPORT =====

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a form's sessions and answers as an xlsx workbook",
		RunE:  runExport,
	}
	addCommonFlags(cmd.Flags())
	f := cmd.Flags()
	f.Uint("form-id", 0, "Form to export (required)")
	f.StringP("output", "o", "", "Output file path (defaults to form-<id>-results.xlsx)")
	f.String("status", "", "Only sessions in this status (in_progress, submitted, violated)")
	f.String("from", "", "Only sessions started on or after this date (YYYY-MM-DD or RFC3339)")
	f.String("to", "", "Only sessions started on or before this date (YYYY-MM-DD or RFC3339)")
	_ = cmd.MarkFlagRequired("form-id")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	formID, err := cmd.Flags().GetUint("form-id")
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = fmt.Sprintf("form-%d-results.xlsx", formID)
	}
	status, _ := cmd.Flags().GetString("status")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	filter, err := services.ParseExportFilter(status, from, to)
	if err != nil {
		return err
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return err
	}
	repo := postgres.NewRepository(db, nil)
	defer repo.Close()

	data, err := services.NewExportService(repo, logger).ExportFormResults(cmd.Context(), formID, filter)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	logger.Info("Exported form results", "form_id", formID, "path", output, "bytes", len(data))
	return nil
}

// setup loads configuration for a command and installs the process logger
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := utils.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
