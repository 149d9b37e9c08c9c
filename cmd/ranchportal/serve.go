package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"

	"github.com/doublec/ranchportal/internal/bot"
	"github.com/doublec/ranchportal/internal/config"
	"github.com/doublec/ranchportal/internal/db"
	"github.com/doublec/ranchportal/internal/handlers"
	"github.com/doublec/ranchportal/internal/jobs"
	"github.com/doublec/ranchportal/internal/services"
	"github.com/doublec/ranchportal/internal/telemetry"
	"github.com/doublec/ranchportal/internal/templates"
	"github.com/doublec/ranchportal/internal/web"
)

const shutdownTimeout = 15 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web portal, background jobs and Telegram webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd, mustConfig(cmd))
		},
	}
}

// openService opens the database and builds the service layer. reg may be
// nil for one-shot commands.
func openService(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*services.Service, error) {
	level := gormlogger.Warn
	if globalFlags.debug || cfg.Debug {
		level = gormlogger.Info
	}
	opts := []db.Option{
		db.WithLogger(gormlogger.New(
			slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
			gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
			},
		)),
	}
	if cfg.OtelEndpoint != "" {
		opts = append(opts, db.WithTracing())
	}
	if err := db.Init(cfg.DatabasePath, logger, opts...); err != nil {
		return nil, err
	}
	svcOpts := []services.Option{services.WithLogger(logger)}
	if reg != nil {
		svcOpts = append(svcOpts, services.WithPromRegistry(reg))
	}
	return services.New(db.Conn(), svcOpts...), nil
}

func serveRun(cmd *cobra.Command, cfg *config.Config) error {
	logger := commonRun(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, programName, version, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc, err := openService(cfg, logger, reg)
	if err != nil {
		return err
	}

	var tg *bot.Bot
	if cfg.TelegramToken != "" {
		tg = bot.New(bot.NewClient(cfg.TelegramToken), svc, logger, cfg.PublicURL, cfg.Location())
		tg.Subscribe()
		defer bot.Unsubscribe()
	} else {
		logger.Info("telegram disabled", "component", programName)
	}

	runner := jobs.NewRunner(ctx, logger)
	runner.Every("attendance", cfg.AttendanceInterval, true, jobs.RecomputeAttendance(svc))
	if tg != nil {
		runner.Every("document-reminders", cfg.ReminderInterval, false, jobs.DocumentReminders(tg))
	}
	defer runner.Stop()

	loc := cfg.Location()
	h := handlers.New(handlers.Options{
		Service:       svc,
		Sessions:      handlers.NewSessions(cfg.SessionSecret, cfg.SessionTTL),
		Templates:     web.MustParseTemplates(templates.FS, loc),
		Pages:         templates.FS,
		Bot:           tg,
		Logger:        logger,
		Location:      loc,
		PublicURL:     cfg.PublicURL,
		WebhookSecret: cfg.TelegramWebhookSecret,
	})
	if cfg.SessionSecret == "" {
		logger.Warn("sessionSecret not set, sessions will not survive a restart", "component", programName)
	}

	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		gatherer = reg
	}
	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           web.Router(h, gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "component", programName, "addr", cfg.BindAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "component", programName)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
