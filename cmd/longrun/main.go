package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ErlanBelekov/longrun-driver/config"
	"github.com/ErlanBelekov/longrun-driver/internal/appium"
	"github.com/ErlanBelekov/longrun-driver/internal/artifacts"
	"github.com/ErlanBelekov/longrun-driver/internal/ctxid"
	"github.com/ErlanBelekov/longrun-driver/internal/domain"
	"github.com/ErlanBelekov/longrun-driver/internal/events"
	"github.com/ErlanBelekov/longrun-driver/internal/health"
	"github.com/ErlanBelekov/longrun-driver/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/longrun-driver/internal/log"
	"github.com/ErlanBelekov/longrun-driver/internal/metrics"
	"github.com/ErlanBelekov/longrun-driver/internal/notify"
	"github.com/ErlanBelekov/longrun-driver/internal/repository"
	"github.com/ErlanBelekov/longrun-driver/internal/scheduler"
	httptransport "github.com/ErlanBelekov/longrun-driver/internal/transport/http"
	"github.com/ErlanBelekov/longrun-driver/internal/transport/http/handler"
	"github.com/ErlanBelekov/longrun-driver/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	runFile, err := config.LoadRun(cfg.RunConfig)
	if err != nil {
		log.Fatalf("run config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	runID := ctxid.NewRunID(time.Now())
	ctx = ctxid.WithRunID(ctx, runID)

	err = run(ctx, cfg, runFile, runID, logger)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("run %s: %v", runID, err)
	}
	logger.Info("driver shut down", "run_id", runID)
}

func run(ctx context.Context, cfg *config.Config, runFile *config.RunFile, runID string, logger *slog.Logger) (err error) {
	outDir := filepath.Join(cfg.OutputDir, runID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	jsonl, err := events.NewJSONLSink(filepath.Join(outDir, "events.jsonl"))
	if err != nil {
		return err
	}
	defer jsonl.Close()

	sinks := []events.Sink{jsonl}
	deps := map[string]health.Pinger{}
	var repo repository.EventRepository

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("db schema: %w", err)
		}
		logger.Info("db connected")

		eventRepo := postgres.NewEventRepository(pool)
		repo = eventRepo
		sinks = append(sinks, events.NewRepositorySink(eventRepo))
		deps["postgres"] = pool
	}

	evLog := events.NewLog(runID, logger, sinks...)
	metrics.Register()

	am, err := artifacts.New(outDir, artifacts.WithSerial(runFile.Android.UDID))
	if err != nil {
		return err
	}

	evLog.Record(ctx, domain.EventRunStart, map[string]any{
		"name":           runFile.Run.Name,
		"platform":       runFile.Platform,
		"duration_hours": runFile.Duration().Hours(),
		"interval_hours": runFile.Interval().Hours(),
		"out_dir":        outDir,
	})

	sender := notify.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	defer func() {
		finish(evLog, sender, cfg.NotifyTo, runFile.Run.Name, outDir, err, logger)
	}()
	defer func() {
		if err != nil && !errors.Is(err, context.Canceled) {
			evLog.Record(ctx, domain.EventRunFailed, map[string]any{"error": err.Error()})
		}
	}()

	monitor := health.NewMonitor(evLog, logger, prometheus.DefaultRegisterer)
	sched := scheduler.New(scheduler.Config{
		Duration:         runFile.Duration(),
		Interval:         runFile.Interval(),
		StartImmediately: runFile.StartImmediately(),
		StartDelay:       cfg.StartDelay(),
		PollInterval:     cfg.PollInterval(),
		Plan:             runFile.Plan(),
	}, monitor, evLog, logger)

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	driver, err := appium.Connect(ctx, runFile.AppiumOptions(), evLog, am, logger)
	if err != nil {
		shutdown(logger, metricsSrv)
		return fmt.Errorf("appium: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := driver.Close(closeCtx); err != nil {
			logger.Warn("close appium session", "error", err)
		}
	}()
	deps["appium"] = driver

	checker := health.NewChecker(deps, logger, prometheus.DefaultRegisterer)
	panel := &http.Server{
		Addr: ":" + cfg.PanelPort,
		Handler: httptransport.NewRouter(logger, runID,
			handler.NewHealthHandler(checker),
			handler.NewRunHandler(runFile.Run.Name, outDir, sched, evLog, repo, logger),
		),
	}
	go func() {
		logger.Info("panel started", "port", cfg.PanelPort)
		if err := panel.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("panel", "error", err)
		}
	}()
	defer shutdown(logger, panel, metricsSrv)

	runner := workflow.New(driver, workflow.Selectors(runFile.PlatformSelectors()), evLog, logger)
	if err := runner.EnsureMeasurementStarted(ctx); err != nil {
		return fmt.Errorf("start measurement: %w", err)
	}
	evLog.Record(ctx, domain.EventMeasurementStarted, map[string]any{})

	job := workflow.NewSymptomJob(runner, runFile.SymptomCatalog, nil)
	return sched.Run(ctx, job, driver)
}

// finish renders the summary and notifies, whatever the outcome.
func finish(evLog *events.Log, sender notify.Sender, to []string, name, outDir string, runErr error, logger *slog.Logger) {
	path, err := events.WriteSummaryFile(name, outDir, evLog.Events())
	if err != nil {
		logger.Error("write summary", "error", err)
	} else {
		logger.Info("summary written", "path", path)
	}

	status := "ok"
	switch {
	case errors.Is(runErr, context.Canceled):
		status = "aborted"
	case runErr != nil:
		status = "failed: " + runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := notify.RunFinished(ctx, sender, to, evLog.RunID(), status, path); err != nil {
		logger.Error("notify", "error", err)
		evLog.Record(ctx, domain.EventNotifyFailed, map[string]any{"error": err.Error()})
	}
}

func shutdown(logger *slog.Logger, servers ...*http.Server) {
	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown", "addr", srv.Addr, "error", err)
		}
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
