package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"

	"github.com/odyssey-erp/odyssey-sourcing/internal/app"
	clitools "github.com/odyssey-erp/odyssey-sourcing/internal/cli"
	jobmetrics "github.com/odyssey-erp/odyssey-sourcing/internal/jobs"
	"github.com/odyssey-erp/odyssey-sourcing/internal/observability"
	"github.com/odyssey-erp/odyssey-sourcing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-sourcing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
	"github.com/odyssey-erp/odyssey-sourcing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	worker := &cli.App{
		Name:  "worker",
		Usage: "Background jobs for the sourcing service",
		Commands: []*cli.Command{
			runCmd,
			triggerCmd,
			statsCmd,
			failedCmd,
		},
		DefaultCommand: runCmd.Name,
	}
	if err := worker.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Process audit deliveries and scheduled maintenance",
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

var triggerCmd = &cli.Command{
	Name:      "trigger",
	Usage:     "Enqueue a maintenance job by task name",
	ArgsUsage: "<task>",
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return errors.New("task name required")
		}
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		tools, err := clitools.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer tools.Close()
		info, err := tools.Trigger(c.Context, name, cfg.IdempotencyRetention)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(c.App.Writer, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "Print queue depth as JSON",
	Action: func(c *cli.Context) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		tools, err := clitools.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer tools.Close()
		stats, err := tools.InspectQueues(c.Context)
		if err != nil {
			return err
		}
		return json.NewEncoder(c.App.Writer).Encode(stats)
	},
}

var failedCmd = &cli.Command{
	Name:  "failed",
	Usage: "List audit deliveries that failed and were archived",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum tasks to list"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		tools, err := clitools.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer tools.Close()
		tasks, err := tools.ListFailedDeliveries(c.Context, c.Int("limit"))
		if err != nil {
			return err
		}
		for _, info := range tasks {
			_, _ = fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", info.ID, info.LastFailedAt.UTC().Format(time.RFC3339), info.LastErr)
		}
		return nil
	},
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisOpts, err := cache.Options(cfg.RedisAddr)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	sink := rfq.MultiSink{rfq.NewAuditLogSink(shared.NewAuditLogger(pool))}
	if cfg.AuditSinkURL != "" {
		sink = append(sink, rfq.NewHTTPSink(cfg.AuditSinkURL, cfg.AuditSinkTimeout))
	}
	deliveryJob := jobs.NewAuditDeliveryJob(sink, logger, jobMetrics, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, jobMetrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		return fmt.Errorf("build cleanup task: %w", err)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   jobs.RedisOpt(redisOpts),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditDeliver, Handler: deliveryJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.IdempotencyCleanup, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency), slog.Bool("http_sink", cfg.AuditSinkURL != ""))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker run: %w", err)
	}
	return nil
}
