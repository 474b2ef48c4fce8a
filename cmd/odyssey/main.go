package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-sourcing/internal/app"
	"github.com/odyssey-erp/odyssey-sourcing/internal/observability"
	"github.com/odyssey-erp/odyssey-sourcing/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-sourcing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-sourcing/internal/procurement"
	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
	rfqhttp "github.com/odyssey-erp/odyssey-sourcing/internal/rfq/http"
	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
	"github.com/odyssey-erp/odyssey-sourcing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	redisOpt := jobs.RedisOpt(redisClient.Options())

	var sink rfq.Sink
	var jobClient *jobs.Client
	if cfg.AuditQueue {
		jobClient, err = jobs.NewClient(redisOpt)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		sink = jobs.NewQueueSink(jobClient)
	} else {
		direct := rfq.MultiSink{rfq.NewAuditLogSink(auditLogger)}
		if cfg.AuditSinkURL != "" {
			direct = append(direct, rfq.NewHTTPSink(cfg.AuditSinkURL, cfg.AuditSinkTimeout))
		}
		sink = direct
	}

	outbox := rfq.NewOutbox(sink, rfq.OutboxConfig{
		Buffer:   cfg.OutboxBuffer,
		Timeout:  cfg.AuditSinkTimeout,
		Logger:   logger,
		Recorder: metrics,
	})
	outbox.Start(context.WithoutCancel(ctx))

	rfqRepo := rfq.NewRepository(dbpool)
	comparisonService := rfq.NewService(rfqRepo, rfq.NewRedisStore(redisClient, cfg.ComparisonTTL), outbox, rfq.ServiceConfig{
		TieBreak: cfg.TieBreak(),
		Currency: cfg.Currency,
		Logger:   logger,
		Recorder: metrics,
	})
	comparisonHandler := rfqhttp.NewHandler(logger, comparisonService, auditLogger)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(procurementRepo, comparisonService, approvalRecorder, auditLogger, idempotencyStore)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ComparisonHandler:  comparisonHandler,
		ProcurementHandler: procurementHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
		Ready: func(r *http.Request) error {
			if err := dbpool.Ping(r.Context()); err != nil {
				return err
			}
			return redisClient.Ping(r.Context()).Err()
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("tie_break", string(cfg.TieBreak())),
			slog.Bool("audit_queue", cfg.AuditQueue))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	if err := outbox.Close(shutdownCtx); err != nil {
		logger.Warn("audit outbox drain", slog.Any("error", err))
	}
}
