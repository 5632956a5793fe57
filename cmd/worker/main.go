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

	"automation-platform/internal/actions"
	"automation-platform/internal/automation"
	"automation-platform/internal/config"
	"automation-platform/internal/documents"
	"automation-platform/internal/events"
	"automation-platform/internal/executions"
	"automation-platform/internal/metrics"
	"automation-platform/internal/notify"
	"automation-platform/internal/rules"
	"automation-platform/internal/storage"
	"automation-platform/internal/workflows"
	"automation-platform/pkg/logger"
	"automation-platform/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.Migrate(db); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	bus := events.NewRedisBus(rdb, logger.Component(log, "bus"), cfg.Bus.BlockWait)
	log.Info("pending reclaim is manual; re-drive stuck entries with XAUTOCLAIM",
		"stream", cfg.Bus.Stream)
	ruleRepo := rules.NewPostgresRepo(db)
	recordRepo := executions.NewPostgresRepo(db)
	workflowRepo := workflows.NewPostgresRepo(db)

	if cfg.RulesFile != "" {
		file, err := rules.LoadRuleFile(cfg.RulesFile)
		if err != nil {
			log.Error("rule seed load failed", "file", cfg.RulesFile, "err", err)
			os.Exit(1)
		}
		n, err := rules.Seed(rootCtx, ruleRepo, file)
		if err != nil {
			log.Error("rule seed failed", "err", err)
			os.Exit(1)
		}
		log.Info("rules seeded", "file", cfg.RulesFile, "count", n)
	}

	var sender notify.Sender
	if cfg.SMTP.Enabled() {
		sender = notify.NewSMTPSender(cfg.SMTP)
	} else {
		sender = notify.LogSender{Log: logger.Component(log, "mail")}
	}

	renderer := documents.NewRenderer(cfg.Docs.OutputDir)
	workflowSvc := workflows.NewService(workflowRepo, bus, cfg.Bus.Stream,
		logger.Component(log, "workflows"))
	recordStore := storage.NewRecords(db, "work_items")

	registry := actions.NewRegistry(
		actions.EmailExecutor{Sender: sender},
		actions.FlowExecutor{Starter: workflowSvc},
		actions.DatabaseExecutor{Store: recordStore},
		actions.WebhookExecutor{},
		actions.TaskExecutor{Assigner: workflowSvc},
		actions.PDFExecutor{Renderer: renderer},
	)
	pipeline := actions.NewPipeline(registry, logger.Component(log, "pipeline"))

	m := metrics.New()
	consumer := automation.NewConsumer(
		bus,
		rules.NewMatcher(ruleRepo),
		pipeline,
		recordRepo,
		m,
		logger.Component(log, "consumer"),
		automation.Options{
			Stream:         cfg.Bus.Stream,
			Group:          cfg.Bus.Group,
			Consumer:       cfg.Bus.Consumer,
			RestartBackoff: cfg.Bus.RestartBackoff,
		},
	)

	engine := workflows.NewEngine(workflowSvc,
		workflows.RedisGuard{Client: rdb, TTL: 30 * time.Second},
		logger.Component(log, "progression"))

	var metricsSrv *http.Server
	if cfg.Bus.MetricsPort > 0 {
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr(),
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "err", err)
			}
		}()
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("consumer starting",
			"stream", cfg.Bus.Stream, "group", cfg.Bus.Group, "consumer", cfg.Bus.Consumer)
		errCh <- consumer.Run(rootCtx)
	}()
	go func() {
		group := cfg.Bus.Group + "-workflow"
		log.Info("progression engine starting", "stream", cfg.Bus.Stream, "group", group)
		errCh <- engine.Run(rootCtx, group, cfg.Bus.Consumer)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker loop failed", "err", err)
		}
		stop()
	}
	log.Info("shutdown initiated")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown failed", "err", err)
		}
	}
}
