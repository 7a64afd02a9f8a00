package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gazeta/internal/analysis"
	"gazeta/internal/cache"
	"gazeta/internal/config"
	"gazeta/internal/crawler"
	server "gazeta/internal/http"
	"gazeta/internal/llm"
	"gazeta/internal/migrate"
	"gazeta/internal/ocr"
	"gazeta/internal/queue"
	"gazeta/internal/services"
	"gazeta/internal/store"
	"gazeta/internal/webhook"
	"gazeta/internal/workers"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// Redis is optional; a nil cache degrades every read to a miss.
	var hot *cache.Cache
	if cfg.Redis.URL != "" {
		hot, err = cache.New(cfg.Redis.URL, logger)
		if err != nil {
			logger.Warn("redis_unavailable", "error", err.Error())
			hot = nil
		}
	}

	fabric := queue.New(st, cfg.Queue.MaxRetriesPerMessage, cfg.Queue.BatchSize, logger)

	registry := crawler.NewRegistry()
	if cfg.Spiders.File != "" {
		n, err := registry.LoadFile(cfg.Spiders.File)
		if err != nil {
			log.Fatalf("load spiders failed: %v", err)
		}
		logger.Info("spiders_loaded", "count", n, "file", cfg.Spiders.File)
	}

	rootCtx := context.Background()

	// Seed the default subscription from config, idempotently.
	if cfg.Webhook.Endpoint != "" {
		if _, err := st.EnsureSubscription(rootCtx, cfg.Webhook.Endpoint, cfg.Webhook.AuthType,
			cfg.Webhook.AuthToken, []string{webhook.EventConcursoFindings}); err != nil {
			log.Fatalf("ensure webhook subscription failed: %v", err)
		}
	}

	dispatch := services.NewDispatchService(st, fabric, registry, logger)

	startWorkers := func() {
		llmClient, err := llm.NewClientFromConfig(cfg)
		if err != nil {
			logger.Warn("llm_disabled", "error", err.Error())
			llmClient = nil
		}

		engine := analysis.NewEngine(cfg.Analyzers, llmClient, logger)
		provider := ocr.NewClient(cfg.OCR)
		whClient := webhook.NewClient(time.Duration(cfg.Webhook.TimeoutSec)*time.Second, cfg.Webhook.UserAgent)

		runner := workers.NewRunner(cfg, fabric, st, logger)
		runner.Register(workers.NewCrawlWorker(st, fabric, registry, logger), cfg.Workers.Crawl)
		runner.Register(workers.NewOCRWorker(st, fabric, hot, provider, cfg.OCR, logger), cfg.Workers.OCR)
		runner.Register(workers.NewAnalysisWorker(st, fabric, hot, engine, cfg.Analyzers, logger), cfg.Workers.Analysis)
		runner.Register(workers.NewWebhookWorker(st, whClient, cfg.Webhook, logger), cfg.Workers.Webhook)
		go runner.Start(rootCtx)
	}

	switch *role {
	case "api":
		s := server.NewServer(cfg, st, fabric, hot, registry, dispatch, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "worker":
		startWorkers()
		select {}
	case "all":
		startWorkers()
		s := server.NewServer(cfg, st, fabric, hot, registry, dispatch, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}
