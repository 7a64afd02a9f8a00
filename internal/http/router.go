// Package http exposes the dispatcher API: crawl submission, spider
// listings, pipeline stats and health. Crawling itself always happens
// in the workers, never in a request handler.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"gazeta/internal/cache"
	"gazeta/internal/config"
	"gazeta/internal/crawler"
	"gazeta/internal/metrics"
	"gazeta/internal/queue"
	"gazeta/internal/services"
	"gazeta/internal/store"
)

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

// NewServer wires the fiber app, middleware and routes.
func NewServer(cfg *config.Config, st *store.Store, fabric *queue.Fabric, c *cache.Cache, registry *crawler.Registry, dispatch *services.DispatchService, logger *slog.Logger) *Server {
	app := fiber.New()

	// Inject shared components into the request context for handlers.
	app.Use(func(ctx *fiber.Ctx) error {
		ctx.Locals("config", cfg)
		ctx.Locals("store", st)
		ctx.Locals("fabric", fabric)
		ctx.Locals("registry", registry)
		ctx.Locals("dispatch", dispatch)
		return ctx.Next()
	})

	// Request logging + metrics middleware.
	app.Use(func(ctx *fiber.Ctx) error {
		start := time.Now()

		reqID := ctx.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		ctx.Locals("request_id", reqID)
		if logger != nil {
			ctx.Locals("logger", logger)
		}

		err := ctx.Next()

		latency := time.Since(start)
		status := ctx.Response().StatusCode()
		metrics.RecordRequest(ctx.Method(), ctx.Path(), status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", ctx.Method(),
				"path", ctx.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds())
		}
		return err
	})

	// Health endpoints.
	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		if ctx.Query("deep") != "true" {
			return ctx.JSON(fiber.Map{"status": "ok"})
		}

		deepCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := st.DB.PingContext(deepCtx); err != nil {
			dbStatus = "error"
		}
		redisStatus := "ok"
		if !c.Ping(deepCtx) {
			redisStatus = "error"
		}

		status := "ok"
		if dbStatus != "ok" {
			status = "error"
		}
		return ctx.JSON(fiber.Map{
			"status": status,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	})

	// Prometheus-style metrics endpoint.
	app.Get("/metrics", func(ctx *fiber.Ctx) error {
		ctx.Type("text/plain")
		return ctx.SendString(metrics.Export())
	})

	app.Get("/", rootHandler)
	app.Post("/crawl", crawlHandler)
	app.Post("/crawl/today-yesterday", todayYesterdayHandler)
	app.Post("/crawl/cities", crawlCitiesHandler)
	app.Get("/crawl-jobs/:id", crawlJobStatusHandler)
	app.Get("/spiders", spidersHandler)
	app.Get("/stats", statsHandler)
	app.Get("/health/queue", queueHealthHandler)

	return &Server{app: app, config: cfg, logger: logger}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
