package http

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"gazeta/internal/crawler"
	"gazeta/internal/model"
	"gazeta/internal/queue"
	"gazeta/internal/store"
)

var pipelineQueues = []string{model.QueueCrawl, model.QueueOCR, model.QueueAnalysis, model.QueueWebhook}

func rootHandler(c *fiber.Ctx) error {
	registry := c.Locals("registry").(*crawler.Registry)
	return c.JSON(fiber.Map{
		"service": "gazeta",
		"status":  "ok",
		"spiders": registry.Count(),
	})
}

func spidersHandler(c *fiber.Ctx) error {
	registry := c.Locals("registry").(*crawler.Registry)
	descriptors := registry.Descriptors(c.Query("type"))

	spiders := make([]crawlerSpiderEntry, 0, len(descriptors))
	for _, d := range descriptors {
		spiders = append(spiders, crawlerSpiderEntry{
			SpiderID:    d.SpiderID,
			TerritoryID: d.TerritoryID,
			Name:        d.Name,
			SpiderType:  d.SpiderType,
		})
	}
	return c.JSON(SpidersResponse{Success: true, Total: len(spiders), Spiders: spiders})
}

func statsHandler(c *fiber.Ctx) error {
	registry := c.Locals("registry").(*crawler.Registry)
	fabric := c.Locals("fabric").(*queue.Fabric)
	st := c.Locals("store").(*store.Store)

	queues := make(map[string]map[string]int, len(pipelineQueues))
	for _, q := range pipelineQueues {
		depths, err := fabric.Depths(c.Context(), q)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
				Success: false,
				Code:    "STATS_QUEUE_FAILED",
				Error:   err.Error(),
			})
		}
		queues[q] = depths
	}

	unresolved, err := st.ListUnresolvedErrors(c.Context(), 100)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "STATS_ERRORS_FAILED",
			Error:   err.Error(),
		})
	}

	return c.JSON(StatsResponse{
		Success:        true,
		Spiders:        registry.Count(),
		SpidersByType:  registry.CountByType(),
		Queues:         queues,
		UnresolvedErrs: len(unresolved),
	})
}

func queueHealthHandler(c *fiber.Ctx) error {
	fabric := c.Locals("fabric").(*queue.Fabric)

	queues := make(map[string]map[string]int, len(pipelineQueues))
	healthy := true
	for _, q := range pipelineQueues {
		depths, err := fabric.Depths(c.Context(), q)
		if err != nil {
			healthy = false
			continue
		}
		queues[q] = depths
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "error"
		code = http.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "queues": queues})
}

func crawlJobStatusHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid crawl job id",
		})
	}

	job, err := st.GetCrawlJob(c.Context(), jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "crawl job not found",
		})
	}
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "CRAWL_JOB_LOOKUP_FAILED",
			Error:   err.Error(),
		})
	}

	resp := CrawlJobResponse{
		Success:         true,
		ID:              job.ID.String(),
		JobType:         job.JobType,
		Status:          string(job.Status),
		TotalCities:     job.TotalCities,
		CompletedCities: job.CompletedCities,
		FailedCities:    job.FailedCities,
		StartDate:       job.StartDate.Format("2006-01-02"),
		EndDate:         job.EndDate.Format("2006-01-02"),
		PlatformFilter:  job.PlatformFilter.String,
		CreatedAt:       job.CreatedAt.UTC().Format(time.RFC3339),
	}
	// Cities that finished the full pipeline, counted from telemetry.
	// Best effort: a telemetry failure does not fail the status read.
	if n, err := st.CountProcessedCities(c.Context(), job.ID.String()); err == nil {
		resp.ProcessedCities = n
	}
	if job.StartedAt.Valid {
		resp.StartedAt = job.StartedAt.Time.UTC().Format(time.RFC3339)
	}
	if job.CompletedAt.Valid {
		resp.CompletedAt = job.CompletedAt.Time.UTC().Format(time.RFC3339)
	}
	return c.JSON(resp)
}
