// Package services holds the dispatcher: the piece that turns one crawl
// request into a CrawlJob row plus one queued message per city.
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gazeta/internal/crawler"
	"gazeta/internal/model"
	"gazeta/internal/queue"
	"gazeta/internal/store"
)

// ErrNoCities is returned when a dispatch request matches no registered
// spider.
var ErrNoCities = errors.New("no valid cities to dispatch")

// DispatchRequest selects which cities to crawl and over which dates.
// An empty SpiderIDs list means every registered spider, optionally
// narrowed by PlatformFilter.
type DispatchRequest struct {
	JobType        string
	DateRange      model.DateRange
	SpiderIDs      []string
	PlatformFilter string
}

// DispatchResult reports how the fan-out went. DateRange echoes the
// effective range after defaulting.
type DispatchResult struct {
	CrawlJobID uuid.UUID
	Cities     int
	Enqueued   int
	Failed     int
	Invalid    []string
	DateRange  model.DateRange
}

// DispatchService creates crawl jobs and fans cities into the crawl
// queue. It never crawls anything itself.
type DispatchService struct {
	st       *store.Store
	fabric   *queue.Fabric
	registry *crawler.Registry
	logger   *slog.Logger
}

// NewDispatchService builds the dispatcher.
func NewDispatchService(st *store.Store, fabric *queue.Fabric, registry *crawler.Registry, logger *slog.Logger) *DispatchService {
	return &DispatchService{st: st, fabric: fabric, registry: registry, logger: logger}
}

// Dispatch creates a running CrawlJob and enqueues one crawl message
// per selected city, in bounded batches with individual fallback.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	descriptors, invalid := s.selectSpiders(req)
	if len(descriptors) == 0 {
		return DispatchResult{Invalid: invalid}, ErrNoCities
	}

	if req.DateRange.Start == "" || req.DateRange.End == "" {
		today := time.Now().UTC().Format("2006-01-02")
		req.DateRange = model.DateRange{Start: today, End: today}
	}

	jobID := newJobID()
	job, err := s.st.CreateCrawlJob(ctx, jobID, req.JobType, len(descriptors), req.DateRange,
		req.PlatformFilter, map[string]any{"invalidSpiders": invalid})
	if err != nil {
		return DispatchResult{Invalid: invalid}, err
	}

	payloads := make([]any, 0, len(descriptors))
	for _, d := range descriptors {
		payloads = append(payloads, model.CrawlMessage{
			SpiderID:    d.SpiderID,
			TerritoryID: d.TerritoryID,
			SpiderType:  d.SpiderType,
			Config:      d.Config,
			DateRange:   req.DateRange,
			Metadata:    model.CrawlMessageMeta{CrawlJobID: job.ID.String()},
		})
	}

	enqueued, failed := s.fabric.SendBatch(ctx, model.QueueCrawl, payloads)
	s.logger.Info("crawl_dispatched",
		"crawl_job_id", job.ID.String(), "job_type", req.JobType,
		"cities", len(descriptors), "enqueued", enqueued, "failed", failed)

	return DispatchResult{
		CrawlJobID: job.ID,
		Cities:     len(descriptors),
		Enqueued:   enqueued,
		Failed:     failed,
		Invalid:    invalid,
		DateRange:  req.DateRange,
	}, nil
}

// TodayYesterday dispatches the standing daily crawl over the last two
// days, optionally narrowed to one platform.
func (s *DispatchService) TodayYesterday(ctx context.Context, platform string) (DispatchResult, error) {
	now := time.Now().UTC()
	return s.Dispatch(ctx, DispatchRequest{
		JobType: "scheduled",
		DateRange: model.DateRange{
			Start: now.AddDate(0, 0, -1).Format("2006-01-02"),
			End:   now.Format("2006-01-02"),
		},
		PlatformFilter: platform,
	})
}

func (s *DispatchService) selectSpiders(req DispatchRequest) ([]crawler.Descriptor, []string) {
	if len(req.SpiderIDs) == 0 {
		return s.registry.Descriptors(req.PlatformFilter), nil
	}

	var out []crawler.Descriptor
	var invalid []string
	for _, id := range req.SpiderIDs {
		d, ok := s.registry.Get(id)
		if !ok || (req.PlatformFilter != "" && d.SpiderType != req.PlatformFilter) {
			invalid = append(invalid, id)
			continue
		}
		out = append(out, d)
	}
	return out, invalid
}

func newJobID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}
