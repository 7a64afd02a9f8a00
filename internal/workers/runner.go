// Package workers hosts the four stage consumers of the pipeline:
// crawl, ocr, analysis and webhook. Each stage polls its queue with a
// bounded pool; correctness never depends on a message being seen
// exactly once.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gazeta/internal/config"
	"gazeta/internal/metrics"
	"gazeta/internal/queue"
	"gazeta/internal/store"
)

// Handler consumes deliveries from one queue. Returning an error
// retries the delivery unless the handler already settled it.
type Handler interface {
	Queue() string
	Handle(ctx context.Context, d *queue.Delivery) error
}

type stage struct {
	handler Handler
	pool    config.WorkerPoolConfig
}

// Runner polls the queue fabric and dispatches deliveries to stage
// handlers under per-stage concurrency limits. It also runs the claim
// reaper and the retention sweep.
type Runner struct {
	cfg    *config.Config
	fabric *queue.Fabric
	st     *store.Store
	logger *slog.Logger
	stages []stage
}

// NewRunner builds a runner for the given stage handlers.
func NewRunner(cfg *config.Config, fabric *queue.Fabric, st *store.Store, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, fabric: fabric, st: st, logger: logger}
}

// Register adds one stage handler with its pool configuration.
func (r *Runner) Register(h Handler, pool config.WorkerPoolConfig) {
	r.stages = append(r.stages, stage{handler: h, pool: pool})
}

// Start runs every stage pool plus the reaper and retention loops until
// the context is cancelled. It blocks; callers run it in a goroutine
// when they also serve HTTP.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup

	for _, s := range r.stages {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runStage(ctx, s)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.runReaper(ctx)
	}()

	if r.cfg.Retention.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runRetention(ctx)
		}()
	}

	wg.Wait()
}

func (r *Runner) runStage(ctx context.Context, s stage) {
	pollInterval := time.Duration(r.cfg.Queue.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	concurrency := s.pool.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	batch := s.pool.ReceiveBatch
	if batch <= 0 {
		batch = concurrency
	}

	sem := make(chan struct{}, concurrency)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	queueName := s.handler.Queue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		capacity := concurrency - len(sem)
		if capacity <= 0 {
			continue
		}
		if capacity > batch {
			capacity = batch
		}

		deliveries, err := r.fabric.Receive(ctx, queueName, capacity)
		if err != nil {
			r.logger.Error("queue_receive_failed", "queue", queueName, "error", err.Error())
			continue
		}

		for _, d := range deliveries {
			d := d
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				r.dispatch(ctx, s.handler, d)
			}()
		}
	}
}

// dispatch runs one delivery and settles it according to the handler's
// returned error, unless the handler settled it already.
func (r *Runner) dispatch(ctx context.Context, h Handler, d *queue.Delivery) {
	started := time.Now()
	err := h.Handle(ctx, d)
	elapsed := time.Since(started).Milliseconds()

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStage(h.Queue(), status, elapsed)

	if d.Settled() {
		return
	}
	if err != nil {
		r.logger.Warn("stage_handler_failed",
			"queue", h.Queue(), "message_id", d.ID().String(),
			"attempt", d.Attempt(), "error", err.Error())
		if _, rerr := d.Retry(ctx, err.Error()); rerr != nil {
			r.logger.Error("queue_retry_failed", "queue", h.Queue(), "error", rerr.Error())
		}
		return
	}
	if aerr := d.Ack(ctx); aerr != nil {
		r.logger.Error("queue_ack_failed", "queue", h.Queue(), "error", aerr.Error())
	}
}

// runReaper periodically requeues claims that outlived the visibility
// timeout, so a crashed worker's messages get redelivered.
func (r *Runner) runReaper(ctx context.Context) {
	visibility := time.Duration(r.cfg.Queue.VisibilityTimeoutSec) * time.Second
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}

	ticker := time.NewTicker(visibility / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := r.fabric.Reap(ctx, visibility)
		if err != nil {
			r.logger.Error("queue_reap_failed", "error", err.Error())
			continue
		}
		if n > 0 {
			r.logger.Warn("queue_claims_reaped", "count", n)
		}
	}
}

func (r *Runner) runRetention(ctx context.Context) {
	interval := time.Duration(r.cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.sweep(ctx)
	}
}

func (r *Runner) sweep(ctx context.Context) {
	now := time.Now().UTC()

	if days := r.cfg.Retention.QueueDoneDays; days > 0 {
		if n, err := r.st.DeleteDoneMessagesBefore(ctx, now.AddDate(0, 0, -days)); err == nil && n > 0 {
			metrics.RecordRetention("queue_done", n)
			r.logger.Info("retention_queue_cleaned", "deleted", n)
		}
	}
	if days := r.cfg.Retention.ResolvedErrorDays; days > 0 {
		if n, err := r.st.DeleteResolvedErrorsBefore(ctx, now.AddDate(0, 0, -days)); err == nil && n > 0 {
			metrics.RecordRetention("resolved_errors", n)
			r.logger.Info("retention_errors_cleaned", "deleted", n)
		}
	}
	if days := r.cfg.Retention.TelemetryDays; days > 0 {
		if n, err := r.st.DeleteTelemetryBefore(ctx, now.AddDate(0, 0, -days)); err == nil && n > 0 {
			metrics.RecordRetention("telemetry", n)
			r.logger.Info("retention_telemetry_cleaned", "deleted", n)
		}
	}
}
