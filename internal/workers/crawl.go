package workers

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gazeta/internal/crawler"
	"gazeta/internal/model"
	"gazeta/internal/queue"
	"gazeta/internal/store"
)

// CrawlWorker consumes crawl messages: it runs one city's crawler,
// registers discovered gazettes and fans them into the OCR queue.
type CrawlWorker struct {
	st       *store.Store
	fabric   *queue.Fabric
	registry *crawler.Registry
	logger   *slog.Logger
	track    tracker
}

// NewCrawlWorker builds the crawl stage consumer.
func NewCrawlWorker(st *store.Store, fabric *queue.Fabric, registry *crawler.Registry, logger *slog.Logger) *CrawlWorker {
	return &CrawlWorker{st: st, fabric: fabric, registry: registry, logger: logger, track: tracker{st: st}}
}

func (w *CrawlWorker) Queue() string { return model.QueueCrawl }

func (w *CrawlWorker) Handle(ctx context.Context, d *queue.Delivery) error {
	var msg model.CrawlMessage
	if err := d.Decode(&msg); err != nil {
		// An undecodable payload can never succeed. Dead-letter it
		// via immediate exhausting retries is wrong; record and ack.
		w.track.critical(ctx, "crawl", "decode_message", "CRAWL_BAD_PAYLOAD: "+err.Error(), nil)
		return d.Ack(ctx)
	}

	started := time.Now()
	jobID := msg.Metadata.CrawlJobID
	w.track.step(ctx, jobID, msg.TerritoryID, msg.SpiderID, "crawl_start", "running", nil)

	cr, err := w.registry.Resolve(msg.SpiderType, msg.Config, msg.DateRange)
	if err != nil {
		// Unknown spider type is permanent; retrying cannot help.
		w.failCity(ctx, msg, started, "CRAWL_UNKNOWN_SPIDER: "+err.Error())
		return d.Ack(ctx)
	}

	candidates, err := cr.Crawl(ctx)
	if err != nil {
		dead, rerr := d.Retry(ctx, "crawl failed: "+err.Error())
		if rerr != nil {
			return rerr
		}
		if dead {
			w.failCity(ctx, msg, started, "CRAWL_FAILED: "+err.Error())
		}
		return nil
	}

	ocrMsgs := make([]any, 0, len(candidates))
	for _, cand := range candidates {
		ocrMsg, err := w.routeCandidate(ctx, msg, cand)
		if err != nil {
			w.logger.Warn("candidate_routing_failed",
				"territory_id", cand.TerritoryID, "pdf_url", cand.PDFURL, "error", err.Error())
			w.track.warn(ctx, "crawl", "route_candidate", err.Error(),
				map[string]string{"pdfUrl": cand.PDFURL, "territoryId": cand.TerritoryID})
			continue
		}
		if ocrMsg != nil {
			ocrMsgs = append(ocrMsgs, ocrMsg)
		}
	}

	if len(ocrMsgs) > 0 {
		enqueued, failed := w.fabric.SendBatch(ctx, model.QueueOCR, ocrMsgs)
		if failed > 0 {
			w.logger.Warn("ocr_enqueue_partial", "enqueued", enqueued, "failed", failed)
		}
	}

	w.track.step(ctx, jobID, msg.TerritoryID, msg.SpiderID, "crawl_end", "success", map[string]any{
		"gazettesFound":   len(candidates),
		"requests":        cr.RequestCount(),
		"executionTimeMs": time.Since(started).Milliseconds(),
	})
	w.logger.Info("crawl_done",
		"spider_id", msg.SpiderID, "territory_id", msg.TerritoryID,
		"gazettes_found", len(candidates), "enqueued_ocr", len(ocrMsgs))

	w.finishCity(ctx, jobID, false)
	return nil
}

// routeCandidate registers one discovered PDF and decides whether it
// needs an OCR message. Routing depends on the registry status so a
// gazette already processed (or definitively failed) is not re-OCR'd.
func (w *CrawlWorker) routeCandidate(ctx context.Context, msg model.CrawlMessage, cand model.GazetteCandidate) (*model.OcrMessage, error) {
	var created bool
	reg, err := w.st.LookupRegistryByPDFURL(ctx, cand.PDFURL)
	if errors.Is(err, sql.ErrNoRows) {
		reg, created, err = w.st.InsertRegistry(ctx, cand)
	}
	if err != nil {
		return nil, err
	}

	crawlStatus := model.CrawlProcessing
	enqueue := true
	switch {
	case created:
		crawlStatus = model.CrawlCreated
	case reg.Status == model.RegistryOcrSuccess:
		crawlStatus = model.CrawlSuccess
	case reg.Status == model.RegistryOcrFailure:
		crawlStatus = model.CrawlFailed
		enqueue = false
	}

	stageID := stageJobID(msg.Metadata.CrawlJobID, cand.PDFURL)
	gc, err := w.st.InsertGazetteCrawl(ctx, "crawl-"+stageID, cand.TerritoryID, msg.SpiderID,
		reg.ID, crawlStatus, cand.ScrapedAt)
	if err != nil {
		return nil, err
	}
	if !enqueue {
		return nil, nil
	}

	return &model.OcrMessage{
		JobID:           "ocr-" + stageID,
		PDFURL:          cand.PDFURL,
		TerritoryID:     cand.TerritoryID,
		PublicationDate: cand.PublicationDate,
		EditionNumber:   cand.EditionNumber,
		SpiderID:        msg.SpiderID,
		QueuedAt:        time.Now().UTC(),
		Metadata: model.OcrMessageMeta{
			Power:          cand.Power,
			IsExtraEdition: cand.IsExtraEdition,
			SourceText:     cand.SourceText,
			CrawlJobID:     msg.Metadata.CrawlJobID,
			GazetteCrawlID: gc.ID.String(),
		},
	}, nil
}

func (w *CrawlWorker) failCity(ctx context.Context, msg model.CrawlMessage, started time.Time, reason string) {
	w.track.step(ctx, msg.Metadata.CrawlJobID, msg.TerritoryID, msg.SpiderID, "crawl_end", "failed", map[string]any{
		"error":           reason,
		"executionTimeMs": time.Since(started).Milliseconds(),
	})
	w.track.critical(ctx, "crawl", "crawl_city", reason,
		map[string]string{"spiderId": msg.SpiderID, "territoryId": msg.TerritoryID})
	w.finishCity(ctx, msg.Metadata.CrawlJobID, true)
}

// finishCity bumps the parent job counters and flips the job to its
// terminal state once every city has reported in.
func (w *CrawlWorker) finishCity(ctx context.Context, crawlJobID string, failed bool) {
	id, err := uuid.Parse(crawlJobID)
	if err != nil {
		return
	}
	if err := w.st.RecordCityOutcome(ctx, id, failed); err != nil {
		w.logger.Warn("city_outcome_record_failed", "crawl_job_id", crawlJobID, "error", err.Error())
		return
	}
	done, err := w.st.FinishCrawlJobIfDone(ctx, id)
	if err != nil {
		w.logger.Warn("crawl_job_finish_failed", "crawl_job_id", crawlJobID, "error", err.Error())
		return
	}
	if done {
		w.logger.Info("crawl_job_finished", "crawl_job_id", crawlJobID)
	}
}

// stageJobID derives a stable id for downstream rows and messages from
// the crawl job and PDF URL, so redelivered crawl messages reuse the
// same gazette_crawls and ocr_jobs rows instead of minting new ones.
func stageJobID(crawlJobID, pdfURL string) string {
	sum := sha256.Sum256([]byte(crawlJobID + "\x00" + pdfURL))
	return hex.EncodeToString(sum[:8])
}
