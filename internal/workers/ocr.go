package workers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gazeta/internal/cache"
	"gazeta/internal/config"
	"gazeta/internal/model"
	"gazeta/internal/ocr"
	"gazeta/internal/queue"
	"gazeta/internal/retry"
	"gazeta/internal/store"
)

// OCRWorker consumes OCR messages. Multiple workers may race on the
// same PDF under at-least-once delivery; the registry status CAS makes
// sure exactly one of them invokes the provider.
type OCRWorker struct {
	st       *store.Store
	fabric   *queue.Fabric
	cache    *cache.Cache
	provider ocr.Provider
	cfg      config.OCRConfig
	logger   *slog.Logger
	track    tracker
}

// NewOCRWorker builds the OCR stage consumer.
func NewOCRWorker(st *store.Store, fabric *queue.Fabric, c *cache.Cache, provider ocr.Provider, cfg config.OCRConfig, logger *slog.Logger) *OCRWorker {
	return &OCRWorker{st: st, fabric: fabric, cache: c, provider: provider, cfg: cfg, logger: logger, track: tracker{st: st}}
}

func (w *OCRWorker) Queue() string { return model.QueueOCR }

func (w *OCRWorker) Handle(ctx context.Context, d *queue.Delivery) error {
	var msg model.OcrMessage
	if err := d.Decode(&msg); err != nil {
		w.track.critical(ctx, "ocr", "decode_message", "OCR_BAD_PAYLOAD: "+err.Error(), nil)
		return d.Ack(ctx)
	}

	meta := msg.Metadata
	w.track.step(ctx, meta.CrawlJobID, msg.TerritoryID, msg.SpiderID, "ocr_start", "running", nil)

	reg, err := w.st.LookupRegistryByPDFURL(ctx, msg.PDFURL)
	if errors.Is(err, sql.ErrNoRows) {
		w.track.critical(ctx, "ocr", "lookup_registry",
			"OCR_REGISTRY_MISSING: no registry row for pdf url", map[string]string{"pdfUrl": msg.PDFURL})
		return d.Ack(ctx)
	}
	if err != nil {
		return err
	}

	// Routing may need a second pass when the claim CAS is lost: the
	// winner has moved the status, so re-read and branch again.
	for pass := 0; pass < 2; pass++ {
		done, err := w.route(ctx, d, msg, reg)
		if done || err != nil {
			return err
		}
		reg, err = w.st.GetRegistryByID(ctx, reg.ID)
		if err != nil {
			return err
		}
	}

	// Still contended after a re-read; let the queue back off.
	_, err = d.Retry(ctx, "ocr claim contention for "+msg.PDFURL)
	return err
}

// route handles one registry status. done=false means the status moved
// under us and the caller should re-read and try once more.
func (w *OCRWorker) route(ctx context.Context, d *queue.Delivery, msg model.OcrMessage, reg store.GazetteRegistry) (bool, error) {
	switch reg.Status {
	case model.RegistryOcrSuccess:
		res, err := w.st.GetOcrResultByDocument(ctx, reg.ID)
		if err == nil {
			return true, w.finishSuccess(ctx, d, msg, reg, res.ExtractedText, res.ProcessingMethod, true)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return true, err
		}
		// Success flag without a stored result: reprocess.
		if err := w.st.UpdateRegistryStatus(ctx, reg.ID, model.RegistryOcrProcessing); err != nil {
			return true, err
		}
		return true, w.invoke(ctx, d, msg, reg, false)

	case model.RegistryOcrProcessing, model.RegistryOcrRetrying:
		// Another worker holds the claim. Back off and let a later
		// delivery observe the final status.
		_, err := d.Retry(ctx, "ocr in progress for "+msg.PDFURL)
		return true, err

	case model.RegistryOcrFailure:
		// A message for a failed gazette is an intentional re-drive.
		if err := w.st.UpdateRegistryStatus(ctx, reg.ID, model.RegistryOcrRetrying); err != nil {
			return true, err
		}
		return true, w.invoke(ctx, d, msg, reg, true)

	default: // pending, uploaded
		claimed, err := w.st.ClaimRegistryForOCR(ctx, reg.ID)
		if err != nil {
			return true, err
		}
		if !claimed {
			return false, nil
		}
		return true, w.invoke(ctx, d, msg, reg, false)
	}
}

// invoke runs the OCR provider while holding the claim and reconciles
// every row that depends on the outcome.
func (w *OCRWorker) invoke(ctx context.Context, d *queue.Delivery, msg model.OcrMessage, reg store.GazetteRegistry, isRetry bool) error {
	job, err := w.st.InsertOcrJob(ctx, reg.ID, msg.JobID, isRetry)
	if err != nil {
		w.releaseClaim(ctx, reg, isRetry)
		return err
	}

	out, err := w.provider.Process(ctx, msg.PDFURL, map[string]string{
		"territoryId":     msg.TerritoryID,
		"publicationDate": msg.PublicationDate,
	})
	if err != nil {
		// Transport failure: give the claim back so a redelivery can
		// re-run the protocol, then let the queue back off.
		w.releaseClaim(ctx, reg, isRetry)
		_, rerr := d.Retry(ctx, "ocr transport: "+err.Error())
		if rerr != nil {
			return rerr
		}
		return nil
	}

	if out.Status == model.OcrJobSuccess && out.ExtractedText != "" {
		baseDelay := time.Duration(w.cfg.StorageBaseDelayMs) * time.Millisecond
		err := retry.Do(ctx, w.cfg.StorageRetries, baseDelay, "ocr_result_store", func(ctx context.Context) error {
			_, err := w.st.UpsertOcrResult(ctx, reg.ID, out.ExtractedText, "mistral_ocr", map[string]any{
				"pagesProcessed":   out.PagesProcessed,
				"processingTimeMs": out.ProcessingTimeMs,
			})
			return err
		})
		if err != nil {
			out.Status = model.OcrJobFailure
			out.Error = &model.OcrError{Code: "STORAGE_FAILED", Message: err.Error()}
		}
	}

	if cerr := w.st.CompleteOcrJob(ctx, job.ID, out); cerr != nil {
		w.logger.Warn("ocr_job_update_failed", "ocr_job_id", job.ID.String(), "error", cerr.Error())
	}

	if out.Status == model.OcrJobSuccess && out.ExtractedText != "" {
		if out.PDFObjectKey != "" {
			if err := w.st.SetRegistryObjectKey(ctx, reg.ID, out.PDFObjectKey); err != nil {
				w.logger.Warn("object_key_update_failed", "registry_id", reg.ID.String(), "error", err.Error())
			}
		}
		if err := w.st.UpdateRegistryStatus(ctx, reg.ID, model.RegistryOcrSuccess); err != nil {
			return err
		}
		return w.finishSuccess(ctx, d, msg, reg, out.ExtractedText, "mistral_ocr", false)
	}

	return w.finishFailure(ctx, d, msg, reg, out)
}

// finishSuccess caches the text, moves the crawl forward and enqueues
// analysis. reused marks text served from the store without an OCR call.
func (w *OCRWorker) finishSuccess(ctx context.Context, d *queue.Delivery, msg model.OcrMessage, reg store.GazetteRegistry, text, method string, reused bool) error {
	w.cache.PutOCR(ctx, msg.PDFURL, cache.OCREntry{
		DocumentID:       reg.ID.String(),
		ExtractedText:    text,
		TextLength:       len(text),
		ProcessingMethod: method,
	}, time.Duration(w.cfg.CacheTTLSec)*time.Second)

	meta := msg.Metadata
	if gcID, err := uuid.Parse(meta.GazetteCrawlID); err == nil {
		if gc, err := w.st.GetGazetteCrawl(ctx, gcID); err == nil {
			if gc.Status != model.CrawlSuccess && gc.Status != model.CrawlFailed {
				if err := w.st.UpdateGazetteCrawlStatus(ctx, gc.ID, model.CrawlAnalysisPending); err != nil {
					w.logger.Warn("crawl_status_update_failed", "gazette_crawl_id", meta.GazetteCrawlID, "error", err.Error())
				}
			}
		}
	}

	analysisMsg := model.AnalysisMessage{
		JobID:          "analysis-" + strings.TrimPrefix(msg.JobID, "ocr-"),
		OcrJobID:       msg.JobID,
		GazetteCrawlID: meta.GazetteCrawlID,
		GazetteID:      reg.ID.String(),
		TerritoryID:    msg.TerritoryID,
		GazetteDate:    msg.PublicationDate,
		PDFURL:         msg.PDFURL,
		QueuedAt:       time.Now().UTC(),
		Metadata: model.AnalysisMessageMeta{
			CrawlJobID: meta.CrawlJobID,
			SpiderID:   msg.SpiderID,
		},
	}
	if err := w.fabric.Send(ctx, model.QueueAnalysis, analysisMsg); err != nil {
		return err
	}

	w.track.step(ctx, meta.CrawlJobID, msg.TerritoryID, msg.SpiderID, "ocr_end", "success", map[string]any{
		"textLength": len(text),
		"reused":     reused,
	})
	w.logger.Info("ocr_done",
		"pdf_url", msg.PDFURL, "territory_id", msg.TerritoryID,
		"text_length", len(text), "reused", reused)
	return d.Ack(ctx)
}

// finishFailure marks the gazette failed everywhere it is referenced.
func (w *OCRWorker) finishFailure(ctx context.Context, d *queue.Delivery, msg model.OcrMessage, reg store.GazetteRegistry, out model.OcrOutcome) error {
	if err := w.st.UpdateRegistryStatus(ctx, reg.ID, model.RegistryOcrFailure); err != nil {
		return err
	}
	if _, err := w.st.FailCrawlsForGazette(ctx, reg.ID); err != nil {
		w.logger.Warn("crawl_bulk_fail_failed", "registry_id", reg.ID.String(), "error", err.Error())
	}

	code, message := "OCR_FAILED", "ocr returned no text"
	if out.Error != nil {
		code, message = out.Error.Code, out.Error.Message
	}
	w.track.critical(ctx, "ocr", "process_pdf", code+": "+message, map[string]string{
		"pdfUrl":      msg.PDFURL,
		"territoryId": msg.TerritoryID,
	})
	w.track.step(ctx, msg.Metadata.CrawlJobID, msg.TerritoryID, msg.SpiderID, "ocr_end", "failed", map[string]any{
		"errorCode": code,
	})
	w.logger.Warn("ocr_failed", "pdf_url", msg.PDFURL, "error_code", code, "error", message)
	return d.Ack(ctx)
}

// releaseClaim reverts the registry status after a transport failure so
// a later delivery can claim again.
func (w *OCRWorker) releaseClaim(ctx context.Context, reg store.GazetteRegistry, isRetry bool) {
	restored := model.RegistryPending
	if isRetry {
		restored = model.RegistryOcrFailure
	}
	if err := w.st.UpdateRegistryStatus(ctx, reg.ID, restored); err != nil {
		w.logger.Error("claim_release_failed", "registry_id", reg.ID.String(), "error", err.Error())
	}
}
