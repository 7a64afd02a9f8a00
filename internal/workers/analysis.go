package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"gazeta/internal/analysis"
	"gazeta/internal/cache"
	"gazeta/internal/config"
	"gazeta/internal/metrics"
	"gazeta/internal/model"
	"gazeta/internal/queue"
	"gazeta/internal/retry"
	"gazeta/internal/store"
	"gazeta/internal/webhook"
)

const concursoInsertRetries = 3

// AnalysisWorker consumes analysis messages: it resolves the OCR text,
// runs the analyzer engine, persists the result under its deterministic
// job id and prepares subscriber notifications.
type AnalysisWorker struct {
	st     *store.Store
	fabric *queue.Fabric
	cache  *cache.Cache
	engine *analysis.Engine
	dedup  *analysis.Deduplicator
	cfg    config.AnalyzersConfig
	logger *slog.Logger
	track  tracker
}

// NewAnalysisWorker builds the analysis stage consumer.
func NewAnalysisWorker(st *store.Store, fabric *queue.Fabric, c *cache.Cache, engine *analysis.Engine, cfg config.AnalyzersConfig, logger *slog.Logger) *AnalysisWorker {
	w := &AnalysisWorker{
		st:     st,
		fabric: fabric,
		cache:  c,
		engine: engine,
		cfg:    cfg,
		logger: logger,
		track:  tracker{st: st},
	}
	w.dedup = analysis.NewDeduplicator(w.recentConcursoWindow)
	return w
}

func (w *AnalysisWorker) Queue() string { return model.QueueAnalysis }

func (w *AnalysisWorker) Handle(ctx context.Context, d *queue.Delivery) error {
	var msg model.AnalysisMessage
	if err := d.Decode(&msg); err != nil {
		w.track.critical(ctx, "analysis", "decode_message", "ANALYSIS_BAD_PAYLOAD: "+err.Error(), nil)
		return d.Ack(ctx)
	}
	if msg.GazetteID == "" {
		w.track.critical(ctx, "analysis", "validate_message", "ANALYSIS_MISSING_GAZETTE: message has no gazette id", nil)
		return d.Ack(ctx)
	}

	err := w.process(ctx, d, msg)
	if err == nil || d.Settled() {
		return err
	}

	dead, rerr := d.Retry(ctx, err.Error())
	if rerr != nil {
		return rerr
	}
	if dead {
		w.failCrawl(ctx, msg, err)
	}
	return nil
}

func (w *AnalysisWorker) process(ctx context.Context, d *queue.Delivery, msg model.AnalysisMessage) error {
	gazetteID, err := uuid.Parse(msg.GazetteID)
	if err != nil {
		w.track.critical(ctx, "analysis", "validate_message", "ANALYSIS_BAD_GAZETTE_ID: "+err.Error(), nil)
		return d.Ack(ctx)
	}

	started := time.Now()
	w.track.step(ctx, msg.Metadata.CrawlJobID, msg.TerritoryID, msg.Metadata.SpiderID, "analysis_start", "running", nil)

	configHash := analysis.ConfigHash(w.cfg, msg.TerritoryID)
	jobID := analysis.JobID(msg.TerritoryID, msg.GazetteID, configHash)

	// Level one: the dedup cache.
	if entry, ok := w.cache.GetAnalysis(ctx, msg.TerritoryID, msg.GazetteID, configHash); ok {
		metrics.RecordCache("analysis", true)
		if row, err := w.st.GetAnalysisResultByJobID(ctx, entry.JobID); err == nil {
			w.logger.Info("analysis_reused", "job_id", entry.JobID, "source", "cache")
			return w.finish(ctx, d, msg, row, entry.Findings, 0, started)
		}
		// Cached entry without a store row; the store is authoritative,
		// fall through to the lookup below.
	}
	metrics.RecordCache("analysis", false)

	// Level two: prior result in the store under the same config hash.
	if row, ok, err := w.lookupStored(ctx, msg.TerritoryID, gazetteID, configHash); err != nil {
		return err
	} else if ok {
		findings := decodeFindings(row.Findings)
		w.putAnalysisCache(ctx, row, findings, configHash)
		w.logger.Info("analysis_reused", "job_id", row.JobID, "source", "store")
		return w.finish(ctx, d, msg, row, findings, 0, started)
	}

	// Level three: run the analyzers against the OCR text.
	text, err := w.resolveText(ctx, msg.PDFURL, gazetteID)
	if err != nil {
		return err
	}

	result := w.engine.Run(ctx, analysis.Input{
		Text:            text,
		TerritoryID:     msg.TerritoryID,
		GazetteID:       msg.GazetteID,
		PublicationDate: msg.GazetteDate,
	})

	kept, removed := w.dedup.Filter(ctx, msg.TerritoryID, result.Findings)
	highConfidence := 0
	for _, f := range kept {
		if f.Confidence >= analysis.HighConfidenceThreshold {
			highConfidence++
		}
	}

	pubDate, err := time.Parse("2006-01-02", msg.GazetteDate)
	if err != nil {
		pubDate = time.Now().UTC()
	}

	row, created, err := w.st.UpsertAnalysisResult(ctx, store.AnalysisInsert{
		JobID:            jobID,
		GazetteID:        gazetteID,
		TerritoryID:      msg.TerritoryID,
		PublicationDate:  pubDate,
		Findings:         kept,
		Categories:       result.Categories,
		Keywords:         result.Keywords,
		Summary:          result.Summary,
		HighConfidence:   highConfidence,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		Metadata: map[string]any{
			"configSignature":   analysis.NewConfigSignature(w.cfg, msg.TerritoryID),
			"duplicatesRemoved": removed,
			"textLength":        len(text),
		},
	})
	if err != nil {
		return fmt.Errorf("persist analysis %s: %w", jobID, err)
	}
	if !created {
		// A concurrent worker won the unique constraint; reuse its row.
		kept = decodeFindings(row.Findings)
	}

	w.persistConcursoRows(ctx, row, kept)
	w.putAnalysisCache(ctx, row, kept, configHash)

	w.logger.Info("analysis_done",
		"job_id", row.JobID, "territory_id", msg.TerritoryID,
		"findings", len(kept), "duplicates_removed", removed, "created", created)
	return w.finish(ctx, d, msg, row, kept, removed, started)
}

// lookupStored scans candidate rows for this gazette and compares the
// config hash embedded in their metadata.
func (w *AnalysisWorker) lookupStored(ctx context.Context, territoryID string, gazetteID uuid.UUID, configHash string) (store.AnalysisResult, bool, error) {
	rows, err := w.st.ListAnalysisByTerritoryGazette(ctx, territoryID, gazetteID)
	if err != nil {
		return store.AnalysisResult{}, false, err
	}
	for _, row := range rows {
		if !row.Metadata.Valid {
			continue
		}
		var meta struct {
			ConfigSignature analysis.ConfigSignature `json:"configSignature"`
		}
		if json.Unmarshal(row.Metadata.RawMessage, &meta) != nil {
			continue
		}
		if meta.ConfigSignature.ConfigHash == configHash {
			return row, true, nil
		}
	}
	return store.AnalysisResult{}, false, nil
}

// resolveText fetches the OCR text, cache first, store second. The
// store read repopulates the cache.
func (w *AnalysisWorker) resolveText(ctx context.Context, pdfURL string, gazetteID uuid.UUID) (string, error) {
	if entry, ok := w.cache.GetOCR(ctx, pdfURL); ok && entry.ExtractedText != "" {
		metrics.RecordCache("ocr", true)
		return entry.ExtractedText, nil
	}
	metrics.RecordCache("ocr", false)

	res, err := w.st.GetOcrResultByDocument(ctx, gazetteID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no ocr text for gazette %s", gazetteID)
	}
	if err != nil {
		return "", err
	}

	w.cache.PutOCR(ctx, pdfURL, cache.OCREntry{
		DocumentID:       gazetteID.String(),
		ExtractedText:    res.ExtractedText,
		TextLength:       res.TextLength,
		ProcessingMethod: res.ProcessingMethod,
	}, cache.OCRTTL)
	return res.ExtractedText, nil
}

// persistConcursoRows inserts one row per concurso finding with
// bounded retries. The finding hash keys the unique index, so a
// redelivery or a concurrent run re-inserting the same finding is a
// no-op. Failures are tolerated; the webhook payload reports the
// re-queried stored count, so nothing is overstated.
func (w *AnalysisWorker) persistConcursoRows(ctx context.Context, row store.AnalysisResult, findings []model.Finding) {
	for _, f := range findings {
		data, ok := analysis.ConcursoFromFinding(f)
		if !ok {
			continue
		}
		hash := analysis.FindingHash(f, row.TerritoryID)
		err := retry.Do(ctx, concursoInsertRetries, time.Second, "concurso_insert", func(ctx context.Context) error {
			_, _, err := w.st.InsertConcursoFinding(ctx, row.JobID, hash, row.GazetteID, row.TerritoryID, f.Confidence, data)
			return err
		})
		if err != nil {
			w.logger.Warn("concurso_insert_failed", "analysis_job_id", row.JobID, "error", err.Error())
			w.track.warn(ctx, "analysis", "store_concurso", "CONCURSO_STORE_FAILED: "+err.Error(),
				map[string]string{"analysisJobId": row.JobID})
		}
	}
}

func (w *AnalysisWorker) putAnalysisCache(ctx context.Context, row store.AnalysisResult, findings []model.Finding, configHash string) {
	ttl := time.Duration(w.cfg.CacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = cache.AnalysisTTL
	}
	w.cache.PutAnalysis(ctx, cache.AnalysisEntry{
		JobID:            row.JobID,
		GazetteID:        row.GazetteID.String(),
		TerritoryID:      row.TerritoryID,
		PublicationDate:  row.PublicationDate.Format("2006-01-02"),
		TotalFindings:    row.TotalFindings,
		HighConfidence:   row.HighConfidenceFindings,
		Categories:       decodeStrings(row.Categories),
		Keywords:         decodeStrings(row.Keywords),
		Findings:         findings,
		Summary:          row.Summary.String,
		ConfigHash:       configHash,
		ProcessingTimeMs: row.ProcessingTimeMs.Int64,
		AnalyzedAt:       row.AnalyzedAt,
	}, ttl)
}

// finish links the crawl row, prepares webhooks and acks.
func (w *AnalysisWorker) finish(ctx context.Context, d *queue.Delivery, msg model.AnalysisMessage, row store.AnalysisResult, findings []model.Finding, removed int, started time.Time) error {
	if crawlID, err := uuid.Parse(msg.GazetteCrawlID); err == nil {
		if err := w.st.LinkAnalysisResult(ctx, crawlID, row.ID); err != nil {
			w.logger.Warn("analysis_link_failed", "gazette_crawl_id", msg.GazetteCrawlID, "error", err.Error())
		}
	}

	storedCount, err := w.st.CountConcursoFindings(ctx, row.JobID)
	if err != nil {
		w.logger.Warn("concurso_count_failed", "analysis_job_id", row.JobID, "error", err.Error())
		storedCount = 0
	}
	if storedCount > 0 {
		w.dispatchWebhooks(ctx, msg, row, findings, storedCount)
	}

	w.track.step(ctx, msg.Metadata.CrawlJobID, msg.TerritoryID, msg.Metadata.SpiderID, "analysis_end", "success", map[string]any{
		"totalFindings":     row.TotalFindings,
		"duplicatesRemoved": removed,
		"executionTimeMs":   time.Since(started).Milliseconds(),
	})
	return d.Ack(ctx)
}

// dispatchWebhooks fans one notification per active subscription into
// the webhook queue.
func (w *AnalysisWorker) dispatchWebhooks(ctx context.Context, msg model.AnalysisMessage, row store.AnalysisResult, findings []model.Finding, storedCount int) {
	subs, err := w.st.ListActiveSubscriptions(ctx)
	if err != nil {
		w.logger.Warn("subscription_list_failed", "error", err.Error())
		return
	}

	for _, sub := range subs {
		notification := webhook.NewConcursoNotification(webhook.NotificationInput{
			TerritoryID:    row.TerritoryID,
			GazetteID:      row.GazetteID.String(),
			GazetteDate:    row.PublicationDate.Format("2006-01-02"),
			AnalysisJobID:  row.JobID,
			Summary:        row.Summary.String,
			TotalFindings:  row.TotalFindings,
			HighConfidence: row.HighConfidenceFindings,
			StoredCount:    storedCount,
			Findings:       findings,
			PDFURL:         msg.PDFURL,
		})
		body, err := notification.Encode()
		if err != nil {
			continue
		}
		wm := model.WebhookMessage{
			MessageID:      notification.NotificationID,
			SubscriptionID: sub.ID.String(),
			Notification:   body,
			Metadata: model.WebhookMessageMeta{
				CrawlJobID:  msg.Metadata.CrawlJobID,
				TerritoryID: row.TerritoryID,
			},
		}
		if err := w.fabric.Send(ctx, model.QueueWebhook, wm); err != nil {
			w.logger.Warn("webhook_enqueue_failed", "subscription_id", sub.ID.String(), "error", err.Error())
		}
	}
}

func (w *AnalysisWorker) failCrawl(ctx context.Context, msg model.AnalysisMessage, cause error) {
	if crawlID, err := uuid.Parse(msg.GazetteCrawlID); err == nil {
		if err := w.st.UpdateGazetteCrawlStatus(ctx, crawlID, model.CrawlFailed); err != nil {
			w.logger.Warn("crawl_fail_update_failed", "gazette_crawl_id", msg.GazetteCrawlID, "error", err.Error())
		}
	}
	w.track.critical(ctx, "analysis", "analyze_gazette", "ANALYSIS_FAILED: "+cause.Error(), map[string]string{
		"gazetteId":   msg.GazetteID,
		"territoryId": msg.TerritoryID,
	})
}

// recentConcursoWindow adapts the store rows to the deduplicator's
// comparison shape.
func (w *AnalysisWorker) recentConcursoWindow(ctx context.Context, territoryID string, since time.Time, limit int) ([]model.ConcursoData, error) {
	rows, err := w.st.ListRecentConcursoFindings(ctx, territoryID, since, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.ConcursoData, 0, len(rows))
	for _, r := range rows {
		data := model.ConcursoData{
			DocumentType: r.DocumentType.String,
			Orgao:        r.Orgao.String,
			EditalNumero: r.EditalNumero.String,
			TotalVagas:   r.TotalVagas,
			Banca:        r.Banca.String,
		}
		if r.Cargos.Valid {
			_ = json.Unmarshal(r.Cargos.RawMessage, &data.Cargos)
		}
		out = append(out, data)
	}
	return out, nil
}

func decodeFindings(raw pqtype.NullRawMessage) []model.Finding {
	if !raw.Valid {
		return nil
	}
	var out []model.Finding
	_ = json.Unmarshal(raw.RawMessage, &out)
	return out
}

func decodeStrings(raw pqtype.NullRawMessage) []string {
	if !raw.Valid {
		return nil
	}
	var out []string
	_ = json.Unmarshal(raw.RawMessage, &out)
	return out
}
