package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"gazeta/internal/crawler"
	"gazeta/internal/model"
	"gazeta/internal/queue"
	"gazeta/internal/store"
)

type fakeCrawler struct {
	candidates []model.GazetteCandidate
	err        error
	requests   int
}

func (f *fakeCrawler) Crawl(context.Context) ([]model.GazetteCandidate, error) {
	f.requests++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeCrawler) RequestCount() int { return f.requests }

func newCrawlTestEnv(t *testing.T, fc *fakeCrawler) (*CrawlWorker, *queue.Fabric, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	fabric := queue.New(st, 3, 100, nil)
	registry := crawler.NewRegistry()
	registry.RegisterType("fake", func(json.RawMessage, model.DateRange) (crawler.Crawler, error) {
		return fc, nil
	})
	return NewCrawlWorker(st, fabric, registry, discardLogger()), fabric, mock
}

func crawlPayload(t *testing.T, crawlJobID uuid.UUID) []byte {
	t.Helper()
	raw, err := json.Marshal(model.CrawlMessage{
		SpiderID:    "ba_acajutiba",
		TerritoryID: "2900306",
		SpiderType:  "fake",
		DateRange:   model.DateRange{Start: "2024-08-01", End: "2024-08-01"},
		Metadata:    model.CrawlMessageMeta{CrawlJobID: crawlJobID.String()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// expectClaimFrom seeds one claimed message on an arbitrary queue.
func expectClaimFrom(mock sqlmock.Sqlmock, queueName string, payload []byte, attempts int) uuid.UUID {
	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "queue", "payload", "status", "attempts", "max_attempts",
			"visible_at", "claimed_at", "last_error", "created_at",
		}).AddRow(id, queueName, payload, "processing", attempts, 3, now, now, nil, now))
	return id
}

func receiveFrom(t *testing.T, fabric *queue.Fabric, queueName string) *queue.Delivery {
	t.Helper()
	deliveries, err := fabric.Receive(context.Background(), queueName, 1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("claimed %d deliveries", len(deliveries))
	}
	return deliveries[0]
}

func expectTelemetry(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO crawl_telemetry")).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func registryRows(id uuid.UUID, pdfURL string, status model.RegistryStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "publication_date", "edition_number", "pdf_url", "pdf_object_key",
		"is_extra_edition", "power", "status", "metadata", "created_at",
	}).AddRow(id, now, nil, pdfURL, nil, false, "executive_legislative", string(status), nil, now)
}

func gazetteCrawlRows(id, gazetteID uuid.UUID, status model.CrawlStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "job_id", "territory_id", "spider_id", "gazette_id",
		"analysis_result_id", "status", "scraped_at", "created_at",
	}).AddRow(id, "crawl-deadbeef00000000", "2900306", "ba_acajutiba", gazetteID,
		nil, string(status), now, now)
}

func TestCrawlWorkerRoutesNewGazetteToOCR(t *testing.T) {
	pdfURL := "https://doem.org.br/ba/acajutiba/diario.pdf"
	fc := &fakeCrawler{candidates: []model.GazetteCandidate{{
		TerritoryID:     "2900306",
		PublicationDate: "2024-08-01",
		PDFURL:          pdfURL,
		Power:           model.PowerExecutiveLegislative,
		ScrapedAt:       time.Now().UTC(),
	}}}
	worker, fabric, mock := newCrawlTestEnv(t, fc)

	crawlJobID := uuid.New()
	regID := uuid.New()
	expectClaimFrom(mock, model.QueueCrawl, crawlPayload(t, crawlJobID), 1)
	expectTelemetry(mock) // crawl_start
	mock.ExpectQuery(regexp.QuoteMeta("FROM gazette_registry WHERE pdf_url")).
		WithArgs(pdfURL).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO gazette_registry")).
		WillReturnRows(registryRows(regID, pdfURL, model.RegistryPending))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO gazette_crawls")).
		WillReturnRows(gazetteCrawlRows(uuid.New(), regID, model.CrawlCreated))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_messages")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectTelemetry(mock) // crawl_end
	mock.ExpectExec(regexp.QuoteMeta("completed_cities = completed_cities + 1")).
		WithArgs(crawlJobID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE crawl_jobs")).
		WithArgs(crawlJobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := receiveFrom(t, fabric, model.QueueCrawl)
	if err := worker.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if fc.requests != 1 {
		t.Errorf("crawler invoked %d times", fc.requests)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCrawlWorkerSkipsDefinitivelyFailedGazette(t *testing.T) {
	pdfURL := "https://doem.org.br/ba/acajutiba/velho.pdf"
	fc := &fakeCrawler{candidates: []model.GazetteCandidate{{
		TerritoryID:     "2900306",
		PublicationDate: "2024-08-01",
		PDFURL:          pdfURL,
		ScrapedAt:       time.Now().UTC(),
	}}}
	worker, fabric, mock := newCrawlTestEnv(t, fc)

	crawlJobID := uuid.New()
	regID := uuid.New()
	expectClaimFrom(mock, model.QueueCrawl, crawlPayload(t, crawlJobID), 1)
	expectTelemetry(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FROM gazette_registry WHERE pdf_url")).
		WithArgs(pdfURL).
		WillReturnRows(registryRows(regID, pdfURL, model.RegistryOcrFailure))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO gazette_crawls")).
		WillReturnRows(gazetteCrawlRows(uuid.New(), regID, model.CrawlFailed))
	// No OCR message: the gazette already failed OCR for good.
	expectTelemetry(mock)
	mock.ExpectExec(regexp.QuoteMeta("completed_cities = completed_cities + 1")).
		WithArgs(crawlJobID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE crawl_jobs")).
		WithArgs(crawlJobID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	d := receiveFrom(t, fabric, model.QueueCrawl)
	if err := worker.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCrawlWorkerDeadLetterFailsCity(t *testing.T) {
	fc := &fakeCrawler{err: errors.New("listing page timed out")}
	worker, fabric, mock := newCrawlTestEnv(t, fc)

	crawlJobID := uuid.New()
	msgID := expectClaimFrom(mock, model.QueueCrawl, crawlPayload(t, crawlJobID), 3)
	expectTelemetry(mock)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE queue_messages")).
		WithArgs(msgID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("dead"))
	expectTelemetry(mock) // crawl_end failed
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO error_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("failed_cities = failed_cities + 1")).
		WithArgs(crawlJobID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE crawl_jobs")).
		WithArgs(crawlJobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := receiveFrom(t, fabric, model.QueueCrawl)
	if err := worker.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !d.Settled() {
		t.Error("exhausted delivery should be settled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCrawlWorkerAcksBadPayload(t *testing.T) {
	worker, fabric, mock := newCrawlTestEnv(t, &fakeCrawler{})

	msgID := expectClaimFrom(mock, model.QueueCrawl, []byte(`{not json`), 1)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO error_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'done'")).
		WithArgs(msgID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := receiveFrom(t, fabric, model.QueueCrawl)
	if err := worker.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
