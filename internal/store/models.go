package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"gazeta/internal/model"
)

// CrawlJob is one dispatched unit of crawl work across many cities.
type CrawlJob struct {
	ID              uuid.UUID
	JobType         string
	Status          model.CrawlJobStatus
	TotalCities     int
	CompletedCities int
	FailedCities    int
	StartDate       time.Time
	EndDate         time.Time
	PlatformFilter  sql.NullString
	Metadata        pqtype.NullRawMessage
	CreatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
}

// GazetteRegistry is the permanent, deduplicated record of a gazette
// PDF. At most one row exists per pdf_url.
type GazetteRegistry struct {
	ID              uuid.UUID
	PublicationDate time.Time
	EditionNumber   sql.NullString
	PDFURL          string
	PDFObjectKey    sql.NullString
	IsExtraEdition  bool
	Power           model.Power
	Status          model.RegistryStatus
	Metadata        pqtype.NullRawMessage
	CreatedAt       time.Time
}

// GazetteCrawl records a single discovery of a gazette by one crawl job.
type GazetteCrawl struct {
	ID               uuid.UUID
	JobID            string
	TerritoryID      string
	SpiderID         string
	GazetteID        uuid.UUID
	AnalysisResultID uuid.NullUUID
	Status           model.CrawlStatus
	ScrapedAt        sql.NullTime
	CreatedAt        time.Time
}

// OcrJob is a single OCR attempt against a registry row.
type OcrJob struct {
	ID               uuid.UUID
	DocumentID       uuid.UUID
	MessageJobID     string
	Status           model.OcrJobStatus
	PagesProcessed   sql.NullInt32
	ProcessingTimeMs sql.NullInt64
	TextLength       sql.NullInt32
	ErrorCode        sql.NullString
	ErrorMessage     sql.NullString
	Metadata         pqtype.NullRawMessage
	CreatedAt        time.Time
	CompletedAt      sql.NullTime
}

// OcrResult holds the extracted text for a registry row.
type OcrResult struct {
	ID               uuid.UUID
	DocumentID       uuid.UUID
	ExtractedText    string
	TextLength       int
	ConfidenceScore  sql.NullFloat64
	LanguageDetected string
	ProcessingMethod string
	Metadata         pqtype.NullRawMessage
	CreatedAt        time.Time
}

// AnalysisResult aggregates findings for one gazette under one
// analyzer configuration. JobID is deterministic and unique.
type AnalysisResult struct {
	ID                     uuid.UUID
	JobID                  string
	GazetteID              uuid.UUID
	TerritoryID            string
	PublicationDate        time.Time
	TotalFindings          int
	HighConfidenceFindings int
	Categories             pqtype.NullRawMessage
	Keywords               pqtype.NullRawMessage
	Findings               pqtype.NullRawMessage
	Summary                sql.NullString
	ProcessingTimeMs       sql.NullInt64
	Metadata               pqtype.NullRawMessage
	AnalyzedAt             time.Time
}

// ConcursoFinding is a first-class row per public-competition finding.
type ConcursoFinding struct {
	ID               uuid.UUID
	AnalysisJobID    string
	FindingHash      string
	GazetteID        uuid.UUID
	TerritoryID      string
	DocumentType     sql.NullString
	Confidence       float64
	Orgao            sql.NullString
	EditalNumero     sql.NullString
	TotalVagas       int
	Cargos           pqtype.NullRawMessage
	Datas            pqtype.NullRawMessage
	Taxas            pqtype.NullRawMessage
	Banca            sql.NullString
	ExtractionMethod sql.NullString
	CreatedAt        time.Time
}

// WebhookSubscription is one subscriber endpoint plus auth settings.
type WebhookSubscription struct {
	ID         uuid.UUID
	Endpoint   string
	AuthType   string
	AuthToken  sql.NullString
	EventTypes pqtype.NullRawMessage
	Active     bool
	CreatedAt  time.Time
}

// WebhookDelivery tracks one subscriber notification across attempts.
// Unique on NotificationID; Attempts is monotonically non-decreasing.
type WebhookDelivery struct {
	ID             uuid.UUID
	NotificationID string
	SubscriptionID uuid.UUID
	AnalysisJobID  sql.NullString
	EventType      string
	Status         model.DeliveryStatus
	StatusCode     sql.NullInt32
	Attempts       int
	ResponseBody   sql.NullString
	ErrorMessage   sql.NullString
	DeliveryTimeMs sql.NullInt64
	CreatedAt      time.Time
	DeliveredAt    sql.NullTime
	NextRetryAt    sql.NullTime
}

// ErrorLog is an append-only diagnostic row.
type ErrorLog struct {
	ID        uuid.UUID
	Worker    string
	Operation string
	Severity  string
	Message   string
	Context   pqtype.NullRawMessage
	Resolved  bool
	CreatedAt time.Time
}

// TelemetryEvent records one per-city pipeline step
// (crawl_start/end, ocr_start/end, analysis_start/end, webhook_sent).
type TelemetryEvent struct {
	ID          uuid.UUID
	CrawlJobID  sql.NullString
	TerritoryID string
	SpiderID    sql.NullString
	Step        string
	Status      string
	Detail      pqtype.NullRawMessage
	CreatedAt   time.Time
}

// QueueMessage is one durable message in a named queue.
type QueueMessage struct {
	ID          uuid.UUID
	Queue       string
	Payload     []byte
	Status      string
	Attempts    int
	MaxAttempts int
	VisibleAt   time.Time
	ClaimedAt   sql.NullTime
	LastError   sql.NullString
	CreatedAt   time.Time
}
