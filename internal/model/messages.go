package model

import (
	"encoding/json"
	"time"
)

// Queue names of the four pipeline stages.
const (
	QueueCrawl    = "crawl"
	QueueOCR      = "ocr"
	QueueAnalysis = "analysis"
	QueueWebhook  = "webhook"
)

// CrawlMessage fans one city out of a CrawlJob into the crawl queue.
type CrawlMessage struct {
	SpiderID    string           `json:"spiderId"`
	TerritoryID string           `json:"territoryId"`
	SpiderType  string           `json:"spiderType"`
	Config      json.RawMessage  `json:"config,omitempty"`
	DateRange   DateRange        `json:"dateRange"`
	Metadata    CrawlMessageMeta `json:"metadata"`
}

type CrawlMessageMeta struct {
	CrawlJobID string `json:"crawlJobId"`
}

// OcrMessage requests text extraction for one gazette PDF.
type OcrMessage struct {
	JobID           string         `json:"jobId"`
	PDFURL          string         `json:"pdfUrl"`
	TerritoryID     string         `json:"territoryId"`
	PublicationDate string         `json:"publicationDate"`
	EditionNumber   string         `json:"editionNumber,omitempty"`
	SpiderID        string         `json:"spiderId"`
	QueuedAt        time.Time      `json:"queuedAt"`
	Metadata        OcrMessageMeta `json:"metadata"`
}

type OcrMessageMeta struct {
	Power          Power  `json:"power,omitempty"`
	IsExtraEdition bool   `json:"isExtraEdition,omitempty"`
	SourceText     string `json:"sourceText,omitempty"`
	CrawlJobID     string `json:"crawlJobId,omitempty"`
	GazetteCrawlID string `json:"gazetteCrawlId,omitempty"`
	IsRetry        bool   `json:"isRetry,omitempty"`
}

// AnalysisMessage requests analyzer execution for one OCR'd gazette.
type AnalysisMessage struct {
	JobID          string              `json:"jobId"`
	OcrJobID       string              `json:"ocrJobId,omitempty"`
	GazetteCrawlID string              `json:"gazetteCrawlId,omitempty"`
	GazetteID      string              `json:"gazetteId"`
	TerritoryID    string              `json:"territoryId"`
	GazetteDate    string              `json:"gazetteDate"`
	PDFURL         string              `json:"pdfUrl"`
	QueuedAt       time.Time           `json:"queuedAt"`
	Metadata       AnalysisMessageMeta `json:"metadata"`
}

type AnalysisMessageMeta struct {
	CrawlJobID string `json:"crawlJobId,omitempty"`
	SpiderID   string `json:"spiderId,omitempty"`
	SpiderType string `json:"spiderType,omitempty"`
}

// WebhookMessage carries one subscriber notification.
type WebhookMessage struct {
	MessageID      string             `json:"messageId"`
	SubscriptionID string             `json:"subscriptionId"`
	Notification   json.RawMessage    `json:"notification"`
	Attempts       int                `json:"attempts,omitempty"`
	Metadata       WebhookMessageMeta `json:"metadata"`
}

type WebhookMessageMeta struct {
	CrawlJobID  string `json:"crawlJobId,omitempty"`
	TerritoryID string `json:"territoryId,omitempty"`
}
