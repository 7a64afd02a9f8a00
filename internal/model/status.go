package model

// CrawlJobStatus is the lifecycle state of a dispatched crawl job row
// (crawl_jobs.status). Centralizing these avoids scattering string
// literals like "pending" or "completed" across packages.
type CrawlJobStatus string

const (
	JobPending   CrawlJobStatus = "pending"
	JobRunning   CrawlJobStatus = "running"
	JobCompleted CrawlJobStatus = "completed"
	JobFailed    CrawlJobStatus = "failed"
)

// RegistryStatus tracks OCR progress on a gazette_registry row. It is
// monotone except that ocr_failure may be re-driven to ocr_retrying.
type RegistryStatus string

const (
	RegistryPending       RegistryStatus = "pending"
	RegistryUploaded      RegistryStatus = "uploaded"
	RegistryOcrProcessing RegistryStatus = "ocr_processing"
	RegistryOcrRetrying   RegistryStatus = "ocr_retrying"
	RegistryOcrFailure    RegistryStatus = "ocr_failure"
	RegistryOcrSuccess    RegistryStatus = "ocr_success"
)

// CrawlStatus tracks a single discovery of a gazette by one crawl job
// (gazette_crawls.status). It describes this crawl, not the gazette.
type CrawlStatus string

const (
	CrawlCreated         CrawlStatus = "created"
	CrawlProcessing      CrawlStatus = "processing"
	CrawlSuccess         CrawlStatus = "success"
	CrawlFailed          CrawlStatus = "failed"
	CrawlAnalysisPending CrawlStatus = "analysis_pending"
)

// OcrJobStatus is the state of one OCR attempt (ocr_jobs.status).
type OcrJobStatus string

const (
	OcrJobPending    OcrJobStatus = "pending"
	OcrJobProcessing OcrJobStatus = "processing"
	OcrJobSuccess    OcrJobStatus = "success"
	OcrJobFailure    OcrJobStatus = "failure"
	OcrJobPartial    OcrJobStatus = "partial"
)

// DeliveryStatus is the state of one webhook delivery attempt chain
// (webhook_deliveries.status). "sent" is terminal.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryRetry   DeliveryStatus = "retry"
)

// Power identifies which branch of government published a gazette.
type Power string

const (
	PowerExecutive            Power = "executive"
	PowerLegislative          Power = "legislative"
	PowerExecutiveLegislative Power = "executive_legislative"
)
