package http

import "gazeta/internal/model"

// CrawlRequest is the body of POST /crawl. Cities is either the string
// "all" or a list of spider ids; empty means all.
type CrawlRequest struct {
	Cities    any              `json:"cities,omitempty"`
	DateRange *model.DateRange `json:"dateRange,omitempty"`
	Platform  string           `json:"platform,omitempty"`
}

// CrawlCitiesRequest is the body of POST /crawl/cities.
type CrawlCitiesRequest struct {
	Cities    []string         `json:"cities"`
	DateRange *model.DateRange `json:"dateRange,omitempty"`
	Platform  string           `json:"platform,omitempty"`
}

// TodayYesterdayRequest is the optional body of POST /crawl/today-yesterday.
type TodayYesterdayRequest struct {
	Platform string `json:"platform,omitempty"`
}

// DispatchResponse reports the fan-out of one crawl submission. The
// scheduled today-yesterday variant also echoes the effective date
// range and a rough duration estimate.
type DispatchResponse struct {
	Success              bool             `json:"success"`
	CrawlJobID           string           `json:"crawlJobId,omitempty"`
	Cities               int              `json:"cities"`
	TasksEnqueued        int              `json:"tasksEnqueued"`
	FailedCount          int              `json:"failedCount,omitempty"`
	InvalidCities        []string         `json:"invalidCities,omitempty"`
	DateRange            *model.DateRange `json:"dateRange,omitempty"`
	EstimatedTimeMinutes int              `json:"estimatedTimeMinutes,omitempty"`
	Code                 string           `json:"code,omitempty"`
	Error                string           `json:"error,omitempty"`
}

// ErrorResponse is the generic error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// CrawlJobResponse is the body of GET /crawl-jobs/:id.
type CrawlJobResponse struct {
	Success         bool           `json:"success"`
	ID              string         `json:"id"`
	JobType         string         `json:"jobType"`
	Status          string         `json:"status"`
	TotalCities     int            `json:"totalCities"`
	CompletedCities int            `json:"completedCities"`
	FailedCities    int            `json:"failedCities"`
	ProcessedCities int            `json:"processedCities"`
	StartDate       string         `json:"startDate"`
	EndDate         string         `json:"endDate"`
	PlatformFilter  string         `json:"platformFilter,omitempty"`
	CreatedAt       string         `json:"createdAt"`
	StartedAt       string         `json:"startedAt,omitempty"`
	CompletedAt     string         `json:"completedAt,omitempty"`
	Queues          map[string]int `json:"queues,omitempty"`
}

// SpidersResponse lists registered spiders.
type SpidersResponse struct {
	Success bool                 `json:"success"`
	Total   int                  `json:"total"`
	Spiders []crawlerSpiderEntry `json:"spiders"`
}

type crawlerSpiderEntry struct {
	SpiderID    string `json:"spiderId"`
	TerritoryID string `json:"territoryId"`
	Name        string `json:"name"`
	SpiderType  string `json:"spiderType"`
}

// StatsResponse summarizes the registry and queue fabric.
type StatsResponse struct {
	Success        bool                      `json:"success"`
	Spiders        int                       `json:"spiders"`
	SpidersByType  map[string]int            `json:"spidersByType"`
	Queues         map[string]map[string]int `json:"queues"`
	UnresolvedErrs int                       `json:"unresolvedErrors"`
}
