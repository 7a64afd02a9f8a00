package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"gazeta/internal/model"
)

// apiConfig configures the generic JSON-API adapter. It targets
// querido-diario style listing endpoints that return gazette records
// for a territory and date window.
type apiConfig struct {
	BaseURL     string `json:"baseURL"`
	TerritoryID string `json:"territoryId"`
	Power       string `json:"power,omitempty"`
	TimeoutMs   int    `json:"timeoutMs,omitempty"`
}

type apiGazette struct {
	Date          string `json:"date"`
	URL           string `json:"url"`
	TxtURL        string `json:"txt_url,omitempty"`
	Edition       string `json:"edition,omitempty"`
	IsExtra       bool   `json:"is_extra_edition"`
	Power         string `json:"power,omitempty"`
	ExcerptsSneak string `json:"excerpts,omitempty"`
}

type apiListing struct {
	Gazettes []apiGazette `json:"gazettes"`
}

type apiCrawler struct {
	cfg       apiConfig
	dateRange model.DateRange
	client    *http.Client
	requests  atomic.Int64
}

// NewAPICrawler builds the JSON-API adapter.
func NewAPICrawler(raw json.RawMessage, dateRange model.DateRange) (Crawler, error) {
	var cfg apiConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode api crawler config: %w", err)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api crawler requires baseURL")
	}

	timeout := 30 * time.Second
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	return &apiCrawler{
		cfg:       cfg,
		dateRange: dateRange,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *apiCrawler) Crawl(ctx context.Context) ([]model.GazetteCandidate, error) {
	endpoint, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api crawler baseURL: %w", err)
	}
	q := endpoint.Query()
	q.Set("territory_ids", c.cfg.TerritoryID)
	q.Set("published_since", c.dateRange.Start)
	q.Set("published_until", c.dateRange.End)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	c.requests.Add(1)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gazette listing returned status %d", resp.StatusCode)
	}

	var listing apiListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode gazette listing: %w", err)
	}

	now := time.Now().UTC()
	out := make([]model.GazetteCandidate, 0, len(listing.Gazettes))
	for _, g := range listing.Gazettes {
		if g.URL == "" || g.Date == "" {
			continue
		}
		out = append(out, model.GazetteCandidate{
			TerritoryID:     c.cfg.TerritoryID,
			PublicationDate: g.Date,
			EditionNumber:   g.Edition,
			PDFURL:          g.URL,
			IsExtraEdition:  g.IsExtra,
			Power:           candidatePower(g.Power, c.cfg.Power),
			ScrapedAt:       now,
		})
	}
	return out, nil
}

func (c *apiCrawler) RequestCount() int {
	return int(c.requests.Load())
}

func candidatePower(fromRecord, fromConfig string) model.Power {
	for _, p := range []string{fromRecord, fromConfig} {
		switch model.Power(p) {
		case model.PowerExecutive, model.PowerLegislative, model.PowerExecutiveLegislative:
			return model.Power(p)
		}
	}
	return model.PowerExecutiveLegislative
}
