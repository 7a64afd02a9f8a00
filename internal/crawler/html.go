package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"

	"gazeta/internal/model"
)

const htmlCrawlerUserAgent = "gazeta-crawler/1.0"

// htmlConfig configures the generic HTML-listing adapter for municipal
// portals that render gazette editions as a table or list of links.
// ListURL may contain {start} and {end} placeholders (YYYY-MM-DD).
type htmlConfig struct {
	ListURL       string `json:"listURL"`
	TerritoryID   string `json:"territoryId"`
	ItemSelector  string `json:"itemSelector"`
	LinkSelector  string `json:"linkSelector"`
	DateSelector  string `json:"dateSelector"`
	DateLayout    string `json:"dateLayout,omitempty"`
	EditionSel    string `json:"editionSelector,omitempty"`
	ExtraMarker   string `json:"extraMarker,omitempty"`
	Power         string `json:"power,omitempty"`
	RespectRobots bool   `json:"respectRobots,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

type htmlCrawler struct {
	cfg       htmlConfig
	dateRange model.DateRange
	client    *http.Client
	requests  atomic.Int64
}

// NewHTMLCrawler builds the HTML-listing adapter.
func NewHTMLCrawler(raw json.RawMessage, dateRange model.DateRange) (Crawler, error) {
	var cfg htmlConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode html crawler config: %w", err)
	}
	if cfg.ListURL == "" || cfg.ItemSelector == "" || cfg.LinkSelector == "" {
		return nil, fmt.Errorf("html crawler requires listURL, itemSelector and linkSelector")
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = "02/01/2006"
	}

	timeout := 30 * time.Second
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	return &htmlCrawler{
		cfg:       cfg,
		dateRange: dateRange,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *htmlCrawler) Crawl(ctx context.Context) ([]model.GazetteCandidate, error) {
	listURL := strings.NewReplacer(
		"{start}", c.dateRange.Start,
		"{end}", c.dateRange.End,
	).Replace(c.cfg.ListURL)

	base, err := url.Parse(listURL)
	if err != nil {
		return nil, fmt.Errorf("html crawler listURL: %w", err)
	}

	if c.cfg.RespectRobots {
		allowed, err := c.robotsAllowed(ctx, base)
		if err == nil && !allowed {
			return nil, fmt.Errorf("robots.txt disallows %s", base.Path)
		}
	}

	doc, err := c.fetchDocument(ctx, listURL)
	if err != nil {
		return nil, err
	}

	startDate, _ := time.Parse("2006-01-02", c.dateRange.Start)
	endDate, _ := time.Parse("2006-01-02", c.dateRange.End)
	now := time.Now().UTC()

	var out []model.GazetteCandidate
	doc.Find(c.cfg.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		link := item.Find(c.cfg.LinkSelector).First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		pdfURL, err := base.Parse(href)
		if err != nil {
			return
		}

		rawDate := strings.TrimSpace(item.Find(c.cfg.DateSelector).First().Text())
		pubDate, err := time.Parse(c.cfg.DateLayout, rawDate)
		if err != nil {
			return
		}
		if !startDate.IsZero() && pubDate.Before(startDate) {
			return
		}
		if !endDate.IsZero() && pubDate.After(endDate) {
			return
		}

		edition := ""
		if c.cfg.EditionSel != "" {
			edition = strings.TrimSpace(item.Find(c.cfg.EditionSel).First().Text())
		}
		isExtra := c.cfg.ExtraMarker != "" &&
			strings.Contains(strings.ToLower(item.Text()), strings.ToLower(c.cfg.ExtraMarker))

		out = append(out, model.GazetteCandidate{
			TerritoryID:     c.cfg.TerritoryID,
			PublicationDate: pubDate.Format("2006-01-02"),
			EditionNumber:   edition,
			PDFURL:          pdfURL.String(),
			IsExtraEdition:  isExtra,
			Power:           candidatePower(c.cfg.Power, ""),
			ScrapedAt:       now,
		})
	})

	return out, nil
}

func (c *htmlCrawler) RequestCount() int {
	return int(c.requests.Load())
}

func (c *htmlCrawler) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", htmlCrawlerUserAgent)

	c.requests.Add(1)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gazette listing returned status %d", resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

// robotsAllowed fetches and evaluates robots.txt for the listing page.
// Fetch failures are treated as allowed; the portal is authoritative.
func (c *htmlCrawler) robotsAllowed(ctx context.Context, page *url.URL) (bool, error) {
	robotsURL := page.Scheme + "://" + page.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true, err
	}
	req.Header.Set("User-Agent", htmlCrawlerUserAgent)

	c.requests.Add(1)
	resp, err := c.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true, err
	}
	return robots.TestAgent(page.Path, htmlCrawlerUserAgent), nil
}
