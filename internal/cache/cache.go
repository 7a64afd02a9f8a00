// Package cache is the Redis hot layer over the store. It is strictly
// a performance optimization: every getter degrades to a miss on any
// error, and the store remains authoritative.
package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gazeta/internal/model"
)

// Default TTLs for the two cached artifact kinds.
const (
	OCRTTL      = 7 * 24 * time.Hour
	AnalysisTTL = 24 * time.Hour
)

// OCREntry is the JSON payload cached under ocr:* keys.
type OCREntry struct {
	DocumentID       string `json:"documentId"`
	ExtractedText    string `json:"extractedText"`
	TextLength       int    `json:"textLength"`
	PagesProcessed   int    `json:"pagesProcessed,omitempty"`
	ProcessingMethod string `json:"processingMethod,omitempty"`
}

// AnalysisEntry is the JSON payload cached under analysis:dedup:* keys.
// It carries enough to reconstruct an AnalysisResult without touching
// the analyzers again.
type AnalysisEntry struct {
	JobID            string          `json:"jobId"`
	GazetteID        string          `json:"gazetteId"`
	TerritoryID      string          `json:"territoryId"`
	PublicationDate  string          `json:"publicationDate"`
	TotalFindings    int             `json:"totalFindings"`
	HighConfidence   int             `json:"highConfidenceFindings"`
	Categories       []string        `json:"categories"`
	Keywords         []string        `json:"keywords"`
	Findings         []model.Finding `json:"findings"`
	Summary          string          `json:"summary"`
	ConfigHash       string          `json:"configHash"`
	ProcessingTimeMs int64           `json:"processingTimeMs,omitempty"`
	AnalyzedAt       time.Time       `json:"analyzedAt"`
}

// Cache wraps a Redis client. A nil *Cache is valid and always misses,
// which keeps the pipeline runnable without Redis.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New connects to Redis using a redis:// URL.
func New(url string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opts), logger: logger}, nil
}

// NewWithClient wraps an existing client (used by tests with miniredis).
func NewWithClient(rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{rdb: rdb, logger: logger}
}

// OCRKey renders the bit-exact cache key for a PDF URL:
// "ocr:" + unpadded base64url of the URL.
func OCRKey(pdfURL string) string {
	return "ocr:" + base64.RawURLEncoding.EncodeToString([]byte(pdfURL))
}

// AnalysisKey renders the dedup key for one analysis identity.
func AnalysisKey(territoryID, gazetteID, configHash string) string {
	return fmt.Sprintf("analysis:dedup:%s:%s:%s", territoryID, gazetteID, configHash)
}

// GetOCR returns the cached OCR text for a PDF URL, if present.
func (c *Cache) GetOCR(ctx context.Context, pdfURL string) (OCREntry, bool) {
	var entry OCREntry
	ok := c.getJSON(ctx, OCRKey(pdfURL), &entry)
	return entry, ok
}

// PutOCR caches OCR text with the given TTL.
func (c *Cache) PutOCR(ctx context.Context, pdfURL string, entry OCREntry, ttl time.Duration) {
	c.putJSON(ctx, OCRKey(pdfURL), entry, ttl)
}

// InvalidateOCR drops the cached OCR text for a PDF URL.
func (c *Cache) InvalidateOCR(ctx context.Context, pdfURL string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, OCRKey(pdfURL)).Err(); err != nil {
		c.logMiss("cache_del_failed", OCRKey(pdfURL), err)
	}
}

// GetAnalysis returns the cached analysis for one dedup identity.
func (c *Cache) GetAnalysis(ctx context.Context, territoryID, gazetteID, configHash string) (AnalysisEntry, bool) {
	var entry AnalysisEntry
	ok := c.getJSON(ctx, AnalysisKey(territoryID, gazetteID, configHash), &entry)
	return entry, ok
}

// PutAnalysis caches an analysis result with the given TTL.
func (c *Cache) PutAnalysis(ctx context.Context, entry AnalysisEntry, ttl time.Duration) {
	c.putJSON(ctx, AnalysisKey(entry.TerritoryID, entry.GazetteID, entry.ConfigHash), entry, ttl)
}

// Ping reports cache reachability for health endpoints.
func (c *Cache) Ping(ctx context.Context) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	return c.rdb.Ping(ctx).Err() == nil
}

func (c *Cache) getJSON(ctx context.Context, key string, dest any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logMiss("cache_get_failed", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A corrupt entry behaves like a miss; drop it so the next
		// write starts clean.
		c.logMiss("cache_decode_failed", key, err)
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) putJSON(ctx context.Context, key string, val any, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logMiss("cache_set_failed", key, err)
	}
}

func (c *Cache) logMiss(event, key string, err error) {
	if c.logger != nil {
		c.logger.Warn(event, "key", key, "error", err.Error())
	}
}
