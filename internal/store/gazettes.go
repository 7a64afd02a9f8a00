package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"gazeta/internal/model"
)

const registryColumns = `id, publication_date, edition_number, pdf_url, pdf_object_key,
	is_extra_edition, power, status, metadata, created_at`

// LookupRegistryByPDFURL fetches the registry row for a PDF URL.
// Returns sql.ErrNoRows when the gazette has never been seen.
func (s *Store) LookupRegistryByPDFURL(ctx context.Context, pdfURL string) (GazetteRegistry, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+registryColumns+` FROM gazette_registry WHERE pdf_url = $1`, pdfURL)
	return scanRegistry(row)
}

// GetRegistryByID fetches one registry row by id.
func (s *Store) GetRegistryByID(ctx context.Context, id uuid.UUID) (GazetteRegistry, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+registryColumns+` FROM gazette_registry WHERE id = $1`, id)
	return scanRegistry(row)
}

// InsertRegistry registers a newly discovered gazette PDF. The unique
// index on pdf_url makes concurrent discovery safe: the loser of the
// race gets created=false and the survivor's row back.
func (s *Store) InsertRegistry(ctx context.Context, cand model.GazetteCandidate) (GazetteRegistry, bool, error) {
	pubDate, err := time.Parse("2006-01-02", cand.PublicationDate)
	if err != nil {
		return GazetteRegistry{}, false, err
	}

	meta, err := json.Marshal(map[string]any{"spiderScrapedAt": cand.ScrapedAt.UTC()})
	if err != nil {
		return GazetteRegistry{}, false, err
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO gazette_registry (id, publication_date, edition_number, pdf_url, is_extra_edition, power, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		ON CONFLICT (pdf_url) DO NOTHING
		RETURNING `+registryColumns,
		uuid.New(), pubDate, nullString(cand.EditionNumber), cand.PDFURL,
		cand.IsExtraEdition, cand.Power, pqtype.NullRawMessage{RawMessage: meta, Valid: true})

	reg, err := scanRegistry(row)
	if err == nil {
		return reg, true, nil
	}
	if err != sql.ErrNoRows {
		return GazetteRegistry{}, false, err
	}

	reg, err = s.LookupRegistryByPDFURL(ctx, cand.PDFURL)
	return reg, false, err
}

// ClaimRegistryForOCR performs the compare-and-set at the heart of the
// OCR claim protocol: pending/uploaded -> ocr_processing. Exactly one
// concurrent worker observes true; everyone else must re-read the row
// and route accordingly.
func (s *Store) ClaimRegistryForOCR(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE gazette_registry SET status = 'ocr_processing'
		WHERE id = $1
		  AND status IN ('pending', 'uploaded')
		  AND status NOT IN ('ocr_processing', 'ocr_retrying', 'ocr_success')`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateRegistryStatus sets the OCR progress field on a registry row.
func (s *Store) UpdateRegistryStatus(ctx context.Context, id uuid.UUID, status model.RegistryStatus) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE gazette_registry SET status = $2 WHERE id = $1`, id, status)
	return err
}

// SetRegistryObjectKey records the content-addressed object-store key
// for the mirrored PDF.
func (s *Store) SetRegistryObjectKey(ctx context.Context, id uuid.UUID, objectKey string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE gazette_registry SET pdf_object_key = $2 WHERE id = $1`, id, nullString(objectKey))
	return err
}

func scanRegistry(row scanner) (GazetteRegistry, error) {
	var g GazetteRegistry
	err := row.Scan(&g.ID, &g.PublicationDate, &g.EditionNumber, &g.PDFURL, &g.PDFObjectKey,
		&g.IsExtraEdition, &g.Power, &g.Status, &g.Metadata, &g.CreatedAt)
	return g, err
}

const crawlColumns = `id, job_id, territory_id, spider_id, gazette_id, analysis_result_id, status, scraped_at, created_at`

// InsertGazetteCrawl records one discovery of a gazette by a crawl job.
// job_id is unique; redelivered crawl messages return the existing row.
func (s *Store) InsertGazetteCrawl(ctx context.Context, jobID, territoryID, spiderID string, gazetteID uuid.UUID, status model.CrawlStatus, scrapedAt time.Time) (GazetteCrawl, error) {
	var scraped sql.NullTime
	if !scrapedAt.IsZero() {
		scraped = sql.NullTime{Time: scrapedAt.UTC(), Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO gazette_crawls (id, job_id, territory_id, spider_id, gazette_id, status, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO NOTHING
		RETURNING `+crawlColumns,
		uuid.New(), jobID, territoryID, spiderID, gazetteID, status, scraped)

	gc, err := scanGazetteCrawl(row)
	if err == nil {
		return gc, nil
	}
	if err != sql.ErrNoRows {
		return GazetteCrawl{}, err
	}

	row = s.DB.QueryRowContext(ctx,
		`SELECT `+crawlColumns+` FROM gazette_crawls WHERE job_id = $1`, jobID)
	return scanGazetteCrawl(row)
}

// GetGazetteCrawl fetches one gazette crawl row by id.
func (s *Store) GetGazetteCrawl(ctx context.Context, id uuid.UUID) (GazetteCrawl, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+crawlColumns+` FROM gazette_crawls WHERE id = $1`, id)
	return scanGazetteCrawl(row)
}

// UpdateGazetteCrawlStatus moves one crawl row to a new state.
func (s *Store) UpdateGazetteCrawlStatus(ctx context.Context, id uuid.UUID, status model.CrawlStatus) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE gazette_crawls SET status = $2 WHERE id = $1`, id, status)
	return err
}

// LinkAnalysisResult attaches the analysis result to a crawl row and
// marks the crawl successful in one statement.
func (s *Store) LinkAnalysisResult(ctx context.Context, crawlID, analysisID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE gazette_crawls SET analysis_result_id = $2, status = 'success'
		WHERE id = $1`, crawlID, analysisID)
	return err
}

// FailCrawlsForGazette bulk-fails every non-terminal crawl of a gazette
// after its OCR definitively failed.
func (s *Store) FailCrawlsForGazette(ctx context.Context, gazetteID uuid.UUID) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE gazette_crawls SET status = 'failed'
		WHERE gazette_id = $1 AND status NOT IN ('success', 'failed')`, gazetteID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanGazetteCrawl(row scanner) (GazetteCrawl, error) {
	var gc GazetteCrawl
	err := row.Scan(&gc.ID, &gc.JobID, &gc.TerritoryID, &gc.SpiderID, &gc.GazetteID,
		&gc.AnalysisResultID, &gc.Status, &gc.ScrapedAt, &gc.CreatedAt)
	return gc, err
}
