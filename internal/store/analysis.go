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

const analysisColumns = `id, job_id, gazette_id, territory_id, publication_date, total_findings,
	high_confidence_findings, categories, keywords, findings, summary, processing_time_ms, metadata, analyzed_at`

// AnalysisInsert bundles the fields persisted for one analysis run.
type AnalysisInsert struct {
	JobID            string
	GazetteID        uuid.UUID
	TerritoryID      string
	PublicationDate  time.Time
	Findings         []model.Finding
	Categories       []string
	Keywords         []string
	Summary          string
	HighConfidence   int
	ProcessingTimeMs int64
	Metadata         any
}

// UpsertAnalysisResult persists an analysis under its deterministic
// job id. The unique index on job_id makes repeated submissions for
// the same (territory, gazette, configHash) a no-op: created=false
// returns the row that won.
func (s *Store) UpsertAnalysisResult(ctx context.Context, in AnalysisInsert) (AnalysisResult, bool, error) {
	findings, err := json.Marshal(in.Findings)
	if err != nil {
		return AnalysisResult{}, false, err
	}
	categories, err := json.Marshal(in.Categories)
	if err != nil {
		return AnalysisResult{}, false, err
	}
	keywords, err := json.Marshal(in.Keywords)
	if err != nil {
		return AnalysisResult{}, false, err
	}
	var meta pqtype.NullRawMessage
	if in.Metadata != nil {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return AnalysisResult{}, false, err
		}
		meta = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO analysis_results (id, job_id, gazette_id, territory_id, publication_date,
			total_findings, high_confidence_findings, categories, keywords, findings,
			summary, processing_time_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (job_id) DO NOTHING
		RETURNING `+analysisColumns,
		uuid.New(), in.JobID, in.GazetteID, in.TerritoryID, in.PublicationDate,
		len(in.Findings), in.HighConfidence,
		pqtype.NullRawMessage{RawMessage: categories, Valid: true},
		pqtype.NullRawMessage{RawMessage: keywords, Valid: true},
		pqtype.NullRawMessage{RawMessage: findings, Valid: true},
		nullString(in.Summary),
		nullInt64(in.ProcessingTimeMs, in.ProcessingTimeMs > 0), meta)

	ar, err := scanAnalysis(row)
	if err == nil {
		return ar, true, nil
	}
	if err != sql.ErrNoRows {
		return AnalysisResult{}, false, err
	}

	ar, err = s.GetAnalysisResultByJobID(ctx, in.JobID)
	return ar, false, err
}

// GetAnalysisResultByJobID fetches one analysis by deterministic job id.
func (s *Store) GetAnalysisResultByJobID(ctx context.Context, jobID string) (AnalysisResult, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results WHERE job_id = $1`, jobID)
	return scanAnalysis(row)
}

// ListAnalysisByTerritoryGazette returns candidate rows for config-hash
// comparison during the store-level dedup lookup.
func (s *Store) ListAnalysisByTerritoryGazette(ctx context.Context, territoryID string, gazetteID uuid.UUID) ([]AnalysisResult, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+analysisColumns+` FROM analysis_results
		WHERE territory_id = $1 AND gazette_id = $2
		ORDER BY analyzed_at DESC`, territoryID, gazetteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalysisResult
	for rows.Next() {
		ar, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}

func scanAnalysis(row scanner) (AnalysisResult, error) {
	var a AnalysisResult
	err := row.Scan(&a.ID, &a.JobID, &a.GazetteID, &a.TerritoryID, &a.PublicationDate,
		&a.TotalFindings, &a.HighConfidenceFindings, &a.Categories, &a.Keywords, &a.Findings,
		&a.Summary, &a.ProcessingTimeMs, &a.Metadata, &a.AnalyzedAt)
	return a, err
}

const concursoColumns = `id, analysis_job_id, finding_hash, gazette_id, territory_id, document_type, confidence,
	orgao, edital_numero, total_vagas, cargos, datas, taxas, banca, extraction_method, created_at`

// InsertConcursoFinding stores one public-competition finding row. The
// unique index on (analysis_job_id, finding_hash) makes re-running the
// persistence loop a no-op: a redelivered message or the loser of a
// concurrent run gets created=false and the surviving row back.
func (s *Store) InsertConcursoFinding(ctx context.Context, analysisJobID, findingHash string, gazetteID uuid.UUID, territoryID string, confidence float64, data model.ConcursoData) (ConcursoFinding, bool, error) {
	cargos, err := json.Marshal(data.Cargos)
	if err != nil {
		return ConcursoFinding{}, false, err
	}
	datas, err := json.Marshal(data.Datas)
	if err != nil {
		return ConcursoFinding{}, false, err
	}
	taxas, err := json.Marshal(data.Taxas)
	if err != nil {
		return ConcursoFinding{}, false, err
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO concurso_findings (id, analysis_job_id, finding_hash, gazette_id, territory_id, document_type,
			confidence, orgao, edital_numero, total_vagas, cargos, datas, taxas, banca, extraction_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+concursoColumns,
		uuid.New(), analysisJobID, findingHash, gazetteID, territoryID, nullString(data.DocumentType),
		confidence, nullString(data.Orgao), nullString(data.EditalNumero), data.TotalVagas,
		pqtype.NullRawMessage{RawMessage: cargos, Valid: true},
		pqtype.NullRawMessage{RawMessage: datas, Valid: true},
		pqtype.NullRawMessage{RawMessage: taxas, Valid: true},
		nullString(data.Banca), nullString(data.ExtractionMethod))

	cf, err := scanConcurso(row)
	if err == nil {
		return cf, true, nil
	}
	if !IsUniqueViolation(err) {
		return ConcursoFinding{}, false, err
	}

	row = s.DB.QueryRowContext(ctx, `
		SELECT `+concursoColumns+` FROM concurso_findings
		WHERE analysis_job_id = $1 AND finding_hash = $2`, analysisJobID, findingHash)
	cf, err = scanConcurso(row)
	return cf, false, err
}

// CountConcursoFindings re-queries how many concurso rows actually
// landed for an analysis. Webhook payloads report this stored count,
// never the attempted count.
func (s *Store) CountConcursoFindings(ctx context.Context, analysisJobID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM concurso_findings WHERE analysis_job_id = $1`, analysisJobID).Scan(&n)
	return n, err
}

// ListRecentConcursoFindings returns the store-backed recent window for
// duplicate detection, bounded per territory.
func (s *Store) ListRecentConcursoFindings(ctx context.Context, territoryID string, since time.Time, limit int) ([]ConcursoFinding, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+concursoColumns+` FROM concurso_findings
		WHERE territory_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`, territoryID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConcursoFinding
	for rows.Next() {
		cf, err := scanConcurso(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}

func scanConcurso(row scanner) (ConcursoFinding, error) {
	var c ConcursoFinding
	err := row.Scan(&c.ID, &c.AnalysisJobID, &c.FindingHash, &c.GazetteID, &c.TerritoryID, &c.DocumentType,
		&c.Confidence, &c.Orgao, &c.EditalNumero, &c.TotalVagas, &c.Cargos, &c.Datas,
		&c.Taxas, &c.Banca, &c.ExtractionMethod, &c.CreatedAt)
	return c, err
}
