package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"gazeta/internal/model"
)

const ocrJobColumns = `id, document_id, message_job_id, status, pages_processed, processing_time_ms,
	text_length, error_code, error_message, metadata, created_at, completed_at`

// InsertOcrJob creates an OCR attempt row in the processing state.
// Uniqueness on (document_id, message_job_id) makes message redelivery
// idempotent: the race loser reuses the surviving row.
func (s *Store) InsertOcrJob(ctx context.Context, documentID uuid.UUID, messageJobID string, isRetry bool) (OcrJob, error) {
	meta, err := json.Marshal(map[string]any{"jobId": messageJobID, "isRetry": isRetry})
	if err != nil {
		return OcrJob{}, err
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO ocr_jobs (id, document_id, message_job_id, status, metadata)
		VALUES ($1, $2, $3, 'processing', $4)
		ON CONFLICT (document_id, message_job_id) DO NOTHING
		RETURNING `+ocrJobColumns,
		uuid.New(), documentID, messageJobID, pqtype.NullRawMessage{RawMessage: meta, Valid: true})

	job, err := scanOcrJob(row)
	if err == nil {
		return job, nil
	}
	if err != sql.ErrNoRows {
		return OcrJob{}, err
	}

	row = s.DB.QueryRowContext(ctx, `
		SELECT `+ocrJobColumns+` FROM ocr_jobs
		WHERE document_id = $1 AND message_job_id = $2`, documentID, messageJobID)
	return scanOcrJob(row)
}

// CompleteOcrJob records the outcome of one OCR attempt.
func (s *Store) CompleteOcrJob(ctx context.Context, id uuid.UUID, out model.OcrOutcome) error {
	var errCode, errMsg sql.NullString
	if out.Error != nil {
		errCode = nullString(out.Error.Code)
		errMsg = nullString(out.Error.Message)
	}

	_, err := s.DB.ExecContext(ctx, `
		UPDATE ocr_jobs
		SET status = $2, pages_processed = $3, processing_time_ms = $4,
		    text_length = $5, error_code = $6, error_message = $7, completed_at = now()
		WHERE id = $1`,
		id, out.Status,
		nullInt32(out.PagesProcessed, out.PagesProcessed > 0),
		nullInt64(out.ProcessingTimeMs, out.ProcessingTimeMs > 0),
		nullInt32(len(out.ExtractedText), out.ExtractedText != ""),
		errCode, errMsg)
	return err
}

const ocrResultColumns = `id, document_id, extracted_text, text_length, confidence_score,
	language_detected, processing_method, metadata, created_at`

// UpsertOcrResult stores the extracted text for a gazette. At most one
// result exists per document; a retried OCR replaces the previous text.
func (s *Store) UpsertOcrResult(ctx context.Context, documentID uuid.UUID, extractedText, processingMethod string, metadata any) (OcrResult, error) {
	var meta pqtype.NullRawMessage
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return OcrResult{}, err
		}
		meta = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO ocr_results (id, document_id, extracted_text, text_length, language_detected, processing_method, metadata)
		VALUES ($1, $2, $3, $4, 'pt', $5, $6)
		ON CONFLICT (document_id) DO UPDATE
		SET extracted_text = EXCLUDED.extracted_text,
		    text_length = EXCLUDED.text_length,
		    processing_method = EXCLUDED.processing_method,
		    metadata = EXCLUDED.metadata
		RETURNING `+ocrResultColumns,
		uuid.New(), documentID, extractedText, len(extractedText), processingMethod, meta)
	return scanOcrResult(row)
}

// GetOcrResultByDocument fetches the stored text for a gazette.
// Returns sql.ErrNoRows when OCR has not succeeded yet.
func (s *Store) GetOcrResultByDocument(ctx context.Context, documentID uuid.UUID) (OcrResult, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+ocrResultColumns+` FROM ocr_results WHERE document_id = $1`, documentID)
	return scanOcrResult(row)
}

func scanOcrJob(row scanner) (OcrJob, error) {
	var j OcrJob
	err := row.Scan(&j.ID, &j.DocumentID, &j.MessageJobID, &j.Status, &j.PagesProcessed,
		&j.ProcessingTimeMs, &j.TextLength, &j.ErrorCode, &j.ErrorMessage,
		&j.Metadata, &j.CreatedAt, &j.CompletedAt)
	return j, err
}

func scanOcrResult(row scanner) (OcrResult, error) {
	var r OcrResult
	err := row.Scan(&r.ID, &r.DocumentID, &r.ExtractedText, &r.TextLength, &r.ConfidenceScore,
		&r.LanguageDetected, &r.ProcessingMethod, &r.Metadata, &r.CreatedAt)
	return r, err
}
