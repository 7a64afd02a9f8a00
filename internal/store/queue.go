package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const queueColumns = `id, queue, payload, status, attempts, max_attempts, visible_at, claimed_at, last_error, created_at`

// EnqueueMessage inserts a single durable message.
func (s *Store) EnqueueMessage(ctx context.Context, queue string, payload []byte, maxAttempts int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO queue_messages (id, queue, payload, max_attempts)
		VALUES ($1, $2, $3, $4)`, id, queue, payload, maxAttempts)
	return id, err
}

// EnqueueBatch inserts up to len(payloads) messages in one statement.
// Callers bound batches (the dispatcher uses <=100) so the VALUES list
// stays small.
func (s *Store) EnqueueBatch(ctx context.Context, queue string, payloads [][]byte, maxAttempts int) error {
	if len(payloads) == 0 {
		return nil
	}

	query := `INSERT INTO queue_messages (id, queue, payload, max_attempts) VALUES `
	args := make([]any, 0, len(payloads)*4)
	for i, p := range payloads {
		if i > 0 {
			query += ", "
		}
		base := i * 4
		query += placeholderRow(base+1, 4)
		args = append(args, uuid.New(), queue, p, maxAttempts)
	}

	_, err := s.DB.ExecContext(ctx, query, args...)
	return err
}

// ClaimMessages atomically claims up to limit ready messages from a
// queue. FOR UPDATE SKIP LOCKED keeps concurrent consumers from
// claiming the same row; attempts counts this delivery.
func (s *Store) ClaimMessages(ctx context.Context, queue string, limit int) ([]QueueMessage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		UPDATE queue_messages
		SET status = 'processing', attempts = attempts + 1, claimed_at = now()
		WHERE id IN (
			SELECT id FROM queue_messages
			WHERE queue = $1 AND status = 'pending' AND visible_at <= now()
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+queueColumns, queue, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueMessage
	for rows.Next() {
		m, err := scanQueueMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AckMessage marks a claimed message consumed.
func (s *Store) AckMessage(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE queue_messages SET status = 'done' WHERE id = $1`, id)
	return err
}

// NackMessage returns a message to the queue with a delay, or moves it
// to the dead-letter state once attempts are exhausted. Reports whether
// the message was dead-lettered.
func (s *Store) NackMessage(ctx context.Context, id uuid.UUID, delay time.Duration, lastError string) (bool, error) {
	var status string
	err := s.DB.QueryRowContext(ctx, `
		UPDATE queue_messages
		SET status = CASE WHEN attempts >= max_attempts THEN 'dead' ELSE 'pending' END,
		    visible_at = now() + $2::interval,
		    last_error = $3
		WHERE id = $1
		RETURNING status`,
		id, delay.String(), nullString(lastError)).Scan(&status)
	if err != nil {
		return false, err
	}
	return status == "dead", nil
}

// ReapExpiredClaims requeues processing messages whose claim exceeded
// the visibility timeout, so crashed workers do not strand messages.
func (s *Store) ReapExpiredClaims(ctx context.Context, visibility time.Duration) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE queue_messages
		SET status = CASE WHEN attempts >= max_attempts THEN 'dead' ELSE 'pending' END,
		    visible_at = now()
		WHERE status = 'processing' AND claimed_at < now() - $1::interval`,
		visibility.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// QueueDepths reports per-status message counts for one queue.
func (s *Store) QueueDepths(ctx context.Context, queue string) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT status, count(*) FROM queue_messages WHERE queue = $1 GROUP BY status`, queue)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// DeleteDoneMessagesBefore removes consumed messages older than the
// cutoff. Dead-lettered rows are kept for inspection.
func (s *Store) DeleteDoneMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM queue_messages WHERE status = 'done' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanQueueMessage(row scanner) (QueueMessage, error) {
	var m QueueMessage
	err := row.Scan(&m.ID, &m.Queue, &m.Payload, &m.Status, &m.Attempts, &m.MaxAttempts,
		&m.VisibleAt, &m.ClaimedAt, &m.LastError, &m.CreatedAt)
	return m, err
}
