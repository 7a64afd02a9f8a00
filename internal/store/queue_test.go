package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func expectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnqueueMessage(t *testing.T) {
	st, mock := newMockStore(t)
	payload := []byte(`{"jobId":"crawl-1"}`)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_messages")).
		WithArgs(sqlmock.AnyArg(), "crawl", payload, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := st.EnqueueMessage(context.Background(), "crawl", payload, 3)
	if err != nil {
		t.Fatalf("EnqueueMessage: %v", err)
	}
	if id == uuid.Nil {
		t.Error("nil message id")
	}
	expectations(t, mock)
}

func TestEnqueueBatchPlaceholders(t *testing.T) {
	st, mock := newMockStore(t)
	payloads := [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}

	// Two rows of four placeholders each.
	mock.ExpectExec(regexp.QuoteMeta("($1, $2, $3, $4), ($5, $6, $7, $8)")).
		WithArgs(sqlmock.AnyArg(), "ocr", payloads[0], 3,
			sqlmock.AnyArg(), "ocr", payloads[1], 3).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := st.EnqueueBatch(context.Background(), "ocr", payloads, 3); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	expectations(t, mock)
}

func TestEnqueueBatchEmpty(t *testing.T) {
	st, mock := newMockStore(t)
	if err := st.EnqueueBatch(context.Background(), "ocr", nil, 3); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	expectations(t, mock)
}

func queueRows(msgs ...QueueMessage) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "queue", "payload", "status", "attempts", "max_attempts",
		"visible_at", "claimed_at", "last_error", "created_at",
	})
	for _, m := range msgs {
		rows.AddRow(m.ID, m.Queue, m.Payload, m.Status, m.Attempts, m.MaxAttempts,
			m.VisibleAt, m.ClaimedAt, m.LastError, m.CreatedAt)
	}
	return rows
}

func TestClaimMessages(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now().UTC()
	msg := QueueMessage{
		ID:          uuid.New(),
		Queue:       "analysis",
		Payload:     []byte(`{"jobId":"analysis-1"}`),
		Status:      "processing",
		Attempts:    1,
		MaxAttempts: 3,
		VisibleAt:   now,
		ClaimedAt:   sql.NullTime{Time: now, Valid: true},
		CreatedAt:   now,
	}

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs("analysis", 10).
		WillReturnRows(queueRows(msg))

	got, err := st.ClaimMessages(context.Background(), "analysis", 10)
	if err != nil {
		t.Fatalf("ClaimMessages: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("claimed %d messages", len(got))
	}
	if got[0].ID != msg.ID || got[0].Attempts != 1 || string(got[0].Payload) != string(msg.Payload) {
		t.Errorf("message = %+v", got[0])
	}
	expectations(t, mock)
}

func TestNackMessage(t *testing.T) {
	cases := []struct {
		name     string
		returned string
		wantDead bool
	}{
		{"requeued", "pending", false},
		{"dead_lettered", "dead", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, mock := newMockStore(t)
			id := uuid.New()

			mock.ExpectQuery(regexp.QuoteMeta("UPDATE queue_messages")).
				WithArgs(id, "20s", "handler failed").
				WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(tc.returned))

			dead, err := st.NackMessage(context.Background(), id, 20*time.Second, "handler failed")
			if err != nil {
				t.Fatalf("NackMessage: %v", err)
			}
			if dead != tc.wantDead {
				t.Errorf("dead = %v, want %v", dead, tc.wantDead)
			}
			expectations(t, mock)
		})
	}
}

func TestQueueDepths(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY status")).
		WithArgs("webhook").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).AddRow("processing", 1).AddRow("dead", 2))

	depths, err := st.QueueDepths(context.Background(), "webhook")
	if err != nil {
		t.Fatalf("QueueDepths: %v", err)
	}
	if depths["pending"] != 4 || depths["processing"] != 1 || depths["dead"] != 2 {
		t.Errorf("depths = %v", depths)
	}
	expectations(t, mock)
}

func TestPlaceholderRow(t *testing.T) {
	if got := placeholderRow(1, 4); got != "($1, $2, $3, $4)" {
		t.Errorf("placeholderRow = %q", got)
	}
	if got := placeholderRow(9, 2); got != "($9, $10)" {
		t.Errorf("placeholderRow = %q", got)
	}
}
