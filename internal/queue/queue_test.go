package queue

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"gazeta/internal/store"
)

func newTestFabric(t *testing.T, maxRetries int) (*Fabric, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(store.New(db), maxRetries, 100, nil), mock
}

func claimRows(id uuid.UUID, queue string, payload []byte, attempts int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "queue", "payload", "status", "attempts", "max_attempts",
		"visible_at", "claimed_at", "last_error", "created_at",
	}).AddRow(id, queue, payload, "processing", attempts, 3, now, now, nil, now)
}

func TestSendEncodesPayload(t *testing.T) {
	f, mock := newTestFabric(t, 3)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_messages")).
		WithArgs(sqlmock.AnyArg(), "crawl", []byte(`{"spiderId":"ba_acajutiba"}`), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := f.Send(context.Background(), "crawl", map[string]string{"spiderId": "ba_acajutiba"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSendBatchFallsBackPerMessage(t *testing.T) {
	f, mock := newTestFabric(t, 3)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_messages")).
		WillReturnError(context.DeadlineExceeded)
	// Batch failure degrades to individual sends.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_messages")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queue_messages")).
		WillReturnError(context.DeadlineExceeded)

	enqueued, failed := f.SendBatch(context.Background(), "ocr", []any{
		map[string]string{"jobId": "ocr-1"},
		map[string]string{"jobId": "ocr-2"},
	})
	if enqueued != 1 || failed != 1 {
		t.Errorf("enqueued=%d failed=%d, want 1/1", enqueued, failed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReceiveAndAck(t *testing.T) {
	f, mock := newTestFabric(t, 3)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs("analysis", 5).
		WillReturnRows(claimRows(id, "analysis", []byte(`{"jobId":"analysis-1"}`), 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'done'")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deliveries, err := f.Receive(context.Background(), "analysis", 5)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("got %d deliveries", len(deliveries))
	}

	d := deliveries[0]
	if d.Queue() != "analysis" || d.Attempt() != 1 {
		t.Errorf("delivery = queue %q attempt %d", d.Queue(), d.Attempt())
	}

	var payload struct {
		JobID string `json:"jobId"`
	}
	if err := d.Decode(&payload); err != nil || payload.JobID != "analysis-1" {
		t.Errorf("decode = %+v, %v", payload, err)
	}

	if err := d.Ack(context.Background()); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if !d.Settled() {
		t.Error("delivery not settled after ack")
	}
	// Settling is idempotent.
	if err := d.Ack(context.Background()); err != nil {
		t.Errorf("second ack: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRetryBackoffGrowsWithAttempts(t *testing.T) {
	cases := []struct {
		attempt   int
		wantDelay string
	}{
		{1, "10s"},
		{2, "20s"},
		{3, "40s"},
		{12, "10m0s"}, // capped
	}
	for _, tc := range cases {
		f, mock := newTestFabric(t, 3)
		id := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WillReturnRows(claimRows(id, "ocr", []byte(`{}`), tc.attempt))
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE queue_messages")).
			WithArgs(id, tc.wantDelay, "provider unavailable").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))

		deliveries, err := f.Receive(context.Background(), "ocr", 1)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		dead, err := deliveries[0].Retry(context.Background(), "provider unavailable")
		if err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if dead {
			t.Error("requeued message reported dead")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("attempt %d: unmet expectations: %v", tc.attempt, err)
		}
	}
}

func TestRetryReportsDeadLetter(t *testing.T) {
	f, mock := newTestFabric(t, 3)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WillReturnRows(claimRows(id, "webhook", []byte(`{}`), 3))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE queue_messages")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("dead"))

	deliveries, err := f.Receive(context.Background(), "webhook", 1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	dead, err := deliveries[0].Retry(context.Background(), "subscriber keeps failing")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if !dead {
		t.Error("exhausted message should be dead-lettered")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
