package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, "store_write", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	base := errors.New("connection refused")
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, "ocr_result_store", func(context.Context) error {
		calls++
		return base
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, base) {
		t.Error("underlying error not wrapped")
	}
	if !strings.Contains(err.Error(), "ocr_result_store failed after 3 attempts") {
		t.Errorf("error = %q", err)
	}
}

func TestDoValueReturnsLastValue(t *testing.T) {
	got, err := DoValue(context.Background(), 2, time.Millisecond, "lookup", func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("got %d, %v", got, err)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, 5, 10*time.Millisecond, "cancelled_op", func(context.Context) error {
		return errors.New("still failing")
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}
