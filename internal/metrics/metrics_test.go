package metrics

import (
	"strings"
	"testing"
)

func TestExportRendersCounters(t *testing.T) {
	RecordRequest("POST", "/crawl", 200, 12)
	RecordEnqueue("crawl", 3)
	RecordAck("crawl")
	RecordRetry("ocr")
	RecordDeadLetter("webhook")
	RecordStage("analysis", "ok", 40)
	RecordCache("analysis", true)
	RecordCache("ocr", false)
	RecordWebhook("sent")
	RecordAnalyzer("keyword", 5)
	RecordRetention("queue_done", 17)

	out := Export()

	for _, want := range []string{
		`gazeta_http_requests_total{method="POST",path="/crawl",status="200"}`,
		`gazeta_queue_enqueued_total{queue="crawl"} 3`,
		`gazeta_queue_acked_total{queue="crawl"} 1`,
		`gazeta_queue_retried_total{queue="ocr"} 1`,
		`gazeta_queue_dead_letter_total{queue="webhook"} 1`,
		`gazeta_stage_processed_total{stage="analysis",status="ok"} 1`,
		`gazeta_cache_lookups_total{kind="analysis",hit="true"} 1`,
		`gazeta_cache_lookups_total{kind="ocr",hit="false"} 1`,
		`gazeta_webhook_deliveries_total{status="sent"} 1`,
		`gazeta_analyzer_duration_ms_sum{analyzer="keyword"} 5`,
		`gazeta_retention_deleted_total{kind="queue_done"} 17`,
		`# TYPE gazeta_http_requests_total counter`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}
}

func TestRecordIgnoresNonPositive(t *testing.T) {
	before := Export()
	RecordEnqueue("noop", 0)
	RecordEnqueue("noop", -2)
	RecordRetention("noop", 0)
	after := Export()

	if strings.Contains(after, "noop") && !strings.Contains(before, "noop") {
		t.Error("non-positive increments should not create series")
	}
}
