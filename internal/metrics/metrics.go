package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the pipeline.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	enqueuedTotal   = make(map[string]int64)
	ackedTotal      = make(map[string]int64)
	retriedTotal    = make(map[string]int64)
	deadLetterTotal = make(map[string]int64)

	stageTotal      = make(map[stageKey]int64)
	stageMsSum      = make(map[string]int64)
	stageMsCount    = make(map[string]int64)
	cacheTotal      = make(map[cacheKey]int64)
	webhookTotal    = make(map[string]int64)
	retentionTotal  = make(map[string]int64)
	analyzerMsSum   = make(map[string]int64)
	analyzerMsCount = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type stageKey struct {
	Stage  string
	Status string
}

type cacheKey struct {
	Kind string
	Hit  string
}

// RecordRequest increments the HTTP request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	requestsTotal[reqKey{Method: method, Path: path, Status: status}]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordEnqueue counts messages enqueued to a queue.
func RecordEnqueue(queue string, n int) {
	if n <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	enqueuedTotal[queue] += int64(n)
}

// RecordAck counts one consumed message.
func RecordAck(queue string) {
	mu.Lock()
	defer mu.Unlock()
	ackedTotal[queue]++
}

// RecordRetry counts one requeued message.
func RecordRetry(queue string) {
	mu.Lock()
	defer mu.Unlock()
	retriedTotal[queue]++
}

// RecordDeadLetter counts one dead-lettered message.
func RecordDeadLetter(queue string) {
	mu.Lock()
	defer mu.Unlock()
	deadLetterTotal[queue]++
}

// RecordStage counts one stage execution and its latency.
func RecordStage(stage, status string, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()
	stageTotal[stageKey{Stage: stage, Status: status}]++
	stageMsSum[stage] += latencyMs
	stageMsCount[stage]++
}

// RecordCache counts one cache lookup by kind (ocr|analysis).
func RecordCache(kind string, hit bool) {
	mu.Lock()
	defer mu.Unlock()
	h := "false"
	if hit {
		h = "true"
	}
	cacheTotal[cacheKey{Kind: kind, Hit: h}]++
}

// RecordWebhook counts one delivery outcome (sent|retry|failed).
func RecordWebhook(status string) {
	mu.Lock()
	defer mu.Unlock()
	webhookTotal[status]++
}

// RecordRetention counts rows deleted by TTL cleanup per kind.
func RecordRetention(kind string, deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionTotal[kind] += deleted
}

// RecordAnalyzer records one analyzer run's latency.
func RecordAnalyzer(name string, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()
	analyzerMsSum[name] += latencyMs
	analyzerMsCount[name]++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP gazeta_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE gazeta_http_requests_total counter\n")

	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})
	for _, k := range reqKeys {
		fmt.Fprintf(&b, "gazeta_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP gazeta_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE gazeta_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP gazeta_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE gazeta_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})
	for _, k := range latKeys {
		fmt.Fprintf(&b, "gazeta_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "gazeta_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	writeQueueCounter := func(name, help string, vals map[string]int64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
		var queues []string
		for q := range vals {
			queues = append(queues, q)
		}
		sort.Strings(queues)
		for _, q := range queues {
			fmt.Fprintf(&b, "%s{queue=\"%s\"} %d\n", name, q, vals[q])
		}
	}

	writeQueueCounter("gazeta_queue_enqueued_total", "Messages enqueued per queue", enqueuedTotal)
	writeQueueCounter("gazeta_queue_acked_total", "Messages consumed per queue", ackedTotal)
	writeQueueCounter("gazeta_queue_retried_total", "Messages requeued per queue", retriedTotal)
	writeQueueCounter("gazeta_queue_dead_letter_total", "Messages dead-lettered per queue", deadLetterTotal)

	b.WriteString("# HELP gazeta_stage_processed_total Stage executions by outcome\n")
	b.WriteString("# TYPE gazeta_stage_processed_total counter\n")

	var stageKeys []stageKey
	for k := range stageTotal {
		stageKeys = append(stageKeys, k)
	}
	sort.Slice(stageKeys, func(i, j int) bool {
		if stageKeys[i].Stage != stageKeys[j].Stage {
			return stageKeys[i].Stage < stageKeys[j].Stage
		}
		return stageKeys[i].Status < stageKeys[j].Status
	})
	for _, k := range stageKeys {
		fmt.Fprintf(&b, "gazeta_stage_processed_total{stage=\"%s\",status=\"%s\"} %d\n",
			k.Stage, k.Status, stageTotal[k])
	}

	b.WriteString("# HELP gazeta_stage_duration_ms_sum Total stage duration in milliseconds\n")
	b.WriteString("# TYPE gazeta_stage_duration_ms_sum counter\n")
	b.WriteString("# HELP gazeta_stage_duration_ms_count Stage count for latency metric\n")
	b.WriteString("# TYPE gazeta_stage_duration_ms_count counter\n")

	var stages []string
	for s := range stageMsSum {
		stages = append(stages, s)
	}
	sort.Strings(stages)
	for _, s := range stages {
		fmt.Fprintf(&b, "gazeta_stage_duration_ms_sum{stage=\"%s\"} %d\n", s, stageMsSum[s])
		fmt.Fprintf(&b, "gazeta_stage_duration_ms_count{stage=\"%s\"} %d\n", s, stageMsCount[s])
	}

	b.WriteString("# HELP gazeta_cache_lookups_total Cache lookups by kind and outcome\n")
	b.WriteString("# TYPE gazeta_cache_lookups_total counter\n")

	var cacheKeys []cacheKey
	for k := range cacheTotal {
		cacheKeys = append(cacheKeys, k)
	}
	sort.Slice(cacheKeys, func(i, j int) bool {
		if cacheKeys[i].Kind != cacheKeys[j].Kind {
			return cacheKeys[i].Kind < cacheKeys[j].Kind
		}
		return cacheKeys[i].Hit < cacheKeys[j].Hit
	})
	for _, k := range cacheKeys {
		fmt.Fprintf(&b, "gazeta_cache_lookups_total{kind=\"%s\",hit=\"%s\"} %d\n",
			k.Kind, k.Hit, cacheTotal[k])
	}

	b.WriteString("# HELP gazeta_webhook_deliveries_total Webhook delivery outcomes\n")
	b.WriteString("# TYPE gazeta_webhook_deliveries_total counter\n")

	var whStatuses []string
	for s := range webhookTotal {
		whStatuses = append(whStatuses, s)
	}
	sort.Strings(whStatuses)
	for _, s := range whStatuses {
		fmt.Fprintf(&b, "gazeta_webhook_deliveries_total{status=\"%s\"} %d\n", s, webhookTotal[s])
	}

	b.WriteString("# HELP gazeta_analyzer_duration_ms_sum Total analyzer duration in milliseconds\n")
	b.WriteString("# TYPE gazeta_analyzer_duration_ms_sum counter\n")

	var analyzers []string
	for a := range analyzerMsSum {
		analyzers = append(analyzers, a)
	}
	sort.Strings(analyzers)
	for _, a := range analyzers {
		fmt.Fprintf(&b, "gazeta_analyzer_duration_ms_sum{analyzer=\"%s\"} %d\n", a, analyzerMsSum[a])
		fmt.Fprintf(&b, "gazeta_analyzer_duration_ms_count{analyzer=\"%s\"} %d\n", a, analyzerMsCount[a])
	}

	b.WriteString("# HELP gazeta_retention_deleted_total Rows deleted by TTL cleanup\n")
	b.WriteString("# TYPE gazeta_retention_deleted_total counter\n")

	var kinds []string
	for k := range retentionTotal {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "gazeta_retention_deleted_total{kind=\"%s\"} %d\n", k, retentionTotal[k])
	}

	return b.String()
}
