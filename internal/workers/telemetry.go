package workers

import (
	"context"

	"gazeta/internal/store"
)

// tracker writes per-city step events and critical error rows. Both are
// diagnostics: failures to record them never fail the pipeline.
type tracker struct {
	st *store.Store
}

func (t tracker) step(ctx context.Context, crawlJobID, territoryID, spiderID, step, status string, detail any) {
	_ = t.st.RecordTelemetry(ctx, crawlJobID, territoryID, spiderID, step, status, detail)
}

func (t tracker) critical(ctx context.Context, worker, operation, message string, detail any) {
	_ = t.st.InsertErrorLog(ctx, worker, operation, "critical", message, detail)
}

func (t tracker) warn(ctx context.Context, worker, operation, message string, detail any) {
	_ = t.st.InsertErrorLog(ctx, worker, operation, "warning", message, detail)
}
