// Package analysis runs the configured analyzers over OCR'd gazette
// text, aggregates their findings, and removes duplicates against the
// recent finding window.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gazeta/internal/config"
	"gazeta/internal/llm"
	"gazeta/internal/metrics"
	"gazeta/internal/model"
)

// Input is the material one analysis run works on.
type Input struct {
	Text            string
	TerritoryID     string
	GazetteID       string
	PublicationDate string
}

// Analyzer extracts typed findings from gazette text.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, in Input) ([]model.Finding, error)
}

// Result aggregates one full analyzer pass.
type Result struct {
	Findings       []model.Finding
	Categories     []string
	Keywords       []string
	Summary        string
	HighConfidence int
	Timings        map[string]int64
}

// HighConfidenceThreshold marks findings counted as high confidence.
const HighConfidenceThreshold = 0.8

type registered struct {
	analyzer Analyzer
	priority int
	timeout  time.Duration
}

// Engine runs enabled analyzers in priority order with per-analyzer
// timeouts. A failing analyzer is logged and skipped; the others still
// contribute findings.
type Engine struct {
	analyzers []registered
	logger    *slog.Logger
}

// NewEngine wires analyzers from config. llmClient may be nil, which
// disables the AI analyzer and AI-assisted concurso extraction.
func NewEngine(cfg config.AnalyzersConfig, llmClient llm.Client, logger *slog.Logger) *Engine {
	e := &Engine{logger: logger}

	add := func(a Analyzer, ac config.AnalyzerConfig) {
		timeout := time.Duration(ac.TimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		e.analyzers = append(e.analyzers, registered{analyzer: a, priority: ac.Priority, timeout: timeout})
	}

	if cfg.Keyword.Enabled {
		add(NewKeywordAnalyzer(), cfg.Keyword)
	}
	if cfg.Entity.Enabled {
		add(NewEntityAnalyzer(), cfg.Entity)
	}
	if cfg.Concurso.Enabled {
		var client llm.Client
		if cfg.Concurso.UseAIExtraction {
			client = llmClient
		}
		add(NewConcursoAnalyzer(client, cfg.Concurso.Model), cfg.Concurso.AnalyzerConfig)
	}
	if cfg.AI.Enabled && llmClient != nil {
		add(NewAIAnalyzer(llmClient, ""), cfg.AI)
	}

	sort.SliceStable(e.analyzers, func(i, j int) bool {
		return e.analyzers[i].priority < e.analyzers[j].priority
	})

	return e
}

// Run executes every analyzer and aggregates their findings.
func (e *Engine) Run(ctx context.Context, in Input) Result {
	res := Result{Timings: make(map[string]int64)}

	for _, reg := range e.analyzers {
		started := time.Now()

		runCtx, cancel := context.WithTimeout(ctx, reg.timeout)
		findings, err := reg.analyzer.Analyze(runCtx, in)
		cancel()

		elapsed := time.Since(started).Milliseconds()
		res.Timings[reg.analyzer.Name()] = elapsed
		metrics.RecordAnalyzer(reg.analyzer.Name(), elapsed)

		if err != nil {
			if e.logger != nil {
				e.logger.Warn("analyzer_failed",
					"analyzer", reg.analyzer.Name(),
					"territory_id", in.TerritoryID,
					"gazette_id", in.GazetteID,
					"error", err.Error())
			}
			continue
		}

		res.Findings = append(res.Findings, findings...)
	}

	res.Categories = collectStrings(res.Findings, "category")
	res.Keywords = collectStrings(res.Findings, "keyword")
	for _, f := range res.Findings {
		if f.Confidence >= HighConfidenceThreshold {
			res.HighConfidence++
		}
	}
	res.Summary = summarize(res)

	return res
}

func collectStrings(findings []model.Finding, field string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range findings {
		s, _ := f.Data[field].(string)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func summarize(res Result) string {
	if len(res.Findings) == 0 {
		return "no findings"
	}

	byType := make(map[string]int)
	for _, f := range res.Findings {
		byType[f.Type]++
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%d %s", byType[t], t))
	}
	return fmt.Sprintf("%d findings (%s), %d high confidence",
		len(res.Findings), strings.Join(parts, ", "), res.HighConfidence)
}
