package analysis

import (
	"context"
	"time"

	"gazeta/internal/llm"
	"gazeta/internal/model"
	"gazeta/internal/textutil"
)

const aiExcerptLimit = 16000

type aiAnalyzer struct {
	client llm.Client
	model  string
}

// NewAIAnalyzer builds the LLM-backed classifier. It complements the
// keyword analyzer with categories the dictionary misses.
func NewAIAnalyzer(client llm.Client, aiModel string) Analyzer {
	return &aiAnalyzer{client: client, model: aiModel}
}

func (a *aiAnalyzer) Name() string { return "ai" }

func (a *aiAnalyzer) Analyze(ctx context.Context, in Input) ([]model.Finding, error) {
	res, err := a.client.ExtractJSON(ctx, llm.ExtractRequest{
		System: "You classify Brazilian municipal gazette text. Answer only with JSON.",
		Prompt: "Classify this official gazette excerpt. Return a JSON object with keys: " +
			"categories (string array, from: licitacao, contrato, concurso, pessoal, " +
			"orcamento, convenio, legislacao, outro), summary (one sentence, Portuguese), " +
			"confidence (number between 0 and 1).",
		Text:    textutil.Truncate(in.Text, aiExcerptLimit),
		Model:   a.model,
		Timeout: 45 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	categories := textutil.ToStrings(res.Fields["categories"])
	if len(categories) == 0 {
		return nil, nil
	}

	confidence := toFloat(res.Fields["confidence"], 0.7)
	summary := textutil.ToString(res.Fields["summary"])

	findings := make([]model.Finding, 0, len(categories))
	for _, cat := range categories {
		findings = append(findings, model.Finding{
			Type:       "ai",
			Confidence: confidence,
			Data: map[string]any{
				"category": textutil.Normalize(cat),
				"summary":  summary,
			},
		})
	}
	return findings, nil
}

func toFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		if n >= 0 && n <= 1 {
			return n
		}
	case int:
		if n >= 0 && n <= 1 {
			return float64(n)
		}
	}
	return fallback
}
