package analysis

import (
	"context"
	"regexp"

	"gazeta/internal/model"
	"gazeta/internal/textutil"
)

// Entity patterns for Brazilian gazette text. These are deliberately
// narrow; the AI analyzer handles the long tail.
var entityPatterns = []struct {
	kind    string
	conf    float64
	pattern *regexp.Regexp
}{
	{"cnpj", 0.95, regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}\b`)},
	{"monetary_value", 0.9, regexp.MustCompile(`R\$\s?\d{1,3}(?:\.\d{3})*(?:,\d{2})?`)},
	{"law_reference", 0.85, regexp.MustCompile(`(?i)\blei\s+(?:complementar\s+)?n[ºo°.]*\s*\d+[\d./-]*`)},
	{"decree_reference", 0.85, regexp.MustCompile(`(?i)\bdecreto\s+n[ºo°.]*\s*\d+[\d./-]*`)},
	{"process_number", 0.8, regexp.MustCompile(`(?i)\bprocesso\s+(?:administrativo\s+)?n[ºo°.]*\s*[\d./-]+`)},
}

const maxEntityMatches = 50

type entityAnalyzer struct{}

// NewEntityAnalyzer builds the pattern-based entity analyzer.
func NewEntityAnalyzer() Analyzer {
	return entityAnalyzer{}
}

func (entityAnalyzer) Name() string { return "entity" }

func (entityAnalyzer) Analyze(_ context.Context, in Input) ([]model.Finding, error) {
	var out []model.Finding
	for _, ep := range entityPatterns {
		locs := ep.pattern.FindAllStringIndex(in.Text, maxEntityMatches)
		seen := make(map[string]struct{}, len(locs))
		for _, loc := range locs {
			value := in.Text[loc[0]:loc[1]]
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			out = append(out, model.Finding{
				Type:       "entity",
				Confidence: ep.conf,
				Data: map[string]any{
					"category": ep.kind,
					"value":    value,
				},
				Context: textutil.Snippet(in.Text, loc[0], loc[1], 200),
			})
		}
	}
	return out, nil
}
