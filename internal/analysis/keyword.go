package analysis

import (
	"context"
	"strings"

	"gazeta/internal/model"
	"gazeta/internal/textutil"
)

// categoryKeywords maps finding categories to the gazette terms that
// signal them. Matching is done on normalized text.
var categoryKeywords = map[string][]string{
	"licitacao": {
		"licitação", "pregão eletrônico", "pregão presencial",
		"tomada de preços", "concorrência pública", "dispensa de licitação",
		"inexigibilidade",
	},
	"contrato": {
		"contrato administrativo", "termo aditivo", "ata de registro de preços",
		"extrato de contrato", "rescisão contratual",
	},
	"concurso": {
		"concurso público", "processo seletivo", "edital de abertura",
		"homologação do resultado", "convocação de aprovados",
	},
	"pessoal": {
		"nomeação", "exoneração", "aposentadoria", "licença sem vencimento",
		"gratificação", "cessão de servidor",
	},
	"orcamento": {
		"crédito suplementar", "crédito adicional", "lei orçamentária",
		"abertura de crédito", "remanejamento de dotação",
	},
	"convenio": {
		"convênio", "termo de cooperação", "termo de fomento",
	},
}

type keywordAnalyzer struct{}

// NewKeywordAnalyzer builds the dictionary-based analyzer.
func NewKeywordAnalyzer() Analyzer {
	return keywordAnalyzer{}
}

func (keywordAnalyzer) Name() string { return "keyword" }

func (keywordAnalyzer) Analyze(_ context.Context, in Input) ([]model.Finding, error) {
	normalized := textutil.Normalize(in.Text)

	var out []model.Finding
	for category, terms := range categoryKeywords {
		for _, term := range terms {
			idx := strings.Index(normalized, term)
			if idx < 0 {
				continue
			}
			out = append(out, model.Finding{
				Type:       "keyword",
				Confidence: keywordConfidence(term),
				Data: map[string]any{
					"category": category,
					"keyword":  term,
				},
				Context: textutil.Snippet(normalized, idx, idx+len(term), 240),
			})
		}
	}
	return out, nil
}

// keywordConfidence scores longer, more specific terms higher.
func keywordConfidence(term string) float64 {
	if strings.ContainsRune(term, ' ') {
		return 0.9
	}
	return 0.7
}
