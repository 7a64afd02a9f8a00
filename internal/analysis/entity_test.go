package analysis

import (
	"context"
	"strings"
	"testing"

	"gazeta/internal/model"
)

func TestEntityAnalyzer(t *testing.T) {
	in := Input{
		Text: "Contratada: ACME Ltda, CNPJ 12.345.678/0001-90, valor global de R$ 150.000,00, " +
			"conforme Lei nº 8.666/93 e Processo Administrativo nº 2024/001.",
	}

	findings, err := NewEntityAnalyzer().Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	want := map[string]struct {
		value string
		conf  float64
	}{
		"cnpj":           {"12.345.678/0001-90", 0.95},
		"monetary_value": {"R$ 150.000,00", 0.9},
		"law_reference":  {"Lei nº 8.666/93", 0.85},
		"process_number": {"Processo Administrativo nº 2024/001", 0.8},
	}

	got := make(map[string]model.Finding)
	for _, f := range findings {
		if f.Type != "entity" {
			t.Errorf("finding type = %q", f.Type)
		}
		got[f.Data["category"].(string)] = f
	}

	for category, w := range want {
		f, ok := got[category]
		if !ok {
			t.Errorf("missing %s finding", category)
			continue
		}
		value := strings.TrimRight(f.Data["value"].(string), ".")
		if value != w.value {
			t.Errorf("%s value = %q, want %q", category, value, w.value)
		}
		if f.Confidence != w.conf {
			t.Errorf("%s confidence = %.2f, want %.2f", category, f.Confidence, w.conf)
		}
	}
}

func TestEntityAnalyzerDeduplicatesValues(t *testing.T) {
	in := Input{Text: "CNPJ 12.345.678/0001-90 e novamente CNPJ 12.345.678/0001-90."}

	findings, err := NewEntityAnalyzer().Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Errorf("got %d findings, want 1 for a repeated value", len(findings))
	}
}
