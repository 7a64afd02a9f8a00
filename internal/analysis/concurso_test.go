package analysis

import (
	"context"
	"errors"
	"testing"

	"gazeta/internal/llm"
)

const sampleEdital = `PREFEITURA MUNICIPAL DE ACAJUTIBA
EDITAL DE ABERTURA Nº 01/2024
Torna público o Concurso Público para provimento de cargos efetivos.
Cargo de Professor de Matemática, com 10 vagas. Cargo de Enfermeiro, com 5 vagas.
Taxa de inscrição: R$ 80,00
Inscrições de 01/09/2024 a 30/09/2024 no site da banca.
Provas previstas para 15/11/2024.
Organização: IBFC.`

type fakeLLM struct {
	fields map[string]any
	err    error
	calls  int
}

func (f *fakeLLM) ExtractJSON(_ context.Context, _ llm.ExtractRequest) (llm.ExtractResult, error) {
	f.calls++
	if f.err != nil {
		return llm.ExtractResult{}, f.err
	}
	return llm.ExtractResult{Fields: f.fields}, nil
}

func TestConcursoAnalyzerRegexExtraction(t *testing.T) {
	findings, err := NewConcursoAnalyzer(nil, "").Analyze(context.Background(), Input{
		Text:        sampleEdital,
		TerritoryID: "2900306",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}

	f := findings[0]
	if f.Type != "concurso" {
		t.Errorf("type = %q", f.Type)
	}
	if f.Confidence != 0.95 {
		t.Errorf("confidence = %.2f, want 0.95", f.Confidence)
	}

	data, ok := ConcursoFromFinding(f)
	if !ok {
		t.Fatal("ConcursoFromFinding failed")
	}
	if data.EditalNumero != "01/2024" {
		t.Errorf("edital = %q", data.EditalNumero)
	}
	if data.Orgao != "PREFEITURA MUNICIPAL DE ACAJUTIBA" {
		t.Errorf("orgao = %q", data.Orgao)
	}
	if data.TotalVagas != 15 {
		t.Errorf("totalVagas = %d, want 15", data.TotalVagas)
	}
	if len(data.Cargos) != 2 {
		t.Errorf("cargos = %v", data.Cargos)
	}
	if data.Banca != "ibfc" {
		t.Errorf("banca = %q", data.Banca)
	}
	if data.DocumentType != "edital_abertura" {
		t.Errorf("documentType = %q", data.DocumentType)
	}
	if data.ExtractionMethod != "regex" {
		t.Errorf("extractionMethod = %q", data.ExtractionMethod)
	}
	if data.Datas["inscricao_inicio"] != "01/09/2024" || data.Datas["inscricao_fim"] != "30/09/2024" {
		t.Errorf("inscricao datas = %v", data.Datas)
	}
	if data.Datas["prova"] != "15/11/2024" {
		t.Errorf("prova data = %v", data.Datas["prova"])
	}
	if len(data.Taxas) != 1 || data.Taxas[0] != "R$ 80,00" {
		t.Errorf("taxas = %v", data.Taxas)
	}
}

func TestConcursoAnalyzerNoTrigger(t *testing.T) {
	findings, err := NewConcursoAnalyzer(nil, "").Analyze(context.Background(), Input{
		Text: "Extrato de contrato administrativo celebrado com ACME Ltda.",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if findings != nil {
		t.Errorf("got findings from text without concurso triggers: %v", findings)
	}
}

func TestConcursoAnalyzerAIRefinement(t *testing.T) {
	client := &fakeLLM{fields: map[string]any{
		"orgao":        "Prefeitura Municipal de Acajutiba",
		"editalNumero": "001/2024",
		"totalVagas":   float64(18),
		"cargos":       []any{"Professor de Matemática", "Enfermeiro", "Motorista"},
		"banca":        "IBFC",
		"documentType": "edital_abertura",
	}}

	findings, err := NewConcursoAnalyzer(client, "").Analyze(context.Background(), Input{Text: sampleEdital})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("llm called %d times", client.calls)
	}

	data, _ := ConcursoFromFinding(findings[0])
	if data.EditalNumero != "001/2024" {
		t.Errorf("edital = %q, AI value should win", data.EditalNumero)
	}
	if data.TotalVagas != 18 {
		t.Errorf("totalVagas = %d, want 18", data.TotalVagas)
	}
	if len(data.Cargos) != 3 {
		t.Errorf("cargos = %v", data.Cargos)
	}
	if data.ExtractionMethod != "ai+regex" {
		t.Errorf("extractionMethod = %q", data.ExtractionMethod)
	}
}

func TestConcursoAnalyzerAIFailureFallsBack(t *testing.T) {
	client := &fakeLLM{err: errors.New("rate limited")}

	findings, err := NewConcursoAnalyzer(client, "").Analyze(context.Background(), Input{Text: sampleEdital})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	data, _ := ConcursoFromFinding(findings[0])
	if data.ExtractionMethod != "regex" {
		t.Errorf("extractionMethod = %q, want regex fallback", data.ExtractionMethod)
	}
	if data.EditalNumero != "01/2024" {
		t.Errorf("edital = %q", data.EditalNumero)
	}
}
