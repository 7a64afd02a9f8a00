package analysis

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gazeta/internal/llm"
	"gazeta/internal/model"
	"gazeta/internal/textutil"
)

var (
	concursoTriggers = []string{
		"concurso público", "processo seletivo", "edital de abertura",
	}

	editalPattern = regexp.MustCompile(`(?i)edital\s+(?:de\s+abertura\s+)?n[ºo°.]*\s*([\d][\d./-]*)`)
	orgaoPattern  = regexp.MustCompile(`(?i)(prefeitura municipal de [^,;.\n]{3,60}|c[âa]mara municipal de [^,;.\n]{3,60}|secretaria (?:municipal )?de [^,;.\n]{3,60}|instituto de previd[êe]ncia [^,;.\n]{3,60})`)
	vagasPattern  = regexp.MustCompile(`(?i)(\d{1,4})\s+vagas?\b`)
	cargoPattern  = regexp.MustCompile(`(?i)cargo\s+(?:p[úu]blico\s+)?de\s+([^,;.\n]{3,60})`)
	taxaPattern   = regexp.MustCompile(`(?i)taxa\s+de\s+inscri[çc][ãa]o[^\n]{0,40}?R\$\s?([\d.,]+)`)
	inscrPattern  = regexp.MustCompile(`(?i)inscri[çc][õo]es[^\d]{0,60}(\d{2}/\d{2}/\d{4})(?:[^\d]{1,20}(\d{2}/\d{2}/\d{4}))?`)
	provaPattern  = regexp.MustCompile(`(?i)provas?[^\d]{0,60}(\d{2}/\d{2}/\d{4})`)
)

// Known examining boards. Matching is case-insensitive on normalized text.
var bancas = []string{
	"cebraspe", "cespe", "fgv", "fundação carlos chagas", "fcc",
	"vunesp", "ibfc", "aocp", "instituto consulplan", "idecan",
	"fundatec", "objetiva concursos",
}

type concursoAnalyzer struct {
	client  llm.Client
	aiModel string
}

// NewConcursoAnalyzer builds the public-competition analyzer. When a
// non-nil LLM client is given, regex extraction is refined by an
// AI pass over the matched region.
func NewConcursoAnalyzer(client llm.Client, aiModel string) Analyzer {
	return &concursoAnalyzer{client: client, aiModel: aiModel}
}

func (a *concursoAnalyzer) Name() string { return "concurso" }

func (a *concursoAnalyzer) Analyze(ctx context.Context, in Input) ([]model.Finding, error) {
	normalized := textutil.Normalize(in.Text)

	triggerIdx := -1
	for _, t := range concursoTriggers {
		if idx := strings.Index(normalized, t); idx >= 0 && (triggerIdx < 0 || idx < triggerIdx) {
			triggerIdx = idx
		}
	}
	if triggerIdx < 0 {
		return nil, nil
	}

	data := a.extractRegex(in.Text)
	confidence := concursoConfidence(data)

	if a.client != nil {
		if refined, ok := a.extractAI(ctx, in.Text); ok {
			data = mergeConcurso(data, refined)
			data.ExtractionMethod = "ai+regex"
			if confidence < 0.85 {
				confidence = 0.85
			}
		}
	}

	finding := model.Finding{
		Type:       "concurso",
		Confidence: confidence,
		Data:       concursoToData(data),
		Context:    textutil.Snippet(normalized, triggerIdx, triggerIdx+20, 300),
	}
	return []model.Finding{finding}, nil
}

func (a *concursoAnalyzer) extractRegex(text string) model.ConcursoData {
	data := model.ConcursoData{ExtractionMethod: "regex", Datas: map[string]string{}}

	if m := editalPattern.FindStringSubmatch(text); m != nil {
		data.EditalNumero = strings.TrimRight(m[1], "./-")
	}
	if m := orgaoPattern.FindStringSubmatch(text); m != nil {
		data.Orgao = strings.TrimSpace(m[1])
	}

	for _, m := range vagasPattern.FindAllStringSubmatch(text, 20) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			data.TotalVagas += n
		}
	}

	seenCargos := make(map[string]struct{})
	for _, m := range cargoPattern.FindAllStringSubmatch(text, 20) {
		cargo := strings.TrimSpace(m[1])
		key := textutil.Normalize(cargo)
		if _, dup := seenCargos[key]; dup {
			continue
		}
		seenCargos[key] = struct{}{}
		data.Cargos = append(data.Cargos, cargo)
	}

	for _, m := range taxaPattern.FindAllStringSubmatch(text, 10) {
		data.Taxas = append(data.Taxas, "R$ "+m[1])
	}

	if m := inscrPattern.FindStringSubmatch(text); m != nil {
		data.Datas["inscricao_inicio"] = m[1]
		if m[2] != "" {
			data.Datas["inscricao_fim"] = m[2]
		}
	}
	if m := provaPattern.FindStringSubmatch(text); m != nil {
		data.Datas["prova"] = m[1]
	}

	normalized := textutil.Normalize(text)
	for _, banca := range bancas {
		if strings.Contains(normalized, banca) {
			data.Banca = banca
			break
		}
	}

	data.DocumentType = classifyConcursoDocument(normalized)
	return data
}

// extractAI asks the LLM for the structured concurso fields. Failures
// degrade to the regex result.
func (a *concursoAnalyzer) extractAI(ctx context.Context, text string) (model.ConcursoData, bool) {
	res, err := a.client.ExtractJSON(ctx, llm.ExtractRequest{
		Prompt: "Extract public competition (concurso público) details from this Brazilian " +
			"official gazette excerpt. Return a JSON object with keys: orgao (string), " +
			"editalNumero (string), totalVagas (number), cargos (string array), " +
			"taxas (string array), banca (string), documentType (string).",
		Text:    textutil.Truncate(text, 12000),
		Model:   a.aiModel,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return model.ConcursoData{}, false
	}

	f := res.Fields
	return model.ConcursoData{
		DocumentType: textutil.ToString(f["documentType"]),
		Orgao:        textutil.ToString(f["orgao"]),
		EditalNumero: textutil.ToString(f["editalNumero"]),
		TotalVagas:   textutil.ToInt(f["totalVagas"]),
		Cargos:       textutil.ToStrings(f["cargos"]),
		Taxas:        textutil.ToStrings(f["taxas"]),
		Banca:        textutil.ToString(f["banca"]),
	}, true
}

// mergeConcurso prefers AI fields when present and falls back to the
// regex extraction per field.
func mergeConcurso(base, ai model.ConcursoData) model.ConcursoData {
	out := base
	if ai.Orgao != "" {
		out.Orgao = ai.Orgao
	}
	if ai.EditalNumero != "" {
		out.EditalNumero = ai.EditalNumero
	}
	if ai.TotalVagas > 0 {
		out.TotalVagas = ai.TotalVagas
	}
	if len(ai.Cargos) > 0 {
		out.Cargos = ai.Cargos
	}
	if len(ai.Taxas) > 0 {
		out.Taxas = ai.Taxas
	}
	if ai.Banca != "" {
		out.Banca = ai.Banca
	}
	if ai.DocumentType != "" {
		out.DocumentType = ai.DocumentType
	}
	return out
}

func classifyConcursoDocument(normalized string) string {
	switch {
	case strings.Contains(normalized, "edital de abertura"):
		return "edital_abertura"
	case strings.Contains(normalized, "homologação"):
		return "homologacao"
	case strings.Contains(normalized, "convocação"):
		return "convocacao"
	case strings.Contains(normalized, "retificação"):
		return "retificacao"
	default:
		return "aviso"
	}
}

func concursoConfidence(data model.ConcursoData) float64 {
	conf := 0.6
	if data.EditalNumero != "" {
		conf += 0.15
	}
	if data.Orgao != "" {
		conf += 0.1
	}
	if data.TotalVagas > 0 {
		conf += 0.1
	}
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}

func concursoToData(d model.ConcursoData) map[string]any {
	return map[string]any{
		"category":         "concurso",
		"documentType":     d.DocumentType,
		"orgao":            d.Orgao,
		"editalNumero":     d.EditalNumero,
		"totalVagas":       d.TotalVagas,
		"cargos":           d.Cargos,
		"datas":            d.Datas,
		"taxas":            d.Taxas,
		"banca":            d.Banca,
		"extractionMethod": d.ExtractionMethod,
	}
}

// ConcursoFromFinding decodes a concurso finding's data payload back
// into the structured form stored in concurso_findings.
func ConcursoFromFinding(f model.Finding) (model.ConcursoData, bool) {
	if f.Type != "concurso" || f.Data == nil {
		return model.ConcursoData{}, false
	}

	data := model.ConcursoData{
		DocumentType:     textutil.ToString(f.Data["documentType"]),
		Orgao:            textutil.ToString(f.Data["orgao"]),
		EditalNumero:     textutil.ToString(f.Data["editalNumero"]),
		TotalVagas:       textutil.ToInt(f.Data["totalVagas"]),
		Cargos:           textutil.ToStrings(f.Data["cargos"]),
		Taxas:            textutil.ToStrings(f.Data["taxas"]),
		Banca:            textutil.ToString(f.Data["banca"]),
		ExtractionMethod: textutil.ToString(f.Data["extractionMethod"]),
	}

	if raw, ok := f.Data["datas"].(map[string]any); ok {
		data.Datas = make(map[string]string, len(raw))
		for k, v := range raw {
			data.Datas[k] = textutil.ToString(v)
		}
	} else if typed, ok := f.Data["datas"].(map[string]string); ok {
		data.Datas = typed
	}

	return data, true
}
