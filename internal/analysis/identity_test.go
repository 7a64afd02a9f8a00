package analysis

import (
	"strings"
	"testing"

	"gazeta/internal/config"
)

func testAnalyzersConfig() config.AnalyzersConfig {
	return config.AnalyzersConfig{
		Keyword: config.AnalyzerConfig{Enabled: true, Priority: 10},
		Entity:  config.AnalyzerConfig{Enabled: true, Priority: 20},
		Concurso: config.ConcursoAnalyzerConfig{
			AnalyzerConfig: config.AnalyzerConfig{Enabled: true, Priority: 30},
		},
	}
}

func TestConfigHashDeterministic(t *testing.T) {
	cfg := testAnalyzersConfig()

	a := ConfigHash(cfg, "4205407")
	b := ConfigHash(cfg, "4205407")
	if a != b {
		t.Errorf("same input produced different hashes: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
}

func TestConfigHashChangesWithInput(t *testing.T) {
	cfg := testAnalyzersConfig()
	base := ConfigHash(cfg, "4205407")

	if got := ConfigHash(cfg, "2900306"); got == base {
		t.Error("different territory produced the same hash")
	}

	changed := cfg
	changed.Concurso.UseAIExtraction = true
	if got := ConfigHash(changed, "4205407"); got == base {
		t.Error("different config produced the same hash")
	}
}

func TestJobID(t *testing.T) {
	id := JobID("4205407", "2024-08-01-edicao-123", "abcd1234abcd1234")
	if !strings.HasPrefix(id, "analysis-") {
		t.Errorf("job id %q missing prefix", id)
	}
	if len(id) != len("analysis-")+16 {
		t.Errorf("job id length = %d", len(id))
	}
	if id != JobID("4205407", "2024-08-01-edicao-123", "abcd1234abcd1234") {
		t.Error("job id is not deterministic")
	}
	if id == JobID("4205407", "2024-08-01-edicao-124", "abcd1234abcd1234") {
		t.Error("different gazette produced the same job id")
	}
}

func TestNewConfigSignature(t *testing.T) {
	cfg := testAnalyzersConfig()
	sig := NewConfigSignature(cfg, "4205407")

	if sig.Analyzers != "keyword,entity,concurso" {
		t.Errorf("analyzers = %q", sig.Analyzers)
	}
	if sig.ConfigHash != ConfigHash(cfg, "4205407") {
		t.Error("signature hash does not match ConfigHash")
	}

	cfg.Entity.Enabled = false
	if got := NewConfigSignature(cfg, "4205407").Analyzers; got != "keyword,concurso" {
		t.Errorf("analyzers = %q after disabling entity", got)
	}
}
