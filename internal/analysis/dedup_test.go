package analysis

import (
	"context"
	"testing"
	"time"

	"gazeta/internal/model"
)

func concursoFinding(orgao, edital, cargo string, vagas int) model.Finding {
	return model.Finding{
		Type:       "concurso",
		Confidence: 0.9,
		Data: map[string]any{
			"category":     "concurso",
			"orgao":        orgao,
			"editalNumero": edital,
			"cargos":       []string{cargo},
			"totalVagas":   vagas,
		},
	}
}

func TestFindingHashNormalizes(t *testing.T) {
	a := concursoFinding("Prefeitura Municipal de Acajutiba", "01/2024", "Professor", 10)
	b := concursoFinding("PREFEITURA  MUNICIPAL DE ACAJUTIBA", "01/2024", "professor", 10)

	if FindingHash(a, "2900306") != FindingHash(b, "2900306") {
		t.Error("case and whitespace differences changed the hash")
	}
	if FindingHash(a, "2900306") == FindingHash(a, "4205407") {
		t.Error("different territories produced the same hash")
	}
}

func TestFilterRemovesExactDuplicates(t *testing.T) {
	d := NewDeduplicator(nil)
	f := concursoFinding("Prefeitura Municipal de Acajutiba", "01/2024", "Professor", 10)

	kept, removed := d.Filter(context.Background(), "2900306", []model.Finding{f, f})
	if len(kept) != 1 || removed != 1 {
		t.Fatalf("kept=%d removed=%d, want 1/1", len(kept), removed)
	}

	kept, removed = d.Filter(context.Background(), "2900306", []model.Finding{f})
	if len(kept) != 0 || removed != 1 {
		t.Errorf("second pass kept=%d removed=%d, want 0/1", len(kept), removed)
	}
}

func TestFilterRemovesSimilarFindings(t *testing.T) {
	d := NewDeduplicator(nil)
	first := concursoFinding("Prefeitura Municipal de Acajutiba", "01/2024", "Professor", 10)
	// Same orgao and edital, different cargo. Weighted score lands at
	// exactly the duplicate threshold.
	similar := concursoFinding("Prefeitura Municipal de Acajutiba", "01/2024", "Enfermeiro", 10)
	distinct := concursoFinding("Prefeitura Municipal de Acajutiba", "02/2024", "Enfermeiro", 5)

	if got := Similarity(first, similar); got < DuplicateThreshold {
		t.Fatalf("Similarity = %.2f, want >= %.2f", got, DuplicateThreshold)
	}
	if got := Similarity(first, distinct); got >= DuplicateThreshold {
		t.Fatalf("Similarity = %.2f for distinct findings", got)
	}

	if kept, _ := d.Filter(context.Background(), "2900306", []model.Finding{first}); len(kept) != 1 {
		t.Fatal("first finding should be kept")
	}
	kept, removed := d.Filter(context.Background(), "2900306", []model.Finding{similar, distinct})
	if removed != 1 || len(kept) != 1 {
		t.Fatalf("kept=%d removed=%d, want 1/1", len(kept), removed)
	}
	if kept[0].Data["editalNumero"] != "02/2024" {
		t.Errorf("wrong survivor: %v", kept[0].Data)
	}
}

func TestFilterDifferentTerritoriesIndependent(t *testing.T) {
	d := NewDeduplicator(nil)
	f := concursoFinding("Prefeitura Municipal de Acajutiba", "01/2024", "Professor", 10)

	d.Filter(context.Background(), "2900306", []model.Finding{f})
	kept, removed := d.Filter(context.Background(), "4205407", []model.Finding{f})
	if len(kept) != 1 || removed != 0 {
		t.Errorf("kept=%d removed=%d, territories should not share windows", len(kept), removed)
	}
}

func TestFilterConsultsStoreWindow(t *testing.T) {
	calls := 0
	window := func(_ context.Context, territoryID string, since time.Time, limit int) ([]model.ConcursoData, error) {
		calls++
		if territoryID != "2900306" {
			t.Errorf("territory = %q", territoryID)
		}
		if limit != dedupStoreLimit {
			t.Errorf("limit = %d", limit)
		}
		return []model.ConcursoData{{
			Orgao:        "Prefeitura Municipal de Acajutiba",
			EditalNumero: "01/2024",
			Cargos:       []string{"Professor"},
			TotalVagas:   10,
		}}, nil
	}
	d := NewDeduplicator(window)

	f := concursoFinding("Prefeitura Municipal de Acajutiba", "01/2024", "Professor", 10)
	kept, removed := d.Filter(context.Background(), "2900306", []model.Finding{f})
	if len(kept) != 0 || removed != 1 {
		t.Errorf("kept=%d removed=%d, stored row should dedup", len(kept), removed)
	}
	if calls != 1 {
		t.Errorf("window called %d times", calls)
	}

	// No concurso findings means the store is never queried.
	keyword := model.Finding{Type: "keyword", Data: map[string]any{"category": "licitacao", "keyword": "licitação"}}
	d.Filter(context.Background(), "2900306", []model.Finding{keyword})
	if calls != 1 {
		t.Errorf("window called %d times for non-concurso findings", calls)
	}
}

func TestFilterPrunesExpiredEntries(t *testing.T) {
	d := NewDeduplicator(nil)
	current := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	f := concursoFinding("Prefeitura Municipal de Acajutiba", "01/2024", "Professor", 10)
	d.Filter(context.Background(), "2900306", []model.Finding{f})

	current = current.Add(25 * time.Hour)
	kept, removed := d.Filter(context.Background(), "2900306", []model.Finding{f})
	if len(kept) != 1 || removed != 0 {
		t.Errorf("kept=%d removed=%d, entry past the window should not dedup", len(kept), removed)
	}
}
