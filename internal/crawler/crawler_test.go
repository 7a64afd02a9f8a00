package crawler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gazeta/internal/model"
)

type stubCrawler struct{}

func (stubCrawler) Crawl(context.Context) ([]model.GazetteCandidate, error) { return nil, nil }
func (stubCrawler) RequestCount() int                                       { return 0 }

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Resolve("sigpub", nil, model.DateRange{}); err == nil {
		t.Error("unknown spider type should fail")
	}

	r.RegisterType("stub", func(json.RawMessage, model.DateRange) (Crawler, error) {
		return stubCrawler{}, nil
	})
	c, err := r.Resolve("stub", nil, model.DateRange{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c == nil {
		t.Fatal("nil crawler")
	}
}

func TestRegisterSpiderRequiresKnownType(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterSpider(Descriptor{SpiderID: "xx_city", SpiderType: "sigpub"})
	if err == nil {
		t.Fatal("expected error for unregistered type")
	}

	if err := r.RegisterSpider(Descriptor{SpiderID: "ba_acajutiba", TerritoryID: "2900306", SpiderType: "html"}); err != nil {
		t.Fatalf("RegisterSpider: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("count = %d", r.Count())
	}
}

func TestDescriptorsFilterAndOrder(t *testing.T) {
	r := NewRegistry()
	for _, d := range []Descriptor{
		{SpiderID: "sc_florianopolis", SpiderType: "api"},
		{SpiderID: "ba_acajutiba", SpiderType: "html"},
		{SpiderID: "sp_campinas", SpiderType: "api"},
	} {
		if err := r.RegisterSpider(d); err != nil {
			t.Fatalf("RegisterSpider(%s): %v", d.SpiderID, err)
		}
	}

	all := r.Descriptors("")
	if len(all) != 3 || all[0].SpiderID != "sc_florianopolis" || all[2].SpiderID != "sp_campinas" {
		t.Errorf("descriptors = %v", all)
	}

	apis := r.Descriptors("api")
	if len(apis) != 2 {
		t.Errorf("api descriptors = %v", apis)
	}

	byType := r.CountByType()
	if byType["api"] != 2 || byType["html"] != 1 {
		t.Errorf("countByType = %v", byType)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spiders.yaml")
	content := `spiders:
  - spiderId: sc_florianopolis
    territoryId: "4205407"
    name: Florianópolis (SC)
    spiderType: api
    config:
      baseURL: https://queridodiario.ok.org.br/api/gazettes
      territoryId: "4205407"
  - spiderId: ba_acajutiba
    territoryId: "2900306"
    name: Acajutiba (BA)
    spiderType: html
    config:
      listURL: https://example.org/diarios?start={start}&end={end}
      territoryId: "2900306"
      itemSelector: div.box-diario
      linkSelector: a.btn-baixar
      dateSelector: span.data-diario
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	loaded, err := r.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded != 2 {
		t.Errorf("loaded = %d", loaded)
	}

	d, ok := r.Get("sc_florianopolis")
	if !ok {
		t.Fatal("spider missing after load")
	}
	var cfg struct {
		BaseURL string `json:"baseURL"`
	}
	if err := json.Unmarshal(d.Config, &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.BaseURL != "https://queridodiario.ok.org.br/api/gazettes" {
		t.Errorf("baseURL = %q", cfg.BaseURL)
	}

	if _, err := r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
