// Package crawler defines the plug-in surface for gazette sources and
// a registry that resolves spider types to crawler instances. The
// pipeline depends only on the Crawler interface; site-specific
// adapters register themselves by spider type.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"gazeta/internal/model"
)

// Crawler discovers gazette PDFs for one territory and date range.
type Crawler interface {
	// Crawl returns a finite list of candidates. Transport problems
	// are returned as errors; an empty list is a valid outcome.
	Crawl(ctx context.Context) ([]model.GazetteCandidate, error)
	// RequestCount reports how many upstream requests were issued.
	RequestCount() int
}

// Factory builds a Crawler from per-source config and a date range.
type Factory func(cfg json.RawMessage, dateRange model.DateRange) (Crawler, error)

// Descriptor declares one registered spider: a territory plus the
// adapter type and config used to crawl its gazette source.
type Descriptor struct {
	SpiderID    string          `yaml:"spiderId" json:"spiderId"`
	TerritoryID string          `yaml:"territoryId" json:"territoryId"`
	Name        string          `yaml:"name" json:"name"`
	SpiderType  string          `yaml:"spiderType" json:"spiderType"`
	Config      json.RawMessage `yaml:"-" json:"config,omitempty"`
}

// Registry maps spider types to factories and spider ids to
// descriptors. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	factories   map[string]Factory
	descriptors map[string]Descriptor
	order       []string
}

// NewRegistry builds an empty registry with the built-in adapter types
// (api, html) pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		factories:   make(map[string]Factory),
		descriptors: make(map[string]Descriptor),
	}
	r.RegisterType("api", NewAPICrawler)
	r.RegisterType("html", NewHTMLCrawler)
	return r
}

// RegisterType installs a factory for a spider type.
func (r *Registry) RegisterType(spiderType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[spiderType] = f
}

// RegisterSpider adds one descriptor. The spider type must have a
// registered factory.
func (r *Registry) RegisterSpider(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[d.SpiderType]; !ok {
		return fmt.Errorf("unknown spider type %q for spider %q", d.SpiderType, d.SpiderID)
	}
	if _, exists := r.descriptors[d.SpiderID]; !exists {
		r.order = append(r.order, d.SpiderID)
	}
	r.descriptors[d.SpiderID] = d
	return nil
}

// Resolve builds a crawler for a spider type, config and date range.
func (r *Registry) Resolve(spiderType string, cfg json.RawMessage, dateRange model.DateRange) (Crawler, error) {
	r.mu.RLock()
	f, ok := r.factories[spiderType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown spider type %q", spiderType)
	}
	return f(cfg, dateRange)
}

// Get returns the descriptor for one spider id.
func (r *Registry) Get(spiderID string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[spiderID]
	return d, ok
}

// Descriptors lists registered spiders, optionally filtered by type,
// in registration order.
func (r *Registry) Descriptors(typeFilter string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		d := r.descriptors[id]
		if typeFilter != "" && d.SpiderType != typeFilter {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Count returns the number of registered spiders.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// CountByType returns per-platform spider totals.
func (r *Registry) CountByType() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int)
	for _, d := range r.descriptors {
		out[d.SpiderType]++
	}
	return out
}

// spiderFile is the YAML shape of the spider list file.
type spiderFile struct {
	Spiders []struct {
		SpiderID    string         `yaml:"spiderId"`
		TerritoryID string         `yaml:"territoryId"`
		Name        string         `yaml:"name"`
		SpiderType  string         `yaml:"spiderType"`
		Config      map[string]any `yaml:"config"`
	} `yaml:"spiders"`
}

// LoadFile registers every spider declared in a YAML file.
func (r *Registry) LoadFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("open spiders file: %w", err)
	}

	var f spiderFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("decode spiders file: %w", err)
	}

	loaded := 0
	for _, s := range f.Spiders {
		cfg, err := json.Marshal(s.Config)
		if err != nil {
			return loaded, fmt.Errorf("encode config for spider %q: %w", s.SpiderID, err)
		}
		d := Descriptor{
			SpiderID:    s.SpiderID,
			TerritoryID: s.TerritoryID,
			Name:        s.Name,
			SpiderType:  s.SpiderType,
			Config:      cfg,
		}
		if err := r.RegisterSpider(d); err != nil {
			return loaded, err
		}
		loaded++
	}

	return loaded, nil
}
