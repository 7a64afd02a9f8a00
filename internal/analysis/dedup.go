package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"gazeta/internal/model"
	"gazeta/internal/textutil"
)

const (
	// DuplicateThreshold marks a finding as a duplicate of a recent one.
	DuplicateThreshold = 0.85

	dedupWindow     = 24 * time.Hour
	dedupStoreLimit = 1000
)

// FindingHash returns a stable digest over the normalized identity
// fields of a finding. Case and whitespace differences collapse to the
// same hash.
func FindingHash(f model.Finding, territoryID string) string {
	fields := []string{
		f.Type,
		dataString(f, "category"),
		dataString(f, "orgao"),
		dataString(f, "editalNumero"),
		firstCargo(f),
		fmt.Sprintf("%d", textutil.ToInt(f.Data["totalVagas"])),
		dataString(f, "date"),
		territoryID,
	}
	for i, v := range fields {
		fields[i] = textutil.Normalize(v)
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x00")))
	return hex.EncodeToString(sum[:16])
}

// ConcursoWindow supplies recent stored concurso findings for a
// territory, backed by the store in production.
type ConcursoWindow func(ctx context.Context, territoryID string, since time.Time, limit int) ([]model.ConcursoData, error)

type recentFinding struct {
	hash    string
	finding model.Finding
	seenAt  time.Time
}

// Deduplicator drops findings already seen in the last 24 hours for the
// same territory. It blends an in-memory recent cache with a
// store-backed window for concurso findings; the cache may miss, the
// store scan keeps the result correct across processes.
type Deduplicator struct {
	mu     sync.Mutex
	recent map[string][]recentFinding
	window ConcursoWindow
	now    func() time.Time
}

// NewDeduplicator builds a Deduplicator. window may be nil in tests.
func NewDeduplicator(window ConcursoWindow) *Deduplicator {
	return &Deduplicator{
		recent: make(map[string][]recentFinding),
		window: window,
		now:    time.Now,
	}
}

// Filter returns the findings that are not duplicates, plus the number
// removed. Survivors are recorded so later calls see them.
func (d *Deduplicator) Filter(ctx context.Context, territoryID string, findings []model.Finding) ([]model.Finding, int) {
	now := d.now()

	var stored []model.ConcursoData
	if d.window != nil && hasConcurso(findings) {
		var err error
		stored, err = d.window(ctx, territoryID, now.Add(-dedupWindow), dedupStoreLimit)
		if err != nil {
			stored = nil
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	cached := d.prune(territoryID, now)

	kept := findings[:0]
	removed := 0
	for _, f := range findings {
		hash := FindingHash(f, territoryID)
		if d.isDuplicate(f, hash, cached, stored) {
			removed++
			continue
		}
		entry := recentFinding{hash: hash, finding: f, seenAt: now}
		cached = append(cached, entry)
		d.recent[territoryID] = append(d.recent[territoryID], entry)
		kept = append(kept, f)
	}
	return kept, removed
}

// prune drops expired entries for a territory and returns the live ones.
func (d *Deduplicator) prune(territoryID string, now time.Time) []recentFinding {
	entries := d.recent[territoryID]
	live := entries[:0]
	cutoff := now.Add(-dedupWindow)
	for _, e := range entries {
		if e.seenAt.After(cutoff) {
			live = append(live, e)
		}
	}
	d.recent[territoryID] = live
	return live
}

func (d *Deduplicator) isDuplicate(f model.Finding, hash string, cached []recentFinding, stored []model.ConcursoData) bool {
	for _, e := range cached {
		if e.hash == hash {
			return true
		}
		if Similarity(f, e.finding) >= DuplicateThreshold {
			return true
		}
	}
	if f.Type == "concurso" {
		for _, c := range stored {
			if concursoSimilarity(f, c) >= DuplicateThreshold {
				return true
			}
		}
	}
	return false
}

// Similarity is a weighted comparison of two findings' identity fields.
// 1.0 means identical on every weighted field.
func Similarity(a, b model.Finding) float64 {
	if a.Type != b.Type {
		return 0
	}

	score := 0.2 // same type
	score += fieldWeight(dataString(a, "category"), dataString(b, "category"), 0.2)
	score += fieldWeight(dataString(a, "orgao"), dataString(b, "orgao"), 0.2)
	score += fieldWeight(dataString(a, "editalNumero"), dataString(b, "editalNumero"), 0.2)
	score += fieldWeight(firstCargo(a), firstCargo(b), 0.1)
	score += fieldWeight(a.Context, b.Context, 0.1)
	return score
}

func concursoSimilarity(f model.Finding, c model.ConcursoData) float64 {
	score := 0.2
	score += fieldWeight(dataString(f, "category"), "concurso", 0.2)
	score += fieldWeight(dataString(f, "orgao"), c.Orgao, 0.2)
	score += fieldWeight(dataString(f, "editalNumero"), c.EditalNumero, 0.2)
	storedCargo := ""
	if len(c.Cargos) > 0 {
		storedCargo = c.Cargos[0]
	}
	score += fieldWeight(firstCargo(f), storedCargo, 0.1)
	if textutil.ToInt(f.Data["totalVagas"]) == c.TotalVagas && c.TotalVagas > 0 {
		score += 0.1
	}
	return score
}

// fieldWeight grants the full weight when both values normalize equal
// and are non-empty. Two empty values count as weak agreement.
func fieldWeight(a, b string, weight float64) float64 {
	na, nb := textutil.Normalize(a), textutil.Normalize(b)
	if na == "" && nb == "" {
		return weight / 2
	}
	if na == nb {
		return weight
	}
	return 0
}

func dataString(f model.Finding, key string) string {
	if f.Data == nil {
		return ""
	}
	return textutil.ToString(f.Data[key])
}

func firstCargo(f model.Finding) string {
	if f.Data == nil {
		return ""
	}
	cargos := textutil.ToStrings(f.Data["cargos"])
	if len(cargos) == 0 {
		return ""
	}
	return cargos[0]
}

func hasConcurso(findings []model.Finding) bool {
	for _, f := range findings {
		if f.Type == "concurso" {
			return true
		}
	}
	return false
}
