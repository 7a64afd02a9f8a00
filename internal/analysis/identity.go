package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"gazeta/internal/config"
)

// ConfigSignature identifies one analyzer configuration applied to one
// territory. It is persisted in analysis metadata so the store-level
// dedup lookup can compare configurations across runs.
type ConfigSignature struct {
	ConfigHash string `json:"configHash"`
	Analyzers  string `json:"analyzers"`
}

// NewConfigSignature builds the persisted signature for one analyzer
// configuration applied to a territory.
func NewConfigSignature(cfg config.AnalyzersConfig, territoryID string) ConfigSignature {
	var enabled []string
	if cfg.Keyword.Enabled {
		enabled = append(enabled, "keyword")
	}
	if cfg.Entity.Enabled {
		enabled = append(enabled, "entity")
	}
	if cfg.Concurso.Enabled {
		enabled = append(enabled, "concurso")
	}
	if cfg.AI.Enabled {
		enabled = append(enabled, "ai")
	}
	return ConfigSignature{
		ConfigHash: ConfigHash(cfg, territoryID),
		Analyzers:  strings.Join(enabled, ","),
	}
}

// ConfigHash digests the enabled-analyzer configuration together with
// the territory. Identical inputs always produce identical hashes; any
// config change produces a new analysis identity.
func ConfigHash(cfg config.AnalyzersConfig, territoryID string) string {
	canonical := struct {
		Keyword  config.AnalyzerConfig         `json:"keyword"`
		Entity   config.AnalyzerConfig         `json:"entity"`
		Concurso config.ConcursoAnalyzerConfig `json:"concurso"`
		AI       config.AnalyzerConfig         `json:"ai"`
		Terr     string                        `json:"territoryId"`
	}{cfg.Keyword, cfg.Entity, cfg.Concurso, cfg.AI, territoryID}

	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}

// JobID derives the deterministic analysis job id for one
// (territory, gazette, configHash) triple. The store's unique
// constraint on this id is what makes repeated analysis submissions
// idempotent.
func JobID(territoryID, gazetteID, configHash string) string {
	sum := sha256.Sum256([]byte(territoryID + "\x00" + gazetteID + "\x00" + configHash))
	return fmt.Sprintf("analysis-%s", hex.EncodeToString(sum[:])[:16])
}
