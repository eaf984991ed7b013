// Package match resolves extracted player names against the tournament
// roster. Matching runs in tiers: exact normalized lookup, a case-insensitive
// second pass, then fuzzy similarity over every roster name. The roster index
// is an immutable snapshot swapped atomically on roster updates.
package match

import (
	"sync/atomic"

	"github.com/agext/levenshtein"

	"github.com/bracketworks/standings-cli/internal/model"
)

const caseInsensitiveConfidence = 0.99

// Result is the outcome of matching one extracted name.
type Result struct {
	Success     bool              `json:"success"`
	PlayerID    string            `json:"player_id,omitempty"`
	MatchedName string            `json:"matched_name,omitempty"`
	Method      model.MatchMethod `json:"method"`
	Confidence  float64           `json:"confidence"`
}

// RowMatch annotates one extracted row with its match result.
type RowMatch struct {
	Row model.ExtractedRow `json:"row"`
	Result
}

// Matcher resolves extracted names against a roster snapshot. Safe for
// concurrent use; MatchPlayer is a pure function of (name, current snapshot).
type Matcher struct {
	threshold float64
	idx       atomic.Pointer[index]
}

// New builds a matcher over the given roster. threshold is the minimum fuzzy
// similarity accepted as a successful match.
func New(roster []model.RosterEntry, threshold float64) *Matcher {
	m := &Matcher{threshold: threshold}
	m.idx.Store(buildIndex(roster))
	return m
}

// UpdateRoster rebuilds the index wholesale and swaps it in atomically.
func (m *Matcher) UpdateRoster(roster []model.RosterEntry) {
	m.idx.Store(buildIndex(roster))
}

// MatchPlayer resolves one extracted name. Tiers are evaluated in order and
// the first success wins.
func (m *Matcher) MatchPlayer(name string) Result {
	idx := m.idx.Load()

	lowKey := Lowered(name)
	if lowKey == "" {
		return Result{Method: model.MatchNone}
	}

	// Tier 1: exact match on the normalized key.
	normKey := Normalize(name)
	if normKey != "" {
		if e, ok := idx.normalized[normKey]; ok {
			return Result{
				Success:     true,
				PlayerID:    e.playerID,
				MatchedName: e.name,
				Method:      model.MatchExact,
				Confidence:  1.0,
			}
		}
	}

	// Tier 2: case-insensitive lookup on the raw name. Catches names that
	// normalize to nothing, such as symbol-only IGNs.
	if e, ok := idx.lowered[lowKey]; ok {
		return Result{
			Success:     true,
			PlayerID:    e.playerID,
			MatchedName: e.name,
			Method:      model.MatchCaseInsensitive,
			Confidence:  caseInsensitiveConfidence,
		}
	}

	if normKey == "" || len(idx.candidates) == 0 {
		return Result{Method: model.MatchNone}
	}

	// Tier 3: fuzzy similarity against every roster name.
	best := candidate{prio: prioAlias + 1}
	bestScore := -1.0
	for _, c := range idx.candidates {
		score := levenshtein.Similarity(normKey, c.normalized, levenshtein.NewParams())
		if score > bestScore || (score == bestScore && c.prio < best.prio) {
			best = c
			bestScore = score
		}
	}

	if bestScore >= m.threshold {
		return Result{
			Success:     true,
			PlayerID:    best.playerID,
			MatchedName: best.name,
			Method:      model.MatchFuzzy,
			Confidence:  bestScore,
		}
	}

	// Below threshold: report the near miss for manual review, not accepted.
	// No PlayerID is set, so downstream must not treat this as resolved.
	return Result{
		MatchedName: best.name,
		Method:      model.MatchFuzzyLowConfidence,
		Confidence:  bestScore,
	}
}

// MatchPlayers annotates every extracted row with its match result.
func (m *Matcher) MatchPlayers(rows []model.ExtractedRow) []RowMatch {
	out := make([]RowMatch, 0, len(rows))
	for _, row := range rows {
		out = append(out, RowMatch{Row: row, Result: m.MatchPlayer(row.Name)})
	}
	return out
}
