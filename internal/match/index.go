package match

import (
	"github.com/bracketworks/standings-cli/internal/model"
)

// Priority tiers for index entries. Lower wins ties when two roster names
// normalize to the same key; it never affects match confidence.
const (
	prioCanonical = iota
	prioHandle
	prioAlias
)

type indexEntry struct {
	playerID string
	name     string
	prio     int
}

// candidate is one flattened roster name prepared for the fuzzy tier.
type candidate struct {
	playerID   string
	name       string
	normalized string
	prio       int
}

// index is an immutable snapshot of the roster. The matcher swaps whole
// snapshots on roster updates so concurrent lookups never see a partial map.
type index struct {
	normalized map[string]indexEntry
	lowered    map[string]indexEntry
	candidates []candidate
}

func buildIndex(roster []model.RosterEntry) *index {
	idx := &index{
		normalized: make(map[string]indexEntry),
		lowered:    make(map[string]indexEntry),
	}
	for _, entry := range roster {
		idx.register(entry.PlayerID, entry.CanonicalName, prioCanonical)
		if entry.Handle != "" {
			idx.register(entry.PlayerID, entry.Handle, prioHandle)
		}
		for _, alias := range entry.Aliases {
			idx.register(entry.PlayerID, alias, prioAlias)
		}
	}
	return idx
}

func (idx *index) register(playerID, name string, prio int) {
	if name == "" {
		return
	}
	e := indexEntry{playerID: playerID, name: name, prio: prio}

	normKey := Normalize(name)
	if normKey != "" {
		if existing, ok := idx.normalized[normKey]; !ok || prio < existing.prio {
			idx.normalized[normKey] = e
		}
		idx.candidates = append(idx.candidates, candidate{
			playerID:   playerID,
			name:       name,
			normalized: normKey,
			prio:       prio,
		})
	}

	lowKey := Lowered(name)
	if existing, ok := idx.lowered[lowKey]; !ok || prio < existing.prio {
		idx.lowered[lowKey] = e
	}
}
