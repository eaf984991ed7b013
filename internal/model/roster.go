package model

// RosterEntry is a canonical player identity owned by the registration
// system. Consumed read-only here to build the matching index.
type RosterEntry struct {
	PlayerID      string   `json:"player_id" yaml:"player_id"`
	CanonicalName string   `json:"canonical_name" yaml:"canonical_name"`
	Handle        string   `json:"handle,omitempty" yaml:"handle,omitempty"`
	Aliases       []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// ExtractedRow is one player/placement guess reported by the extractor.
type ExtractedRow struct {
	Name      string `json:"name"`
	Placement int    `json:"placement"`
}
