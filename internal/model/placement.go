package model

// MatchMethod records which matching tier resolved (or failed to resolve)
// an extracted player name.
type MatchMethod string

const (
	MatchExact              MatchMethod = "exact"
	MatchCaseInsensitive    MatchMethod = "case_insensitive"
	MatchFuzzy              MatchMethod = "fuzzy"
	MatchFuzzyLowConfidence MatchMethod = "fuzzy_low_confidence"
	MatchNone               MatchMethod = "none"
)

// PlayerRef points at either a resolved roster player or, when matching
// failed, the raw extracted name. Exactly one of the two carries identity;
// RawName is always populated from extraction for audit.
type PlayerRef struct {
	PlayerID string `json:"player_id,omitempty"`
	RawName  string `json:"raw_name"`
}

// ResolvedPlayer builds a reference to a known roster player.
func ResolvedPlayer(playerID, rawName string) PlayerRef {
	return PlayerRef{PlayerID: playerID, RawName: rawName}
}

// UnresolvedPlayer builds a fallback reference carrying only the raw name.
func UnresolvedPlayer(rawName string) PlayerRef {
	return PlayerRef{RawName: rawName}
}

// Resolved reports whether the reference points at a roster player.
func (r PlayerRef) Resolved() bool { return r.PlayerID != "" }

// PlacementRecord is one player's result within a submission. All records
// for a submission are written together or not at all.
type PlacementRecord struct {
	ID              string      `json:"id"`
	SubmissionID    string      `json:"submission_id"`
	Player          PlayerRef   `json:"player"`
	DisplayName     string      `json:"display_name"`
	TournamentID    string      `json:"tournament_id"`
	RoundName       string      `json:"round_name"`
	LobbyNumber     int         `json:"lobby_number"`
	Placement       int         `json:"placement"`
	Points          int         `json:"points"`
	MatchMethod     MatchMethod `json:"match_method"`
	MatchConfidence float64     `json:"match_confidence"`
	Validated       bool        `json:"validated"`
}
