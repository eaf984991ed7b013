// Package validate holds the structural, cross-lobby, and match-quality
// checks for extracted standings. Every check is a pure function returning a
// clamped score, a verdict, and a list of typed issues; violations are
// reported, never silently corrected.
package validate

// Severity distinguishes hard structural errors from advisory findings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	IssueWrongPlayerCount        = "wrong_player_count"
	IssueMissingName             = "missing_name"
	IssueMissingPlacement        = "missing_placement"
	IssuePlacementOutOfRange     = "placement_out_of_range"
	IssueDuplicatePlacement      = "duplicate_placement"
	IssueDuplicatePlayer         = "duplicate_player"
	IssueMissingPlacements       = "missing_placements"
	IssueLobbyCountMismatch      = "lobby_count_mismatch"
	IssuePlayerInMultipleLobbies = "player_in_multiple_lobbies"
	IssueTotalPlayerCount        = "total_player_count"
	IssuePlacementCoverage       = "placement_coverage"
	IssueUnmatchedPlayers        = "unmatched_players"
	IssueLowConfidenceMatches    = "low_confidence_matches"
	IssueLowAverageConfidence    = "low_average_confidence"
)

// Issue is one validation finding. Issues are data, not errors: they ride on
// the submission or batch result for reviewers and downstream scoring.
type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the outcome of one validation pass.
type Result struct {
	Valid  bool    `json:"valid"`
	Score  float64 `json:"score"`
	Issues []Issue `json:"issues,omitempty"`
}

// validThreshold is the minimum score at which a result counts as valid.
const validThreshold = 0.70

func finish(score float64, issues []Issue) Result {
	if score < 0 {
		score = 0
	}
	return Result{Valid: score >= validThreshold, Score: score, Issues: issues}
}
