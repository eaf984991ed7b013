package validate

import (
	"fmt"

	"github.com/bracketworks/standings-cli/internal/match"
)

const (
	penaltyUnmatched     = 0.15
	penaltyLowConfidence = 0.05
	penaltyLowAverage    = 0.20

	// Successful fuzzy matches under this confidence still get flagged in
	// strict mode; they passed the threshold but deserve reviewer attention.
	lowConfidenceBar = 0.97
)

// QualityOptions configures match-quality validation.
type QualityOptions struct {
	Strict bool
	// MinAvgConfidence is the floor for the lobby's mean match confidence.
	MinAvgConfidence float64
}

// MatchQuality scores how well a lobby's extracted names resolved against
// the roster. Unmatched players are penalized proportionally to their count;
// low-confidence matches more lightly, and only in strict mode.
func MatchQuality(matches []match.RowMatch, opts QualityOptions) Result {
	floor := opts.MinAvgConfidence
	if floor <= 0 {
		floor = 0.90
	}

	score := 1.0
	var issues []Issue

	if len(matches) == 0 {
		return finish(score, issues)
	}

	unmatched := 0
	lowConfidence := 0
	sum := 0.0
	for _, rm := range matches {
		sum += rm.Confidence
		if !rm.Success {
			unmatched++
			continue
		}
		if rm.Confidence < lowConfidenceBar {
			lowConfidence++
		}
	}

	if unmatched > 0 {
		score -= penaltyUnmatched * float64(unmatched)
		issues = append(issues, Issue{
			Code:     IssueUnmatchedPlayers,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%d of %d players unmatched", unmatched, len(matches)),
		})
	}

	if opts.Strict && lowConfidence > 0 {
		score -= penaltyLowConfidence * float64(lowConfidence)
		issues = append(issues, Issue{
			Code:     IssueLowConfidenceMatches,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d low-confidence matches", lowConfidence),
		})
	}

	avg := sum / float64(len(matches))
	if avg < floor {
		score -= penaltyLowAverage
		issues = append(issues, Issue{
			Code:     IssueLowAverageConfidence,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("average match confidence %.3f below %.2f", avg, floor),
		})
	}

	return finish(score, issues)
}
