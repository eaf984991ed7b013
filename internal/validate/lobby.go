package validate

import (
	"fmt"
	"strings"

	"github.com/bracketworks/standings-cli/internal/model"
)

// Per-check penalties for single-lobby structural validation. Checks
// accumulate; they never short-circuit.
const (
	penaltyWrongCount         = 0.15
	penaltyMissingField       = 0.10
	penaltyOutOfRange         = 0.15
	penaltyDuplicatePlacement = 0.20
	penaltyDuplicatePlayer    = 0.20
	penaltyMissingPlacements  = 0.15
)

// LobbyOptions configures single-lobby structural validation.
type LobbyOptions struct {
	// ExpectedPlayers is the exact row count a standings screen must carry.
	ExpectedPlayers int
	// Strict additionally requires every placement value 1..N to be present.
	Strict bool
}

// Lobby checks one lobby's extracted rows against the fixed rules of the
// format: exact player count, complete rows, placements in range, no
// duplicate placements, no duplicate names, and (strict) full placement
// coverage.
func Lobby(rows []model.ExtractedRow, opts LobbyOptions) Result {
	n := opts.ExpectedPlayers
	if n <= 0 {
		n = 8
	}

	score := 1.0
	var issues []Issue

	if len(rows) != n {
		score -= penaltyWrongCount
		issues = append(issues, Issue{
			Code:     IssueWrongPlayerCount,
			Severity: SeverityError,
			Message:  fmt.Sprintf("expected %d players, got %d", n, len(rows)),
		})
	}

	seenPlacement := make(map[int]bool, len(rows))
	seenName := make(map[string]bool, len(rows))

	for i, row := range rows {
		if strings.TrimSpace(row.Name) == "" {
			score -= penaltyMissingField
			issues = append(issues, Issue{
				Code:     IssueMissingName,
				Severity: SeverityError,
				Message:  fmt.Sprintf("row %d has no player name", i+1),
			})
		}
		if row.Placement == 0 {
			score -= penaltyMissingField
			issues = append(issues, Issue{
				Code:     IssueMissingPlacement,
				Severity: SeverityError,
				Message:  fmt.Sprintf("row %d has no placement", i+1),
			})
			continue
		}
		if row.Placement < 1 || row.Placement > n {
			score -= penaltyOutOfRange
			issues = append(issues, Issue{
				Code:     IssuePlacementOutOfRange,
				Severity: SeverityError,
				Message:  fmt.Sprintf("placement %d outside 1..%d", row.Placement, n),
			})
			continue
		}
		if seenPlacement[row.Placement] {
			score -= penaltyDuplicatePlacement
			issues = append(issues, Issue{
				Code:     IssueDuplicatePlacement,
				Severity: SeverityError,
				Message:  fmt.Sprintf("placement %d appears more than once", row.Placement),
			})
		}
		seenPlacement[row.Placement] = true

		key := strings.ToLower(strings.TrimSpace(row.Name))
		if key != "" {
			if seenName[key] {
				score -= penaltyDuplicatePlayer
				issues = append(issues, Issue{
					Code:     IssueDuplicatePlayer,
					Severity: SeverityError,
					Message:  fmt.Sprintf("player %q appears more than once", row.Name),
				})
			}
			seenName[key] = true
		}
	}

	if opts.Strict {
		var missing []int
		for p := 1; p <= n; p++ {
			if !seenPlacement[p] {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			score -= penaltyMissingPlacements
			issues = append(issues, Issue{
				Code:     IssueMissingPlacements,
				Severity: SeverityError,
				Message:  fmt.Sprintf("placements missing: %v", missing),
			})
		}
	}

	return finish(score, issues)
}
