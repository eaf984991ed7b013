package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bracketworks/standings-cli/internal/model"
)

const (
	penaltyLobbyCount       = 0.10
	penaltyPlayerTwoLobbies = 0.25
	penaltyTotalCount       = 0.15
	penaltyCoverage         = 0.10
)

// RoundOptions configures cross-lobby validation for one round.
type RoundOptions struct {
	ExpectedLobbies int
	PlayersPerLobby int
	// Strict additionally requires each placement 1..N exactly once per lobby.
	Strict bool
}

// Round checks consistency across all lobbies collected for one round: lobby
// count (warning only, partial rounds are expected mid-event), no player in
// two lobbies, total player count, and per-lobby placement coverage.
func Round(lobbies map[int][]model.ExtractedRow, opts RoundOptions) Result {
	perLobby := opts.PlayersPerLobby
	if perLobby <= 0 {
		perLobby = 8
	}

	score := 1.0
	var issues []Issue

	if opts.ExpectedLobbies > 0 && len(lobbies) != opts.ExpectedLobbies {
		score -= penaltyLobbyCount
		issues = append(issues, Issue{
			Code:     IssueLobbyCountMismatch,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("round has %d lobbies, expected %d", len(lobbies), opts.ExpectedLobbies),
		})
	}

	// Deterministic lobby order for stable issue messages.
	nums := make([]int, 0, len(lobbies))
	for num := range lobbies {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	total := 0
	firstLobby := make(map[string]int)
	flagged := make(map[string]bool)
	for _, num := range nums {
		total += len(lobbies[num])
		for _, row := range lobbies[num] {
			key := strings.ToLower(strings.TrimSpace(row.Name))
			if key == "" {
				continue
			}
			prev, seen := firstLobby[key]
			if seen && prev != num && !flagged[key] {
				flagged[key] = true
				score -= penaltyPlayerTwoLobbies
				issues = append(issues, Issue{
					Code:     IssuePlayerInMultipleLobbies,
					Severity: SeverityError,
					Message:  fmt.Sprintf("player %q appears in lobby %d and lobby %d", row.Name, prev, num),
				})
			}
			if !seen {
				firstLobby[key] = num
			}
		}
	}

	if opts.ExpectedLobbies > 0 {
		expected := opts.ExpectedLobbies * perLobby
		if total != expected {
			score -= penaltyTotalCount
			issues = append(issues, Issue{
				Code:     IssueTotalPlayerCount,
				Severity: SeverityError,
				Message:  fmt.Sprintf("round has %d players, expected %d", total, expected),
			})
		}
	}

	if opts.Strict {
		for _, num := range nums {
			counts := make(map[int]int)
			for _, row := range lobbies[num] {
				counts[row.Placement]++
			}
			complete := true
			for p := 1; p <= perLobby; p++ {
				if counts[p] != 1 {
					complete = false
					break
				}
			}
			if !complete {
				score -= penaltyCoverage
				issues = append(issues, Issue{
					Code:     IssuePlacementCoverage,
					Severity: SeverityError,
					Message:  fmt.Sprintf("lobby %d does not cover placements 1..%d exactly once", num, perLobby),
				})
			}
		}
	}

	return finish(score, issues)
}
