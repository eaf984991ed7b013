package validate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketworks/standings-cli/internal/model"
)

func fullLobby() []model.ExtractedRow {
	rows := make([]model.ExtractedRow, 0, 8)
	for i := 1; i <= 8; i++ {
		rows = append(rows, model.ExtractedRow{Name: fmt.Sprintf("Player%d", i), Placement: i})
	}
	return rows
}

func hasIssue(t *testing.T, issues []Issue, code string) Issue {
	t.Helper()
	for _, is := range issues {
		if is.Code == code {
			return is
		}
	}
	t.Fatalf("issue %q not found in %v", code, issues)
	return Issue{}
}

func TestLobby_PerfectLobbyScoresOne(t *testing.T) {
	r := Lobby(fullLobby(), LobbyOptions{ExpectedPlayers: 8, Strict: true})
	assert.True(t, r.Valid)
	assert.Equal(t, 1.0, r.Score)
	assert.Empty(t, r.Issues)
}

func TestLobby_DuplicatePlacement(t *testing.T) {
	rows := fullLobby()
	rows[7].Placement = 3 // two rows report placement 3, nobody reports 8

	r := Lobby(rows, LobbyOptions{ExpectedPlayers: 8})
	hasIssue(t, r.Issues, IssueDuplicatePlacement)
	assert.InDelta(t, 0.8, r.Score, 1e-9)
	assert.True(t, r.Valid)
}

func TestLobby_DuplicatePlacementStrictAlsoReportsMissing(t *testing.T) {
	rows := fullLobby()
	rows[7].Placement = 3

	r := Lobby(rows, LobbyOptions{ExpectedPlayers: 8, Strict: true})
	hasIssue(t, r.Issues, IssueDuplicatePlacement)
	is := hasIssue(t, r.Issues, IssueMissingPlacements)
	assert.Contains(t, is.Message, "8")
	assert.InDelta(t, 0.65, r.Score, 1e-9)
	assert.False(t, r.Valid)
}

func TestLobby_WrongPlayerCount(t *testing.T) {
	r := Lobby(fullLobby()[:6], LobbyOptions{ExpectedPlayers: 8})
	hasIssue(t, r.Issues, IssueWrongPlayerCount)
	assert.InDelta(t, 0.85, r.Score, 1e-9)
}

func TestLobby_MissingNameAndPlacement(t *testing.T) {
	rows := fullLobby()
	rows[0].Name = "   "
	rows[1].Placement = 0

	r := Lobby(rows, LobbyOptions{ExpectedPlayers: 8})
	hasIssue(t, r.Issues, IssueMissingName)
	hasIssue(t, r.Issues, IssueMissingPlacement)
	assert.InDelta(t, 0.8, r.Score, 1e-9)
}

func TestLobby_PlacementOutOfRange(t *testing.T) {
	rows := fullLobby()
	rows[4].Placement = 9

	r := Lobby(rows, LobbyOptions{ExpectedPlayers: 8})
	hasIssue(t, r.Issues, IssuePlacementOutOfRange)
}

func TestLobby_DuplicateNameCaseInsensitive(t *testing.T) {
	rows := fullLobby()
	rows[5].Name = "PLAYER1"

	r := Lobby(rows, LobbyOptions{ExpectedPlayers: 8})
	hasIssue(t, r.Issues, IssueDuplicatePlayer)
}

func TestLobby_ScoreClampedAtZero(t *testing.T) {
	// Every row broken: empty names and zero placements.
	rows := make([]model.ExtractedRow, 8)
	r := Lobby(rows, LobbyOptions{ExpectedPlayers: 8, Strict: true})
	require.False(t, r.Valid)
	assert.Equal(t, 0.0, r.Score)
}

func TestLobby_PenaltiesAccumulateWithoutShortCircuit(t *testing.T) {
	// Wrong count, a missing name, and a duplicate placement all at once.
	rows := fullLobby()[:7]
	rows[0].Name = ""
	rows[1].Placement = rows[2].Placement

	r := Lobby(rows, LobbyOptions{ExpectedPlayers: 8})
	hasIssue(t, r.Issues, IssueWrongPlayerCount)
	hasIssue(t, r.Issues, IssueMissingName)
	hasIssue(t, r.Issues, IssueDuplicatePlacement)
}
