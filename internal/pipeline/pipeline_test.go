package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketworks/standings-cli/internal/classify"
	"github.com/bracketworks/standings-cli/internal/config"
	"github.com/bracketworks/standings-cli/internal/fetcher"
	"github.com/bracketworks/standings-cli/internal/match"
	"github.com/bracketworks/standings-cli/internal/model"
	"github.com/bracketworks/standings-cli/internal/store"
	"github.com/bracketworks/standings-cli/internal/validate"
	"github.com/bracketworks/standings-cli/pkg/vision"
)

var _ store.Store = (*memStore)(nil)

var lobbyOne = []string{"Shadow", "BlazeKing", "Frostbite", "NightOwl", "Crimson", "Vortex", "Zephyr", "Titan"}

var lobbyTwo = []string{"Falcon", "Ember", "Quartz", "Onyx", "Raptor", "Comet", "Drift", "Hollow"}

func testRoster() []model.RosterEntry {
	var entries []model.RosterEntry
	for _, name := range append(append([]string{}, lobbyOne...), lobbyTwo...) {
		entries = append(entries, model.RosterEntry{
			PlayerID:      "p-" + name,
			CanonicalName: name,
		})
	}
	return entries
}

func testConfig() *config.Config {
	return &config.Config{
		Classify: config.ClassifyConfig{Threshold: 0.70, Skip: true},
		Match:    config.MatchConfig{FuzzyThreshold: 0.95},
		Validation: config.ValidateConfig{
			Strict:                true,
			PlayersPerLobby:       8,
			ExpectedLobbies:       2,
			MinAvgMatchConfidence: 0.90,
		},
		Pipeline: config.PipelineConfig{
			MaxConcurrentImages:   4,
			AutoValidateThreshold: 0.99,
			Weights:               config.FusionWeights{Classification: 0.30, Extraction: 0.50, Match: 0.20},
		},
		Scoring: config.ScoringConfig{Points: []int{8, 7, 6, 5, 4, 3, 2, 1}},
	}
}

func rowsFor(names ...string) []model.ExtractedRow {
	rows := make([]model.ExtractedRow, 0, len(names))
	for i, name := range names {
		rows = append(rows, model.ExtractedRow{Name: name, Placement: i + 1})
	}
	return rows
}

// imageServer serves one payload per path and 404s everything else.
func imageServer(t *testing.T, payloads map[string]string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestPipeline(cfg *config.Config, st store.Store, extractor vision.Client) *Pipeline {
	return New(
		cfg,
		st,
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}),
		classify.New(cfg.Classify),
		match.New(testRoster(), cfg.Match.FuzzyThreshold),
		extractor,
	)
}

func TestProcessBatch_EmptyImageList(t *testing.T) {
	p := newTestPipeline(testConfig(), newMemStore(), &mockExtractor{})

	_, err := p.ProcessBatch(context.Background(), nil, "t-1", "g-1", "Round 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no images")
}

func TestProcessBatch_MixedOutcomes(t *testing.T) {
	ts := imageServer(t, map[string]string{
		"/a.png": "img-a",
		"/b.png": "img-b",
	})

	st := newMemStore()
	extractor := &mockExtractor{results: map[string]*vision.Extraction{
		"img-a": {Success: true, Confidence: 1.0, Players: rowsFor(lobbyOne...)},
		"img-b": {Success: true, Confidence: 1.0, Players: rowsFor(lobbyTwo...)},
	}}
	p := newTestPipeline(testConfig(), st, extractor)

	images := []model.ImageInput{
		{URL: ts.URL + "/a.png", SourceMessageID: "msg-a", SourceChannelID: "chan-1", AuthorID: "u-1", LobbyNumber: 1},
		{URL: ts.URL + "/b.png", SourceMessageID: "msg-b", SourceChannelID: "chan-1", AuthorID: "u-2", LobbyNumber: 2},
		{URL: ts.URL + "/gone.png", SourceMessageID: "msg-c", SourceChannelID: "chan-1", AuthorID: "u-3", LobbyNumber: 3},
	}

	result, err := p.ProcessBatch(context.Background(), images, "t-1", "g-1", "Round 1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Batch.Completed)
	assert.Equal(t, 2, result.Batch.Validated)
	assert.Equal(t, 1, result.Batch.Errored)
	assert.InDelta(t, 1.0, result.Batch.AverageConfidence, 1e-9)
	assert.Equal(t, model.BatchStatusCompleted, result.Batch.Status)

	byMsg := make(map[string]ImageOutcome)
	for _, o := range result.Outcomes {
		byMsg[o.Input.SourceMessageID] = o
	}
	assert.True(t, byMsg["msg-a"].Validated)
	assert.Equal(t, model.FailDownload, byMsg["msg-c"].FailReason)

	// Placements landed with points from the scoring table.
	placements, err := st.ListPlacements(context.Background(), byMsg["msg-a"].SubmissionID)
	require.NoError(t, err)
	require.Len(t, placements, 8)
	assert.Equal(t, 8, placements[0].Points)
	assert.Equal(t, 1, placements[7].Points)
	assert.True(t, placements[0].Player.Resolved())
	assert.True(t, placements[0].Validated)

	// Two clean lobbies, no cross-lobby findings.
	assert.Empty(t, result.CrossLobbyIssues)
}

func TestProcessBatch_ExtractorFailureIsTerminalForImageOnly(t *testing.T) {
	ts := imageServer(t, map[string]string{
		"/a.png": "img-a",
		"/x.png": "img-unreadable",
	})

	st := newMemStore()
	extractor := &mockExtractor{results: map[string]*vision.Extraction{
		"img-a": {Success: true, Confidence: 1.0, Players: rowsFor(lobbyOne...)},
	}}
	p := newTestPipeline(testConfig(), st, extractor)

	images := []model.ImageInput{
		{URL: ts.URL + "/a.png", SourceMessageID: "msg-a", SourceChannelID: "chan-1", LobbyNumber: 1},
		{URL: ts.URL + "/x.png", SourceMessageID: "msg-x", SourceChannelID: "chan-1", LobbyNumber: 2},
	}

	result, err := p.ProcessBatch(context.Background(), images, "t-1", "g-1", "Round 1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Batch.Completed)
	assert.Equal(t, 1, result.Batch.Errored)

	byMsg := make(map[string]ImageOutcome)
	for _, o := range result.Outcomes {
		byMsg[o.Input.SourceMessageID] = o
	}
	assert.Equal(t, model.FailOCR, byMsg["msg-x"].FailReason)
	require.Error(t, byMsg["msg-x"].Err)
	assert.Contains(t, byMsg["msg-x"].Err.Error(), "no standings table")
}

func TestProcessBatch_ConjunctiveGate_StructuralFailureBlocksAutoValidate(t *testing.T) {
	ts := imageServer(t, map[string]string{"/a.png": "img-a"})

	// Duplicate placement: structural validation fails even though every
	// confidence is perfect, so the gate must hold the submission pending.
	rows := rowsFor(lobbyOne...)
	rows[3].Placement = 3

	st := newMemStore()
	extractor := &mockExtractor{results: map[string]*vision.Extraction{
		"img-a": {Success: true, Confidence: 1.0, Players: rows},
	}}
	p := newTestPipeline(testConfig(), st, extractor)

	images := []model.ImageInput{
		{URL: ts.URL + "/a.png", SourceMessageID: "msg-a", SourceChannelID: "chan-1", LobbyNumber: 1},
	}
	result, err := p.ProcessBatch(context.Background(), images, "t-1", "g-1", "Round 1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Batch.Completed)
	assert.Equal(t, 0, result.Batch.Validated)

	sub, err := st.GetSubmission(context.Background(), result.Outcomes[0].SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusPending, sub.Status)
	assert.Empty(t, sub.ValidationMethod)
	assert.Less(t, sub.StructuralScore, 0.70)

	// Placements still land for review, unvalidated.
	placements, err := st.ListPlacements(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, placements, 8)
	assert.False(t, placements[0].Validated)
}

func TestProcessBatch_BelowThresholdStaysPending(t *testing.T) {
	ts := imageServer(t, map[string]string{"/a.png": "img-a"})

	st := newMemStore()
	extractor := &mockExtractor{results: map[string]*vision.Extraction{
		"img-a": {Success: true, Confidence: 0.90, Players: rowsFor(lobbyOne...)},
	}}
	p := newTestPipeline(testConfig(), st, extractor)

	images := []model.ImageInput{
		{URL: ts.URL + "/a.png", SourceMessageID: "msg-a", SourceChannelID: "chan-1", LobbyNumber: 1},
	}
	result, err := p.ProcessBatch(context.Background(), images, "t-1", "g-1", "Round 1")
	require.NoError(t, err)

	// overall = 0.30*1.0 + 0.50*0.90 + 0.20*1.0 = 0.95, under the 0.99 bar.
	sub, err := st.GetSubmission(context.Background(), result.Outcomes[0].SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusPending, sub.Status)
	assert.InDelta(t, 0.95, sub.OverallConfidence, 1e-9)
}

func TestProcessBatch_CrossLobbyFindingsAreAdvisory(t *testing.T) {
	ts := imageServer(t, map[string]string{
		"/a.png": "img-a",
		"/b.png": "img-b",
	})

	// Lobby 2 contains Shadow, who already placed in lobby 1.
	lobbyTwoWithDupe := append([]string{"Shadow"}, lobbyTwo[:7]...)

	st := newMemStore()
	extractor := &mockExtractor{results: map[string]*vision.Extraction{
		"img-a": {Success: true, Confidence: 1.0, Players: rowsFor(lobbyOne...)},
		"img-b": {Success: true, Confidence: 1.0, Players: rowsFor(lobbyTwoWithDupe...)},
	}}
	p := newTestPipeline(testConfig(), st, extractor)

	images := []model.ImageInput{
		{URL: ts.URL + "/a.png", SourceMessageID: "msg-a", SourceChannelID: "chan-1", LobbyNumber: 1},
		{URL: ts.URL + "/b.png", SourceMessageID: "msg-b", SourceChannelID: "chan-1", LobbyNumber: 2},
	}
	result, err := p.ProcessBatch(context.Background(), images, "t-1", "g-1", "Round 1")
	require.NoError(t, err)

	codes := make([]string, 0, len(result.CrossLobbyIssues))
	for _, issue := range result.CrossLobbyIssues {
		codes = append(codes, issue.Code)
	}
	assert.Contains(t, codes, validate.IssuePlayerInMultipleLobbies)

	// Findings ride on the batch result; per-image validation stands.
	assert.Equal(t, 2, result.Batch.Validated)
	for _, o := range result.Outcomes {
		assert.True(t, o.Validated)
	}
}

func TestProcessBatch_ReprocessingIsIdempotent(t *testing.T) {
	ts := imageServer(t, map[string]string{"/a.png": "img-a"})

	st := newMemStore()
	extractor := &mockExtractor{results: map[string]*vision.Extraction{
		"img-a": {Success: true, Confidence: 1.0, Players: rowsFor(lobbyOne...)},
	}}
	p := newTestPipeline(testConfig(), st, extractor)

	images := []model.ImageInput{
		{URL: ts.URL + "/a.png", SourceMessageID: "msg-a", SourceChannelID: "chan-1", LobbyNumber: 1},
	}

	first, err := p.ProcessBatch(context.Background(), images, "t-1", "g-1", "Round 1")
	require.NoError(t, err)
	second, err := p.ProcessBatch(context.Background(), images, "t-1", "g-1", "Round 1")
	require.NoError(t, err)

	// Same source message: one submission row, updated in place.
	assert.Equal(t, first.Outcomes[0].SubmissionID, second.Outcomes[0].SubmissionID)
	subs, err := st.ListSubmissions(context.Background(), store.SubmissionFilter{})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestProcessBatch_NotStandingsRejectedByClassifier(t *testing.T) {
	ts := imageServer(t, map[string]string{"/junk.png": "not an image"})

	cfg := testConfig()
	cfg.Classify.Skip = false // force real classification; payload won't decode

	st := newMemStore()
	extractor := &mockExtractor{}
	p := newTestPipeline(cfg, st, extractor)

	images := []model.ImageInput{
		{URL: ts.URL + "/junk.png", SourceMessageID: "msg-j", SourceChannelID: "chan-1", LobbyNumber: 1},
	}
	result, err := p.ProcessBatch(context.Background(), images, "t-1", "g-1", "Round 1")
	require.NoError(t, err)

	assert.Equal(t, model.FailNotStandings, result.Outcomes[0].FailReason)
	assert.Equal(t, 1, result.Batch.Errored)
	assert.Zero(t, extractor.calls)
}
