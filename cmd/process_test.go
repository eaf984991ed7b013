package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketworks/standings-cli/internal/model"
	"github.com/bracketworks/standings-cli/internal/pipeline"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `{
		"tournament_id": "t-1",
		"guild_id": "g-1",
		"round_name": "Round 2",
		"images": [
			{"url": "https://cdn.example.com/a.png", "source_message_id": "msg-1", "source_channel_id": "chan-1", "author_id": "u-1", "lobby_number": 1}
		]
	}`)

	m, err := loadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "t-1", m.TournamentID)
	assert.Equal(t, "Round 2", m.RoundName)
	require.Len(t, m.Images, 1)
	assert.Equal(t, 1, m.Images[0].LobbyNumber)
}

func TestLoadManifest_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing tournament", `{"images":[{"url":"u","source_message_id":"m"}]}`, "tournament_id"},
		{"no images", `{"tournament_id":"t-1","images":[]}`, "no images"},
		{"image without url", `{"tournament_id":"t-1","images":[{"source_message_id":"m"}]}`, "missing url"},
		{"image without source", `{"tournament_id":"t-1","images":[{"url":"u"}]}`, "missing source_message_id"},
		{"bad json", `{`, "parse manifest"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadManifest(writeManifest(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestFormatBatchResult(t *testing.T) {
	result := &pipeline.BatchResult{
		Batch: &model.Batch{
			ID:                "11112222-0000-0000-0000-000000000000",
			Completed:         1,
			Validated:         1,
			Errored:           1,
			AverageConfidence: 0.987,
		},
		Outcomes: []pipeline.ImageOutcome{
			{
				Input:        model.ImageInput{SourceMessageID: "msg-a", LobbyNumber: 1},
				SubmissionID: "33334444-0000-0000-0000-000000000000",
				Validated:    true,
				Confidence:   0.987,
			},
			{
				Input:      model.ImageInput{SourceMessageID: "msg-b", LobbyNumber: 2},
				FailReason: model.FailDownload,
			},
		},
	}

	var buf bytes.Buffer
	formatBatchResult(&buf, result)
	out := buf.String()

	assert.Contains(t, out, "msg-a")
	assert.Contains(t, out, "validated")
	assert.Contains(t, out, "download_failed")
	assert.Contains(t, out, "1 completed, 1 validated, 1 errored")
}
