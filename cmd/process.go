package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bracketworks/standings-cli/internal/model"
	"github.com/bracketworks/standings-cli/internal/pipeline"
)

// batchManifest is the JSON document handed to `process`: one entry per
// submitted screenshot.
type batchManifest struct {
	TournamentID string             `json:"tournament_id"`
	GuildID      string             `json:"guild_id"`
	RoundName    string             `json:"round_name"`
	Images       []model.ImageInput `json:"images"`
}

var processCmd = &cobra.Command{
	Use:   "process <manifest.json>",
	Short: "Process a batch of screenshot submissions",
	Long:  "Reads a batch manifest, runs every screenshot through the extraction pipeline, and prints the per-image outcomes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		manifest, err := loadManifest(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.ProcessBatch(ctx, manifest.Images, manifest.TournamentID, manifest.GuildID, manifest.RoundName)
		if err != nil {
			return eris.Wrap(err, "process batch")
		}

		formatBatchResult(os.Stdout, result)
		return nil
	},
}

func loadManifest(path string) (*batchManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read manifest %s", path)
	}
	var m batchManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "parse manifest %s", path)
	}
	if m.TournamentID == "" {
		return nil, eris.New("manifest: tournament_id is required")
	}
	if len(m.Images) == 0 {
		return nil, eris.New("manifest: no images")
	}
	for i, img := range m.Images {
		if img.URL == "" {
			return nil, eris.Errorf("manifest: image %d missing url", i)
		}
		if img.SourceMessageID == "" {
			return nil, eris.Errorf("manifest: image %d missing source_message_id", i)
		}
	}
	return &m, nil
}

// formatBatchResult writes a tabular summary of the batch to w.
func formatBatchResult(out io.Writer, result *pipeline.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tLOBBY\tOUTCOME\tCONFIDENCE\tSUBMISSION")
	for _, o := range result.Outcomes {
		outcome := "pending"
		switch {
		case o.FailReason != "":
			outcome = string(o.FailReason)
		case o.Validated:
			outcome = "validated"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%.3f\t%s\n",
			o.Input.SourceMessageID,
			o.Input.LobbyNumber,
			outcome,
			o.Confidence,
			truncateID(o.SubmissionID),
		)
	}
	_ = w.Flush()

	b := result.Batch
	fmt.Fprintf(out, "\nbatch %s: %d completed, %d validated, %d errored, avg confidence %.3f\n",
		truncateID(b.ID), b.Completed, b.Validated, b.Errored, b.AverageConfidence)

	for _, issue := range result.CrossLobbyIssues {
		fmt.Fprintf(out, "cross-lobby %s: %s (%s)\n", issue.Severity, issue.Message, issue.Code)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(processCmd)
}
