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
	"github.com/bracketworks/standings-cli/internal/store"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect and review screenshot submissions",
}

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submissions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		batchID, _ := cmd.Flags().GetString("batch")
		limit, _ := cmd.Flags().GetInt("limit")

		subs, err := st.ListSubmissions(ctx, store.SubmissionFilter{
			Status:  model.SubmissionStatus(status),
			BatchID: batchID,
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "submissions list")
		}

		if len(subs) == 0 {
			fmt.Fprintln(os.Stderr, "No submissions found.")
			return nil
		}

		formatSubmissionsList(os.Stdout, subs)
		return nil
	},
}

var submissionsShowCmd = &cobra.Command{
	Use:   "show <submission-id>",
	Short: "Show a submission with its placements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sub, err := st.GetSubmission(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "submissions show")
		}
		placements, err := st.ListPlacements(ctx, sub.ID)
		if err != nil {
			return eris.Wrap(err, "submissions show placements")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Submission *model.Submission       `json:"submission"`
			Placements []model.PlacementRecord `json:"placements"`
		}{sub, placements})
	},
}

var submissionsApproveCmd = &cobra.Command{
	Use:   "approve <submission-id>",
	Short: "Mark a pending submission as validated (manual review)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewSubmission(cmd, args[0], model.SubmissionStatusValidated)
	},
}

var submissionsRejectCmd = &cobra.Command{
	Use:   "reject <submission-id>",
	Short: "Mark a pending submission as rejected (manual review)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewSubmission(cmd, args[0], model.SubmissionStatusRejected)
	},
}

func reviewSubmission(cmd *cobra.Command, submissionID string, status model.SubmissionStatus) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	if err := st.SetSubmissionStatus(ctx, submissionID, status, model.ValidationMethodManual); err != nil {
		return eris.Wrap(err, "review submission")
	}
	fmt.Printf("submission %s -> %s (manual)\n", truncateID(submissionID), status)
	return nil
}

func init() {
	submissionsListCmd.Flags().String("status", "", "filter by status (pending, validated, rejected)")
	submissionsListCmd.Flags().String("batch", "", "filter by batch id")
	submissionsListCmd.Flags().Int("limit", 50, "max number of submissions to display")

	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsShowCmd)
	submissionsCmd.AddCommand(submissionsApproveCmd)
	submissionsCmd.AddCommand(submissionsRejectCmd)
	rootCmd.AddCommand(submissionsCmd)
}

// formatSubmissionsList writes a tabular list of submissions to w.
func formatSubmissionsList(out io.Writer, subs []model.Submission) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tROUND\tLOBBY\tOVERALL\tSTATUS\tMETHOD\tSOURCE")
	for _, s := range subs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.3f\t%s\t%s\t%s\n",
			truncateID(s.ID),
			s.RoundName,
			s.LobbyNumber,
			s.OverallConfidence,
			s.Status,
			s.ValidationMethod,
			s.SourceMessageID,
		)
	}
	_ = w.Flush()
}
