package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bracketworks/standings-cli/internal/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Inspect the tournament roster",
}

var rosterCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Validate the roster file and report name collisions",
	Long:  "Loads the roster and reports names that normalize to the same matching key across different players. Collisions resolve by priority at match time, so they deserve a look before the event starts.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Roster.Path
		if len(args) == 1 {
			path = args[0]
		}

		f, err := roster.Load(path)
		if err != nil {
			return err
		}
		fmt.Printf("roster ok: %d players\n", len(f.Players))

		collisions := f.Collisions()
		if len(collisions) == 0 {
			return nil
		}

		fmt.Fprintf(os.Stderr, "%d colliding key(s):\n", len(collisions))
		for _, c := range collisions {
			fmt.Fprintf(os.Stderr, "  %q claimed by %s (names: %s)\n",
				c.Key,
				strings.Join(c.Players, ", "),
				strings.Join(c.Names, ", "),
			)
		}
		return nil
	},
}

func init() {
	rosterCmd.AddCommand(rosterCheckCmd)
	rootCmd.AddCommand(rosterCmd)
}
