package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/pentest-crew/internal/observability"
)

// newRunsCmd creates the `runs` command, which lists archived phase runs.
func newRunsCmd(app *application) *cobra.Command {
	var limit int
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Lists the most recent archived phase runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := app.cfg.Database().URL
			if url == "" {
				return fmt.Errorf("database URL is not configured (CREW_DATABASE_URL)")
			}
			components := &crewComponents{}
			defer components.Shutdown()
			if err := components.openArchive(cmd.Context(), url, observability.GetLogger()); err != nil {
				return err
			}

			runs, err := components.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tPHASE\tREASON\tSTAGE\tROUNDS\tTARGET\tSTARTED\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					r.RunID, r.Phase, r.Reason, r.Stage, r.Rounds, r.Target,
					r.StartedAt.Local().Format(time.DateTime), r.Duration.Round(time.Second))
			}
			return tw.Flush()
		},
	}
	runsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list.")
	return runsCmd
}
