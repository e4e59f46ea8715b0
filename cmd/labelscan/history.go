package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/labelscan/portal/internal/models"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.history.GetRecent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No submissions yet")
				return nil
			}
			return printHistory(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func printHistory(w io.Writer, entries []*models.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tBRAND\tCLASS\tSTATE\tELAPSED\tJOB")
	for _, e := range entries {
		state := string(e.State)
		if e.State == models.StateCompleted && !e.Success {
			state += " (unsuccessful)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1fs\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			e.BrandName,
			e.ProductClass,
			state,
			e.ElapsedSeconds,
			e.JobID,
		)
	}
	return tw.Flush()
}
