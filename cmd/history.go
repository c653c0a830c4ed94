package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dealerops/pricesync/internal/ledger"
	"github.com/spf13/cobra"
)

// historyLimit is the number of runs shown.
var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := ledger.Open(appConfig.LedgerPath())
		if err != nil {
			return err
		}
		defer led.Close()

		runs, err := led.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tTYPE\tSTATUS\tLINES\tCREATED\tDELETED\tSKIPPED\tERRORS\tFILES")
		for _, r := range runs {
			status := "ok"
			if !r.Success {
				status = "FAILED"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.LoadType, status, r.Processed, r.Created, r.Deleted, r.Skipped, r.Errors, r.FileName)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}
