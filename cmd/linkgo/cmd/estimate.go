package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Predict candidate pair volume per blocking rule",
	Long: `Estimate prints the predicted number of candidate pairs each blocking
rule would produce, without reading any pair data. Use it to catch
explosive rules before committing to a run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		rules, total, err := s.linker.EstimatePairs(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RULE\tSHAPE\tEST. PAIRS")
		for _, r := range rules {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Rule, r.Shape, formatEstimate(r.Estimate.Pairs, r.Estimate.Indeterminate))
		}
		fmt.Fprintf(w, "total\t\t%s\n", formatEstimate(total.Pairs, total.Indeterminate))
		return w.Flush()
	},
}

func formatEstimate(pairs uint64, indeterminate bool) string {
	if indeterminate {
		return "overflow"
	}
	return fmt.Sprintf("%d", pairs)
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}
