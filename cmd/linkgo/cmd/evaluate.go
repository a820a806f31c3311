package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/linkgo/codec"
	"github.com/hupe1980/linkgo/metric"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a clustering against a ground-truth column",
	Long: `Evaluate resolves entities and compares the clustering against a truth
column holding the real entity of each record. Records with a null truth
value are excluded from the comparison.

The report is printed as JSON: pair confusion counts, Rand and adjusted
Rand index, Fowlkes-Mallows, mutual information scores and the V-measure
family.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		truthColumn, _ := cmd.Flags().GetString("truth-column")
		if truthColumn == "" {
			return fmt.Errorf("a truth column is required (--truth-column)")
		}

		if err := s.linker.LoadWeights(ctx, viper.GetString("weights")); err != nil {
			return fmt.Errorf("load weights (run train first): %w", err)
		}

		threshold, _ := cmd.Flags().GetFloat64("threshold")
		result, err := s.linker.Resolve(ctx, threshold)
		if err != nil {
			return err
		}

		truth, err := s.truthLabels(ctx, truthColumn)
		if err != nil {
			return err
		}

		report := metric.Evaluate(
			metric.Labeling[uint32](result.Membership()),
			metric.Labeling[string](truth),
		)
		out, err := codec.Default.Marshal(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}

func init() {
	evaluateCmd.Flags().String("truth-column", "", "column holding the true entity of each record")
	evaluateCmd.Flags().Float64("threshold", 2.0, "match threshold in log10 odds")
	rootCmd.AddCommand(evaluateCmd)
}
