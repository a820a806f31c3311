package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/linkgo/fs"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit model weights by EM and store them",
	Long: `Train runs unsupervised expectation-maximization over the blocked pairs
and writes the fitted weights to the artifact store. The weights blob name
decides the format: .json, .yaml, optionally with .gz or .zst.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		maxIter, _ := cmd.Flags().GetInt("max-iterations")
		epsilon, _ := cmd.Flags().GetFloat64("epsilon")
		seed, _ := cmd.Flags().GetInt64("seed")
		opts := fs.TrainOptions{
			MaxIterations: maxIter,
			Epsilon:       epsilon,
			Seed:          seed,
		}
		result, err := s.linker.Train(ctx, opts)
		if err != nil {
			return err
		}
		if !result.Converged {
			s.logger.Warn("training did not converge",
				"iterations", result.Iterations, "delta", result.Delta)
		}

		name := viper.GetString("weights")
		if err := s.linker.SaveWeights(ctx, name); err != nil {
			return err
		}
		fmt.Printf("weights written to %s (%d iterations, converged=%v)\n",
			name, result.Iterations, result.Converged)
		return nil
	},
}

func init() {
	trainCmd.Flags().Int("max-iterations", 0, "EM iteration cap (default 25)")
	trainCmd.Flags().Float64("epsilon", 0, "convergence tolerance (default 1e-4)")
	trainCmd.Flags().Int64("seed", 0, "random seed for reproducible runs")
	rootCmd.AddCommand(trainCmd)
}
