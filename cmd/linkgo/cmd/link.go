package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/linkgo/codec"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Score pairs and resolve entities",
	Long: `Link runs the full pipeline with previously trained weights and prints
the resulting clusters as JSON, one cluster per line.

With --spill the scored pairs are also written to a pair file in the
artifact store, so later runs can re-cluster at a different threshold
without re-scoring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.linker.LoadWeights(ctx, viper.GetString("weights")); err != nil {
			return fmt.Errorf("load weights (run train first): %w", err)
		}

		threshold, _ := cmd.Flags().GetFloat64("threshold")
		if !cmd.Flags().Changed("threshold") && s.cfg.Threshold != 0 {
			threshold = s.cfg.Threshold
		}

		if spill, _ := cmd.Flags().GetString("spill"); spill != "" {
			n, err := s.linker.Spill(ctx, spill)
			if err != nil {
				return err
			}
			s.logger.Info("scored pairs spilled", "blob", spill, "pairs", n)
		}

		result, err := s.linker.Resolve(ctx, threshold)
		if err != nil {
			return err
		}

		type clusterOut struct {
			Cluster uint32   `json:"cluster"`
			Members []string `json:"members"`
		}
		enc := codec.Default
		for c := 0; c < result.NumClusters(); c++ {
			members := result.Members(uint32(c))
			out := clusterOut{Cluster: uint32(c), Members: make([]string, 0, len(members))}
			for _, id := range members {
				out.Members = append(out.Members, id.String())
			}
			line, err := enc.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(line))
		}
		return nil
	},
}

func init() {
	linkCmd.Flags().Float64("threshold", 2.0, "match threshold in log10 odds")
	linkCmd.Flags().String("spill", "", "also write scored pairs to this blob")
	rootCmd.AddCommand(linkCmd)
}
