package main

import (
	"github.com/spf13/cobra"

	"cellfate/adapters/excel"
	"cellfate/internal/testkit"
)

func newGenerateCmd(a *app) *cobra.Command {
	config := testkit.DefaultTrajectoryConfig()

	cmd := &cobra.Command{
		Use:   "generate [out-file]",
		Short: "Write a synthetic two-lineage trajectory",
		Long: `Write cells ordered along a pseudotime in [0, 1] with genes following known
trends, terminal state labels and memberships in the lineages Alpha and Beta.
The output can be read back with:

  cellfate fit out.csv rising --obs final_states,latent_time --lineage-columns Alpha,Beta --lineage Alpha`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				config.Seed = a.cfg.Runtime.Seed
			}
			d, err := testkit.Trajectory(config)
			if err != nil {
				return err
			}
			t, err := excel.DatasetTable(d)
			if err != nil {
				return err
			}
			return excel.WriteTable(args[0], t)
		},
	}

	cmd.Flags().IntVar(&config.Cells, "cells", config.Cells, "Number of cells")
	cmd.Flags().Float64Var(&config.ConstantLevel, "constant-level", config.ConstantLevel, "Level of the constant gene")
	cmd.Flags().Float64Var(&config.Noise, "noise", config.Noise, "Standard deviation of the gaussian noise")
	cmd.Flags().Int64Var(&config.Seed, "seed", config.Seed, "Random seed for deterministic noise")
	return cmd
}
