package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cellfate/internal"
	"cellfate/internal/config"
)

// app carries the configuration shared by every command.
type app struct {
	cfg *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "cellfate",
		Short:         "Lineage probability reduction and gene expression trends along pseudotime",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load environment variables from .env file
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			internal.DefaultLogger.SetLevel(internal.ParseLogLevel(cfg.Runtime.LogLevel))
			a.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file with CELLFATE_* settings")

	rootCmd.AddCommand(
		newReduceCmd(a),
		newMixCmd(a),
		newFitCmd(a),
		newGenerateCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}
