package main

import (
	"github.com/spf13/cobra"
)

// RootCmd assembles the assetmig command tree
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assetmig",
		Short: "Migrate authored asset properties across a class rewrite",
		Long: "assetmig snapshots authored property values of content assets into JSON cache files,\n" +
			"reparents assets onto rewritten classes and writes the cached values back.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: ./assetmig.yaml when present)")
	cmd.PersistentFlags().String("log-level", "", "Override the configured log level (trace | debug | info | warn | error)")

	cmd.AddCommand(ExtractCmd())
	cmd.AddCommand(ApplyCmd())
	cmd.AddCommand(VerifyCmd())
	cmd.AddCommand(ReparentCmd())
	cmd.AddCommand(JobsCmd())
	cmd.AddCommand(ImportCmd())
	cmd.AddCommand(ExportCmd())
	cmd.AddCommand(FindCmd())
	cmd.AddCommand(FailuresCmd())
	cmd.AddCommand(WatchCmd())

	return cmd
}
