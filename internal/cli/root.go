package cli

import (
	"github.com/spf13/cobra"
)

// Root returns the jobqueue command tree: run, validate, version.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobqueue",
		Short: "A dependency-aware job queue driven by preset documents",

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to a config file (TOML or YAML)")

	root.AddCommand(runCommand())
	root.AddCommand(validateCommand())
	root.AddCommand(versionCommand())

	return root
}
