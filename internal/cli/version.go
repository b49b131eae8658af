package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the build version, overridden at link time with
// -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jobqueue version %s\n", Version)
		},
	}
}
