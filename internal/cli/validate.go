package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikaelsundell/jobqueue/internal/preset"
)

func validateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <preset.json>",
		Short: "Parse and validate a preset document without submitting any jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := preset.Read(args[0])
			if err != nil {
				return err
			}
			if !p.Valid() {
				return p.Err()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "preset %q: %d task(s)\n", p.Name(), len(p.Tasks()))
			for _, t := range p.Tasks() {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s (%s)\n", t.Name, t.ID)
			}
			return nil
		},
	}
	return cmd
}
