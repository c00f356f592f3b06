package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <resource>",
		Short: "Check that a resource name parses and the instrument is reachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := NewManager(opts, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := m.Validate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}
