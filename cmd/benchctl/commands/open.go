package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchlink/benchlink-go/cmd/benchctl/interactive"
)

// NewOpenCommand creates the open command.
func NewOpenCommand(opts *Options) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "open <resource>",
		Short: "Open a session, print identity and register snapshot, then close",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := NewManager(opts, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if err := m.Open(ctx, args[0], model); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			interactive.WriteSummary(out, m)
			fmt.Fprintln(out)
			interactive.WriteRegisters(out, m.Registers())

			if err := m.Close(ctx); err != nil {
				return errors.Join(errors.New("close failed"), err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Resource model recorded with the session")
	return cmd
}
