package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benchlink/benchlink-go/cmd/benchctl/interactive"
)

// NewConsoleCommand creates the console command.
func NewConsoleCommand(opts *Options) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "console <resource>",
		Short: "Open a session and start an interactive console",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := NewManager(opts, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			if err := m.Open(ctx, args[0], model); err != nil {
				return err
			}
			defer func() { _ = m.Close(context.WithoutCancel(ctx)) }()

			c, err := interactive.New(m)
			if err != nil {
				return err
			}
			interactive.WriteSummary(c.Stdout(), m)
			c.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Resource model recorded with the session")
	return cmd
}
