package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTraceCommand creates the trace command and its subcommands.
func NewTraceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect CBOR protocol trace files",
	}
	cmd.AddCommand(newTraceViewCommand())
	cmd.AddCommand(newTraceStatsCommand())
	cmd.AddCommand(newTraceFilterCommand())
	cmd.AddCommand(newTraceExportCommand())
	return cmd
}

func addFilterFlags(cmd *cobra.Command, opts *FilterOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.SessionID, "session", "", "Only events of this session ID")
	f.StringVar(&opts.Resource, "resource", "", "Only events of this resource")
	f.StringVar(&opts.TimeStart, "time-start", "", "Only events at or after this time (RFC3339)")
	f.StringVar(&opts.TimeEnd, "time-end", "", "Only events before this time (RFC3339)")
	f.StringVar(&opts.Layer, "layer", "", "Only events of this layer (channel, register, session)")
	f.StringVar(&opts.Direction, "direction", "", "Only events of this direction (in, out)")
	f.StringVar(&opts.Category, "category", "", "Only events of this category (message, status, state, register, error, srq)")
}

func newTraceViewCommand() *cobra.Command {
	var opts FilterOptions
	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Print a trace file in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunView(args[0], opts, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	return cmd
}

func newTraceStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Show statistics about a trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunStats(args[0], cmd.OutOrStdout())
		},
	}
}

func newTraceFilterCommand() *cobra.Command {
	var (
		opts   FilterOptions
		output string
	)
	cmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Copy matching events into a new trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := RunFilter(args[0], output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, output)
			return nil
		},
	}
	addFilterFlags(cmd, &opts)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output trace file")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newTraceExportCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export a trace file as JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunExport(args[0], format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format (jsonl, csv)")
	return cmd
}
