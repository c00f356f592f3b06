// Package commands implements the benchctl CLI commands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benchlink/benchlink-go/pkg/channel"
	"github.com/benchlink/benchlink-go/pkg/log"
	"github.com/benchlink/benchlink-go/pkg/metrics"
	"github.com/benchlink/benchlink-go/pkg/profile"
	"github.com/benchlink/benchlink-go/pkg/resource"
	"github.com/benchlink/benchlink-go/pkg/session"
)

const (
	LogLevelOptionName = "log-level"
	ProfileOptionName  = "profile"
	TraceOptionName    = "trace"
	EmulateOptionName  = "emulate"
)

// HelpLevels lists the accepted --log-level values.
const HelpLevels = "One of debug, info, warn, error."

// Options are the persistent flags shared by all commands.
type Options struct {
	LogLevel string
	Profile  string
	Trace    string
	Emulate  bool

	logger *slog.Logger
}

// Logger returns the logger configured by --log-level.
func (o *Options) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

// NewRootCommand creates the benchctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:           "benchctl",
		Short:         "Tool to work with SCPI instrument sessions",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.LogLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewOpenCommand(opts))
	cmd.AddCommand(NewConsoleCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTraceCommand())
	cmd.AddCommand(NewProfileCommand())

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.LogLevel, LogLevelOptionName, "warn", fmt.Sprintf("Log level. %s", HelpLevels))
	flags.StringVar(&opts.Profile, ProfileOptionName, profile.Default, "Instrument profile: built-in name or YAML file")
	flags.StringVar(&opts.Trace, TraceOptionName, "", "Write a CBOR protocol trace to this file")
	flags.BoolVar(&opts.Emulate, EmulateOptionName, false, "Talk to an in-memory emulated instrument")
	return cmd
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %s", level, HelpLevels)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// NewManager builds a session manager from the persistent flags. The
// returned cleanup closes the trace file.
func NewManager(opts *Options, met *metrics.Metrics) (*session.Manager, func(), error) {
	p, err := profile.Load(opts.Profile)
	if err != nil {
		return nil, nil, err
	}

	logger := opts.Logger()
	config := session.Config{
		Profile: p,
		Metrics: met,
		Logger:  logger,
	}

	if opts.Emulate {
		config.Opener = channel.NewEmulator(channel.DefaultEmulatorConfig())
		config.Probe = resource.ProbeFunc(func(context.Context, resource.Name) error { return nil })
	}

	cleanup := func() {}
	if opts.Trace != "" {
		fl, err := log.NewFileLogger(opts.Trace)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		config.Trace = fl
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			config.Trace = log.NewMultiLogger(fl, log.NewSlogAdapter(logger))
		}
		cleanup = func() {
			if err := fl.Close(); err != nil {
				logger.Warn("trace file incomplete", "path", opts.Trace, "error", err)
			}
		}
	}

	m, err := session.New(config)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return m, cleanup, nil
}
