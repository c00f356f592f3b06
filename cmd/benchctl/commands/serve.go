package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/benchlink/benchlink-go/cmd/benchctl/api"
	"github.com/benchlink/benchlink-go/pkg/metrics"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *Options) *cobra.Command {
	var (
		model     string
		listen    string
		accessLog bool
	)
	cmd := &cobra.Command{
		Use:   "serve <resource>",
		Short: "Open a session and serve it over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			m, cleanup, err := NewManager(opts, metrics.New(reg, nil))
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := m.Open(ctx, args[0], model); err != nil {
				return err
			}
			defer func() { _ = m.Close(context.WithoutCancel(ctx)) }()

			config := api.Config{
				Gatherer: reg,
				Logger:   opts.Logger(),
			}
			if accessLog {
				config.AccessLog = cmd.ErrOrStderr()
			}
			srv := &http.Server{
				Addr:              listen,
				Handler:           api.NewServer(m, config).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			opts.Logger().Info("serving session", "resource", m.Resource().String(), "listen", listen)

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Resource model recorded with the session")
	cmd.Flags().StringVar(&listen, "listen", ":8080", "HTTP listen address")
	cmd.Flags().BoolVar(&accessLog, "access-log", true, "Log HTTP requests to stderr")
	return cmd
}
