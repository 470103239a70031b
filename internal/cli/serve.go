package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/config"
	"github.com/wesleyorama2/formload/internal/uiclient/memapp"
)

type serveOptions struct {
	addr      string
	simulator config.SimulatorConfig
	latency   time.Duration
}

func newServeCmd(g *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in simulator over HTTP",
		Long: `Serve the built-in order processing simulator over the HTTP/JSON
UI-client protocol, so runs can target it with --endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", opts.addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", opts.addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving simulator on http://%s\n", ln.Addr())
			return serveSimulator(ctx, ln, opts, g.log())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "127.0.0.1:8080", "Listen address")
	f.IntVar(&opts.simulator.Customers, "customers", 0, "Number of customers (default: simulator default)")
	f.IntVar(&opts.simulator.Items, "items", 0, "Number of items (default: simulator default)")
	f.IntVar(&opts.simulator.ViewportSize, "viewport", 0, "Repeater rows materialized at once")
	f.DurationVar(&opts.latency, "latency", 0, "Latency added to every interaction")

	return cmd
}

// serveSimulator serves until ctx is done, then shuts down gracefully.
func serveSimulator(ctx context.Context, ln net.Listener, opts *serveOptions, logger *zap.Logger) error {
	sc := opts.simulator
	sc.Latency = config.Duration(opts.latency)
	app := memapp.New(simulatorOptions(&sc))

	srv := &http.Server{
		Handler:           memapp.NewHandler(app, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down simulator", zap.Int("openSessions", app.OpenSessions()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
