package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stevemurr/recordstore/handler"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the record API over HTTP",
		Long: `Connect to the configured key-value backend and serve the record API.

Example:
  recordstore serve --config ./config.yaml
  STORE_BACKEND=bbolt DATA_DIR=/tmp/rs recordstore serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			ln, err := net.Listen("tcp", rt.cfg.Addr())
			if err != nil {
				return failed("listen", err)
			}
			return serve(ctx, rt, ln)
		},
	}
}

// serve runs the HTTP server on ln until ctx is done, then stops accepting
// requests and waits for in-flight ones.
func serve(ctx context.Context, rt *runtime, ln net.Listener) error {
	h := handler.New(rt.store, handler.Options{
		SeedPath:       rt.cfg.Seed.Path,
		AllowedOrigins: rt.cfg.Server.AllowedOrigins,
		Logger:         rt.logger,
	})
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return failed("serve", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return failed("shutdown", err)
	}
	return nil
}
