// Package cli implements the recordstore command line.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stevemurr/recordstore/backend"
	"github.com/stevemurr/recordstore/config"
	"github.com/stevemurr/recordstore/logging"
	"github.com/stevemurr/recordstore/store"
)

// Process exit codes. Bad configuration exits with ExitUsage; anything else
// that fails is ExitFailure.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// stepError records which command step failed and the exit code it maps to.
type stepError struct {
	code int
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }

func (e *stepError) Unwrap() error { return e.err }

func failed(step string, err error) error {
	return &stepError{code: ExitFailure, step: step, err: err}
}

func misconfigured(step string, err error) error {
	return &stepError{code: ExitUsage, step: step, err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *stepError
	if errors.As(err, &se) {
		return se.code
	}
	return ExitFailure
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	// Getenv overrides environment lookup (for testing).
	Getenv func(string) string
}

// NewRootCommand creates the root command for the recordstore CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Getenv: os.Getenv})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "recordstore",
		Short:         "Indexed record store over a key-value backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewCollectionsCommand(opts))

	return cmd
}

// runtime is the process-wide state shared by the commands: configuration,
// logger and the single backend connection.
type runtime struct {
	cfg     config.Config
	logger  *zap.Logger
	backend backend.Backend
	store   *store.Store
}

func (opts *RootOptions) loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.Getenv)
	if err != nil {
		return cfg, nil, misconfigured("load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.LogOptions())
	if err != nil {
		return cfg, nil, misconfigured("build logger", err)
	}
	return cfg, logger, nil
}

// open loads configuration and connects to the backend. A backend that
// cannot be reached is fatal.
func (opts *RootOptions) open(ctx context.Context) (*runtime, error) {
	cfg, logger, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	b, err := backend.New(ctx, cfg.BackendOptions())
	if err != nil {
		logger.Sync()
		return nil, failed("open backend", err)
	}
	s := store.New(b, store.Options{AtomicWrites: cfg.Backend.AtomicWrites, Logger: logger})
	logger.Info("backend ready",
		zap.String("driver", cfg.Backend.Driver),
		zap.Bool("atomic_writes", s.Atomic()),
	)
	return &runtime{cfg: cfg, logger: logger, backend: b, store: s}, nil
}

func (rt *runtime) Close() {
	if err := rt.backend.Close(); err != nil {
		rt.logger.Error("error closing backend", zap.Error(err))
	}
	rt.logger.Sync()
}
