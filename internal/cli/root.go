// Package cli implements the ordersaga command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	stderr *lockedWriter
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ordersaga CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ordersaga",
		Short: "Place orders against reserved stock",
		Long: `ordersaga places orders by choreographing an order handler and an
inventory handler over an in-process event bus. Stock lives in the
reservation backend named by the config file (memory, sqlite, redis,
or postgres).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (yaml or json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))
	cmd.AddCommand(NewPlaceCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))

	return cmd
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: o.errWriter(cmd),
		Verbose:   o.Verbose,
	}
}

// errWriter returns stderr shared by the logger and verbose output.
func (o *RootOptions) errWriter(cmd *cobra.Command) io.Writer {
	if o.stderr == nil {
		o.stderr = &lockedWriter{w: cmd.ErrOrStderr()}
	}
	return o.stderr
}

// openService loads settings and opens a service. Logs go to stderr.
func (o *RootOptions) openService(ctx context.Context, cmd *cobra.Command, extra ...ordersaga.Option) (*ordersaga.Service, config.Settings, error) {
	settings, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, settings, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Verbose {
		settings.Log.Level = "debug"
	} else if o.ConfigPath == "" {
		settings.Log.Level = "warn"
	}

	logger, err := ordersaga.NewLogger(o.errWriter(cmd), settings.Log)
	if err != nil {
		return nil, settings, WrapExitError(ExitCommandError, "configure logging", err)
	}

	opts := append([]ordersaga.Option{ordersaga.WithLogger(logger)}, extra...)
	svc, err := ordersaga.Open(ctx, settings, opts...)
	if err != nil {
		return nil, settings, WrapExitError(ExitCommandError, "open service", err)
	}
	return svc, settings, nil
}
