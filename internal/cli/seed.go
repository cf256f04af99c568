package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/reservation"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <key=qty>...",
		Short: "Create resource records with an initial quantity",
		Long: `Create resource records with an initial quantity.

Each argument is key=quantity. Use "new" as the key to generate one.

Example:
  ordersaga seed -c ordersaga.yaml new=10 7f1c6a9e-3f0b-4a4e-9a55-0d8c2b9f1e11=5`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runSeed(opts *RootOptions, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	svc, _, err := opts.openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	records := make([]reservation.Record, 0, len(args))
	for _, arg := range args {
		key, qty, err := parseItem(arg, true)
		if err != nil {
			return WrapExitError(ExitCommandError, "parse item", err)
		}
		rec, err := svc.Store().Seed(ctx, key, qty)
		if err != nil {
			return WrapExitError(ExitFailure, "seed "+key.String(), err)
		}
		out.VerboseLog("seeded %s", key)
		records = append(records, rec)
	}

	return out.Success(records, func(w io.Writer) {
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%d\tv%d\n", r.ResourceKey, r.QuantityAvailable, r.Version)
		}
	})
}
