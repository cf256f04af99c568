package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/reservation"
)

// StockOptions holds flags for the stock command.
type StockOptions struct {
	*RootOptions
	Movements bool
}

type stockView struct {
	Record    reservation.Record     `json:"record"`
	Movements []reservation.Movement `json:"movements,omitempty"`
}

// NewStockCommand creates the stock command.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "stock <key>...",
		Short:         "Show resource records and, optionally, their ledger",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStock(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.Movements, "movements", "m", false, "include the movement ledger")

	return cmd
}

func runStock(opts *StockOptions, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	svc, _, err := opts.openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	views := make([]stockView, 0, len(args))
	for _, arg := range args {
		key, err := uuid.Parse(arg)
		if err != nil {
			return WrapExitError(ExitCommandError, "parse resource key", err)
		}
		rec, err := svc.Store().Get(ctx, key)
		if err != nil {
			return WrapExitError(ExitFailure, "load "+arg, err)
		}
		v := stockView{Record: rec}
		if opts.Movements {
			if v.Movements, err = svc.Store().Movements(ctx, key); err != nil {
				return WrapExitError(ExitFailure, "load movements for "+arg, err)
			}
		}
		views = append(views, v)
	}

	return out.Success(views, func(w io.Writer) {
		for _, v := range views {
			fmt.Fprintf(w, "%s\tavailable=%d\tversion=%d\n", v.Record.ResourceKey, v.Record.QuantityAvailable, v.Record.Version)
			for _, m := range v.Movements {
				fmt.Fprintf(w, "  v%d\t%s\t%+d\t%d -> %d\t%s\t%s\n", m.Version, m.Kind, m.Delta, m.Before, m.After, m.ReservationID, m.Reason)
			}
		}
	})
}
