package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
)

// PlaceOptions holds flags for the place command.
type PlaceOptions struct {
	*RootOptions
	TransactionID string
	UserID        string
	Items         []string
	Address       string
	Payment       string
	Notes         string
}

// NewPlaceCommand creates the place command.
func NewPlaceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlaceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place one order and wait for its outcome",
		Long: `Place one order and wait for its outcome.

Exits 1 when the order is rejected.

Example:
  ordersaga place -c ordersaga.yaml --user u-1 \
    --item 7f1c6a9e-3f0b-4a4e-9a55-0d8c2b9f1e11=2`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TransactionID, "tx", "", "transaction id (UUID, generated when empty)")
	cmd.Flags().StringVarP(&opts.UserID, "user", "u", "", "ordering user id")
	cmd.Flags().StringArrayVarP(&opts.Items, "item", "i", nil, "line item as key=quantity (repeatable)")
	cmd.Flags().StringVar(&opts.Address, "address", "", "shipping address id")
	cmd.Flags().StringVar(&opts.Payment, "payment", "", "payment method")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "order notes")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

func runPlace(opts *PlaceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	req := ordersaga.OrderRequest{
		TransactionID:     opts.TransactionID,
		UserID:            opts.UserID,
		ShippingAddressID: opts.Address,
		PaymentMethod:     opts.Payment,
		Notes:             opts.Notes,
	}
	for _, s := range opts.Items {
		key, qty, err := parseItem(s, false)
		if err != nil {
			return WrapExitError(ExitCommandError, "parse item", err)
		}
		req.Items = append(req.Items, ordersaga.ItemRequest{ResourceKey: key, Quantity: qty})
	}

	trace := ordersaga.WithEventTap(func(_ context.Context, evt event.Event) {
		hdr := evt.Header()
		out.VerboseLog("event %s tx=%s id=%s error=%t", evt.Kind(), hdr.TransactionID, hdr.EventID, hdr.IsError)
	})

	svc, _, err := opts.openService(ctx, cmd, trace)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.InitiateOrder(ctx, req)
	var ferr *ordersaga.FlowError
	switch {
	case errors.As(err, &ferr):
		if werr := out.Error(ferr.Info.Code, ferr.Info.Message, ferr.Info); werr != nil {
			return werr
		}
		return WrapExitError(ExitFailure, "order not placed", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "order not placed", err)
	}

	return out.Success(result, func(w io.Writer) {
		o := result.Order
		fmt.Fprintf(w, "%s %s (%s) tx=%s\n", o.Status, o.OrderNumber, o.OrderID, result.TransactionID)
		for _, l := range o.Lines {
			fmt.Fprintf(w, "  %d\t%s\tx%d\t%s\n", l.LineNumber, l.ResourceKey, l.Quantity, l.ReservationID)
		}
	})
}
