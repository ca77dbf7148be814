package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"barborsa/internal/checkout"
)

// Sell submits one cart through the checkout pipeline and prints the receipt.
func (a *App) Sell(ctx context.Context, opts SellOptions) error {
	if len(opts.Lines) == 0 {
		return errors.New("at least one product line is required")
	}

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	events := a.newController(st, scope)
	processor := checkout.NewProcessor(st, scope, events, a.Logger)

	receipt, err := processor.Submit(ctx, opts.Lines, opts.PaymentMethod)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Order\t%s\n", receipt.OrderID)
	fmt.Fprintf(writer, "Payment\t%s\n", receipt.PaymentMethod)
	fmt.Fprintln(writer, "")
	fmt.Fprintln(writer, "Product\tQty\tUnit\tTotal")
	for _, line := range receipt.Lines {
		fmt.Fprintf(writer, "%s\t%d\t%d\t%d\n", line.Name, line.Quantity, line.UnitPrice, line.LineTotal)
	}
	fmt.Fprintln(writer, "")
	fmt.Fprintf(writer, "Total\t%d\n", receipt.Total)
	writer.Flush()
	return nil
}
