package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"barborsa/internal/catalog"
	"barborsa/internal/checkout"
	"barborsa/internal/display"
)

// Show prints the priced board, the current event, today's totals, and the
// most recent sales.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	docs, err := st.GetSnapshot(ctx, scope.Products())
	if err != nil {
		return err
	}
	products, err := catalog.DecodeAll(docs)
	if err != nil {
		return err
	}

	events := a.newController(st, scope)
	event, err := events.Current(ctx)
	if err != nil {
		return err
	}

	report, err := checkout.ReadDailyReport(ctx, st, scope)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Venue\t%s\n", scope.Venue())
	fmt.Fprintf(writer, "Event\t%s\n", event.Mode)
	if event.Active() {
		fmt.Fprintf(writer, "Event ends\t%s\n", event.EndsAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(writer, "Revenue today\t%d\n", report.TotalRevenue)
	fmt.Fprintf(writer, "Items today\t%d\n", report.TotalCount)
	fmt.Fprintln(writer, "")

	if len(products) == 0 {
		fmt.Fprintln(writer, "catalog is empty")
	} else {
		fmt.Fprintln(writer, "Product\tPrice\tTrend\tChange%\tStock\tLucky")
		for _, p := range products {
			lucky := ""
			if p.IsLucky {
				lucky = "*"
			}
			fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%d\t%s\n",
				p.Name,
				p.Price,
				display.Trend(p.Price, p.StartPrice),
				display.ChangePct(p.Price, p.StartPrice).String(),
				p.Stock,
				lucky,
			)
		}
	}
	writer.Flush()

	if opts.Sales <= 0 {
		return nil
	}

	sales, err := checkout.ListSales(ctx, st, scope)
	if err != nil {
		return err
	}
	if len(sales) > opts.Sales {
		sales = sales[len(sales)-opts.Sales:]
	}
	if len(sales) == 0 {
		fmt.Fprintln(os.Stdout, "\nno sales recorded")
		return nil
	}

	fmt.Fprintln(os.Stdout, "")
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tOrder\tQty\tTotal\tPayment")
	for _, sale := range sales {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\n",
			sale.At.UTC().Format(time.RFC3339),
			sale.ID,
			sale.TotalQuantity,
			sale.Total,
			sale.PaymentMethod,
		)
	}
	writer.Flush()
	return nil
}
