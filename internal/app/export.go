package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"barborsa/internal/checkout"
)

// Export renders the sales history as CSV and/or a revenue PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	sales, err := checkout.ListSales(ctx, st, scope)
	if err != nil {
		return err
	}

	sales = filterWindow(sales, opts.From, opts.To)
	if len(sales) == 0 {
		a.Logger.Info().Msg("no sales found for export window")
		return nil
	}

	downsampled := downsampleSales(sales, opts.MaxPoints)
	a.Logger.Info().Int("total", len(sales)).Int("exported", len(downsampled)).Msg("exporting sales")

	if opts.CSVPath != "" {
		if err := writeSalesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSalesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func filterWindow(sales []checkout.SalesEntry, from, to *time.Time) []checkout.SalesEntry {
	filtered := make([]checkout.SalesEntry, 0, len(sales))
	for _, sale := range sales {
		if from != nil && sale.At.Before(*from) {
			continue
		}
		if to != nil && !sale.At.Before(*to) {
			continue
		}
		filtered = append(filtered, sale)
	}
	return filtered
}

func downsampleSales(sales []checkout.SalesEntry, max int) []checkout.SalesEntry {
	if max <= 0 || len(sales) <= max {
		return sales
	}

	result := make([]checkout.SalesEntry, 0, max)
	step := float64(len(sales)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(sales) {
			idx = len(sales) - 1
		}
		result = append(result, sales[idx])
	}
	return result
}

func writeSalesCSV(path string, sales []checkout.SalesEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "order_id", "total", "total_quantity", "payment_method", "cumulative_revenue"}
	if err := writer.Write(header); err != nil {
		return err
	}

	var cumulative int64
	for _, sale := range sales {
		cumulative += sale.Total
		record := []string{
			sale.At.UTC().Format(time.RFC3339),
			sale.ID,
			strconv.FormatInt(sale.Total, 10),
			strconv.FormatInt(sale.TotalQuantity, 10),
			sale.PaymentMethod,
			strconv.FormatInt(cumulative, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSalesPNG(path string, sales []checkout.SalesEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(sales))
	orderTotals := make([]float64, len(sales))
	cumulative := make([]float64, len(sales))

	var running int64
	for i, sale := range sales {
		running += sale.Total
		x[i] = sale.At
		orderTotals[i] = float64(sale.Total)
		cumulative[i] = float64(running)
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Order total",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Cumulative revenue",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Order total",
				XValues: x,
				YValues: orderTotals,
			},
			chart.TimeSeries{
				Name:    "Cumulative revenue",
				XValues: x,
				YValues: cumulative,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
