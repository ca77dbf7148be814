package cli

import (
	"github.com/spf13/cobra"

	"barborsa/internal/app"
)

var showSales int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the priced board, today's totals, and recent sales",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ShowOptions{
			Sales: showSales,
		}
		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showSales, "sales", 10, "Number of recent sales to display (0 to hide)")
}
