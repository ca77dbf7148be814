package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"barborsa/internal/app"
)

var (
	simulateOrders  int
	simulateMaxQty  int64
	simulatePayment string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "模拟随机订单驱动行情",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOrders <= 0 {
			return errors.New("--orders 必须大于 0")
		}
		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Orders:  simulateOrders,
			MaxQty:  simulateMaxQty,
			Payment: simulatePayment,
		})
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateOrders, "orders", 20, "Number of random orders to submit")
	simulateCmd.Flags().Int64Var(&simulateMaxQty, "max-qty", 3, "Maximum quantity per order")
	simulateCmd.Flags().StringVar(&simulatePayment, "payment", "cash", "Payment method recorded on orders")
}
