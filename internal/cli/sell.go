package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"barborsa/internal/app"
	"barborsa/internal/checkout"
)

var sellPayment string

var sellCmd = &cobra.Command{
	Use:   "sell <product>[:qty] [<product>[:qty]...]",
	Short: "Check out a cart and print the receipt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cart, err := parseCart(args)
		if err != nil {
			return err
		}
		return getApp().Sell(cmd.Context(), app.SellOptions{
			Lines:         cart,
			PaymentMethod: sellPayment,
		})
	},
}

func init() {
	sellCmd.Flags().StringVar(&sellPayment, "payment", "cash", "Payment method recorded on the order")
}

// parseCart turns "efes:2 raki" style arguments into cart lines; a missing
// quantity means one.
func parseCart(args []string) (checkout.Cart, error) {
	cart := make(checkout.Cart, 0, len(args))
	for _, arg := range args {
		id := arg
		qty := int64(1)
		if idx := strings.LastIndex(arg, ":"); idx >= 0 {
			id = arg[:idx]
			parsed, err := strconv.ParseInt(arg[idx+1:], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid quantity in %q: %w", arg, err)
			}
			qty = parsed
		}
		if id == "" {
			return nil, fmt.Errorf("missing product id in %q", arg)
		}
		cart = append(cart, checkout.Line{ProductID: id, Quantity: qty})
	}
	return cart, nil
}
