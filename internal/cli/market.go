package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"barborsa/internal/app"
)

var (
	crashDuration time.Duration
	luckyDuration time.Duration
)

var crashCmd = &cobra.Command{
	Use:   "crash",
	Short: "Control market crashes",
}

var crashStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Floor every product price for the crash duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StartCrash(cmd.Context(), app.EventOptions{Duration: crashDuration})
	},
}

var crashEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the running crash and revert prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().EndCrash(cmd.Context())
	},
}

var luckyCmd = &cobra.Command{
	Use:   "lucky",
	Short: "Control lucky-item promotions",
}

var luckyStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Draw an in-stock product and floor its price",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StartLucky(cmd.Context(), app.EventOptions{Duration: luckyDuration})
	},
}

var luckyEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the running promotion and revert the winner",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().EndLucky(cmd.Context())
	},
}

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Operate the automatic market",
}

var marketAutoCmd = &cobra.Command{
	Use:   "auto <on|off>",
	Short: "Toggle automatic price decay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "on":
			return getApp().SetAutoMarket(cmd.Context(), true)
		case "off":
			return getApp().SetAutoMarket(cmd.Context(), false)
		default:
			return fmt.Errorf("expected 'on' or 'off', got %q", args[0])
		}
	},
}

var marketResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset every product to its start price",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ResetPrices(cmd.Context())
	},
}

func init() {
	crashStartCmd.Flags().DurationVar(&crashDuration, "duration", 0, "Crash duration (defaults to config)")
	crashCmd.AddCommand(crashStartCmd)
	crashCmd.AddCommand(crashEndCmd)

	luckyStartCmd.Flags().DurationVar(&luckyDuration, "duration", 0, "Promotion duration (defaults to config)")
	luckyCmd.AddCommand(luckyStartCmd)
	luckyCmd.AddCommand(luckyEndCmd)

	marketCmd.AddCommand(marketAutoCmd)
	marketCmd.AddCommand(marketResetCmd)
}
