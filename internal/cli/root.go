package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"barborsa/internal/app"
	"barborsa/internal/config"
	"barborsa/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	venueID   string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "barborsa",
	Short: "Stock-market bar engine: demand pricing, crashes, and the POS",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if venueID != "" {
			cfg.Venue.ID = venueID
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&venueID, "venue", "", "Override venue id defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sellCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(crashCmd)
	rootCmd.AddCommand(luckyCmd)
	rootCmd.AddCommand(marketCmd)
	rootCmd.AddCommand(productCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
