package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pairbot",
	Short: "A statistical-arbitrage pairs trading bot",
	Long: `Pairbot trades mean-reverting pairs: it estimates a rolling hedge
ratio per pair, watches the spread z-score and runs hedged entries and
exits through a risk-checked execution loop.

It provides tools for:
  - Running the trading loop against a stub, CSV or Binance feed
  - Backtesting pair strategies over historical bar data
  - Downloading Dukascopy tick history into bar CSVs
  - Querying the trade journal
  - Generating and validating configuration files`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
