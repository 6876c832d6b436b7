package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pairbot/history"
	"pairbot/util"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download and prepare historical market data",
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch <SYMBOL>...",
	Short: "Fetch Dukascopy ticks and write bar CSVs",
	Long: `Fetch downloads hourly tick archives from the Dukascopy datafeed,
aggregates them into bars and writes one <SYMBOL>.csv per symbol in the
format the csv feed and the backtester read. Raw archives are cached
under <out>/raw so repeat runs only fetch what is missing.

Examples:
  pairbot data fetch EURUSD --from 2025-01-06 --out ./data
  pairbot data fetch EURUSD GBPUSD --from 2025-01-06 --to 2025-01-10 --interval 5m`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDataFetch,
}

var (
	dataFrom     string
	dataTo       string
	dataOut      string
	dataWorkers  int
	dataInterval time.Duration
	dataScale    float64
	dataLevel    string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd)

	dataFetchCmd.Flags().StringVar(&dataFrom, "from", "", "first day to fetch, YYYY-MM-DD (required)")
	dataFetchCmd.Flags().StringVar(&dataTo, "to", "", "last day to fetch, inclusive (default: --from)")
	dataFetchCmd.Flags().StringVarP(&dataOut, "out", "o", "./data", "output directory")
	dataFetchCmd.Flags().IntVar(&dataWorkers, "workers", 0, "parallel downloads (0 = auto)")
	dataFetchCmd.Flags().DurationVar(&dataInterval, "interval", time.Minute, "bar interval")
	dataFetchCmd.Flags().Float64Var(&dataScale, "scale", 0, "price divisor (0 = 1e5; JPY crosses want 1e3)")
	dataFetchCmd.Flags().StringVar(&dataLevel, "log-level", "info", "log level")

	dataFetchCmd.MarkFlagRequired("from")
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	from, err := time.Parse("2006-01-02", dataFrom)
	if err != nil {
		return fmt.Errorf("bad --from: %w", err)
	}
	to := from
	if dataTo != "" {
		to, err = time.Parse("2006-01-02", dataTo)
		if err != nil {
			return fmt.Errorf("bad --to: %w", err)
		}
	}
	end := to.Add(24 * time.Hour)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dl := &history.Downloader{
		Workers:     dataWorkers,
		BarInterval: dataInterval,
		Scale:       dataScale,
		Log:         util.NewLogger(dataLevel, true),
	}

	for _, arg := range args {
		sym := strings.ToUpper(strings.TrimSpace(arg))
		stats, err := dl.FetchRange(ctx, sym, dataOut, from, end)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", sym, err)
		}
		fmt.Printf("Fetched %s: %d ticks -> %d bars (%d hours ok, %d missing, %d failed)\n",
			sym, stats.Ticks, stats.Bars, stats.OK, stats.Missing, stats.Failed)
		if stats.Bars > 0 {
			fmt.Printf("  Wrote %s\n", filepath.Join(dataOut, sym+".csv"))
		}
	}
	return nil
}
