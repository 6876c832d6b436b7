package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pairbot/backtest"
	"pairbot/config"
	"pairbot/feed"
	"pairbot/id"
	"pairbot/journal"
	"pairbot/strategy"
	"pairbot/util"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through the trading loop",
	Long: `Backtest replays a directory of bar CSVs through the same execution
loop the live bot runs, against the paper venue. Pairs, thresholds and
risk limits come from the config file.

The data directory must hold one <SYMBOL>.csv per symbol the configured
pairs reference, as written by "pairbot data fetch".

Example:
  pairbot backtest --config pairbot.yaml --data ./data --report runs/jan.org`,
	RunE: runBacktest,
}

var (
	btConfigPath string
	btDataDir    string
	btCash       float64
	btCloseEnd   bool
	btDBPath     string
	btReportPath string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	backtestCmd.Flags().StringVarP(&btDataDir, "data", "d", "", "directory of <SYMBOL>.csv bar files (required)")
	backtestCmd.Flags().Float64VarP(&btCash, "cash", "b", 0, "starting cash (0 = broker.starting_cash from config)")
	backtestCmd.Flags().BoolVar(&btCloseEnd, "close-end", true, "close open positions at end of replay")
	backtestCmd.Flags().StringVar(&btDBPath, "db", "", "optional SQLite journal for per-trade records")
	backtestCmd.Flags().StringVarP(&btReportPath, "report", "o", "", "optional org-mode report output path")

	backtestCmd.MarkFlagRequired("config")
	backtestCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(btConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogPretty)

	src, err := feed.LoadCSVDir(btDataDir, cfg.Symbols())
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	sigs, err := strategy.New(cfg.StrategyName(), cfg.PairParams(), log)
	if err != nil {
		return err
	}

	var j journal.Journal = journal.Nop{}
	if btDBPath != "" {
		sq, err := journal.NewSQLite(btDBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		j = sq
	}
	defer j.Close()

	cash := btCash
	if cash == 0 {
		cash = cfg.Broker.StartingCash
	}

	pairs := pairIDs(cfg)
	fmt.Printf("Running backtest with strategy: %s\n", cfg.StrategyName())
	fmt.Printf("  Data: %s (%d bars)\n", btDataDir, src.Len())
	fmt.Printf("  Pairs: %s\n\n", strings.Join(pairs, ", "))

	bt := &backtest.Runner{
		Feed:     src,
		Strategy: sigs,
		Policy:   cfg.Policy(),
		Journal:  j,
		Log:      log,
		Options: backtest.Options{
			StartCash: cash,
			CloseEnd:  btCloseEnd,
		},
	}

	res, err := bt.Run(context.Background())
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	run := res.Report(id.WithPrefix("bt"), btDataDir, cfg.StrategyName(), pairs)
	backtest.PrintBacktestRun(os.Stdout, run)

	if btDBPath != "" {
		fmt.Printf("\nTrades saved to: %s\n", btDBPath)
	}
	if btReportPath != "" {
		if err := run.WriteOrg(btReportPath); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("\nReport saved to: %s\n", btReportPath)
	}
	return nil
}

func pairIDs(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		out = append(out, p.ID)
	}
	return out
}
