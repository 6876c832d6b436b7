package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pairbot/alert"
	"pairbot/broker/paper"
	"pairbot/config"
	"pairbot/feed"
	"pairbot/ledger"
	"pairbot/metrics"
	"pairbot/risk"
	"pairbot/runner"
	"pairbot/strategy"
	"pairbot/util"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop from a config file",
	Long: `Run the pairs trading loop using settings from a configuration file.

The config file selects the price feed, the traded pairs, risk limits and
journaling. The loop runs until interrupted (Ctrl-C) and writes a ledger
snapshot on the way down when one is configured.

Example:
  pairbot run --config pairbot.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogPretty)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	j, err := cfg.OpenJournal(ctx)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	src, stepFeed, err := buildFeed(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build feed: %w", err)
	}

	venue := paper.New(log,
		paper.WithStartCash(cfg.Broker.StartingCash),
		paper.WithFillDelay(cfg.FillDelay()),
		paper.WithFillSteps(cfg.Broker.FillSteps),
	)

	led := ledger.New(log)
	if path := cfg.Ledger.SnapshotPath; path != "" {
		switch err := led.LoadSnapshot(path); {
		case err == nil:
			log.Info().Str("path", path).Msg("ledger snapshot restored")
		case os.IsNotExist(err):
			log.Info().Str("path", path).Msg("no ledger snapshot yet, starting fresh")
		default:
			return fmt.Errorf("load ledger snapshot: %w", err)
		}
	}

	sigs, err := strategy.New(cfg.StrategyName(), cfg.PairParams(), log)
	if err != nil {
		return err
	}

	loop := &runner.Runner{
		Feed:    src,
		Signals: sigs,
		Risk:    risk.NewManager(cfg.Policy(), cfg.PairParams(), log),
		Broker:  venue,
		Ledger:  led,
		Journal: j,
		Alerts:  buildAlerts(cfg, log),
		Log:     log,
		Config:  cfg.RunnerConfig(),
	}

	if addr := cfg.App.MetricsAddr; addr != "" {
		srv := metrics.Serve(addr)
		defer srv.Close()
		log.Info().Str("addr", addr).Msg("metrics listening")
	}

	go pumpPrices(ctx, src, venue, cfg.Symbols(), cfg.TickInterval(), stepFeed, log)

	log.Info().
		Str("strategy", cfg.StrategyName()).
		Int("pairs", len(cfg.Pairs)).
		Str("feed", cfg.Feed.Provider).
		Msg("starting trading loop")

	err = loop.Run(ctx)
	if ctx.Err() == nil {
		return err
	}

	// Interrupted: persist the final ledger state and leave quietly.
	if path := cfg.Ledger.SnapshotPath; path != "" {
		if serr := led.SaveSnapshot(path); serr != nil {
			log.Error().Err(serr).Msg("final snapshot failed")
		}
	}
	log.Info().Msg("trading loop stopped")
	return nil
}

// buildFeed returns the configured price source plus, for replayed
// sources, a step function the price pump calls once per interval.
// Streaming sources are started here and run until ctx is done.
func buildFeed(ctx context.Context, cfg *config.Config, log zerolog.Logger) (feed.Source, func() bool, error) {
	src, err := feed.New(cfg.Feed.Provider, cfg.Symbols(), log,
		feed.WithCSVDir(cfg.Feed.CSVDir),
		feed.WithMaxAge(cfg.MaxAge()),
	)
	if err != nil {
		return nil, nil, err
	}

	var step func() bool
	if csv, ok := src.(*feed.CSVSource); ok {
		step = csv.Step
		log.Info().Str("dir", cfg.Feed.CSVDir).Int("bars", csv.Len()).Msg("csv feed loaded")
	}
	if st, ok := src.(feed.Streamer); ok {
		go func() {
			if err := st.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("price stream stopped")
			}
		}()
	}
	return src, step, nil
}

// pumpPrices mirrors the feed into the paper venue so fills happen at
// the prices the strategy sees.
func pumpPrices(ctx context.Context, src feed.Source, venue *paper.Engine, symbols []string, every time.Duration, step func() bool, log zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if step != nil && !step() {
			log.Info().Msg("replay feed exhausted")
			return
		}
		for _, sym := range symbols {
			pp, err := src.Latest(ctx, sym)
			if err != nil {
				continue
			}
			venue.SetPrice(pp)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildAlerts(cfg *config.Config, log zerolog.Logger) alert.Sink {
	hook := cfg.Alerts.DiscordWebhookURL
	if hook == "" {
		hook = os.Getenv("PAIRBOT_DISCORD_WEBHOOK")
	}
	if hook == "" {
		return alert.NewLogSink(log)
	}
	return alert.NewMultiSink(alert.NewLogSink(log), alert.NewDiscordSink(hook))
}
