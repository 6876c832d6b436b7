package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairbot/journal"
	"pairbot/strategy"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "pairbot", cfg.App.Name)
	assert.Equal(t, "stub", cfg.Feed.Provider)
	assert.Equal(t, 100000.0, cfg.Broker.StartingCash)
	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, 2.0, cfg.Pairs[0].EntryThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.App.LogLevel = "verbose" },
			errMsg: "app.log_level",
		},
		{
			name:   "unknown feed provider",
			mutate: func(c *Config) { c.Feed.Provider = "yahoo" },
			errMsg: "feed.provider",
		},
		{
			name:   "csv feed without dir",
			mutate: func(c *Config) { c.Feed.Provider = "csv" },
			errMsg: "feed.csv_dir is required",
		},
		{
			name:   "bad max age",
			mutate: func(c *Config) { c.Feed.MaxAge = "soon" },
			errMsg: "bad duration",
		},
		{
			name:   "unknown broker kind",
			mutate: func(c *Config) { c.Broker.Kind = "ibkr" },
			errMsg: "broker.kind",
		},
		{
			name:   "zero starting cash",
			mutate: func(c *Config) { c.Broker.StartingCash = 0 },
			errMsg: "broker.starting_cash must be positive",
		},
		{
			name:   "no pairs",
			mutate: func(c *Config) { c.Pairs = nil },
			errMsg: "at least one pair",
		},
		{
			name: "duplicate pair id",
			mutate: func(c *Config) {
				c.Pairs = append(c.Pairs, c.Pairs[0])
			},
			errMsg: "duplicated",
		},
		{
			name:   "identical legs",
			mutate: func(c *Config) { c.Pairs[0].SymbolB = c.Pairs[0].SymbolA },
			errMsg: "legs must be different",
		},
		{
			name:   "window too small",
			mutate: func(c *Config) { c.Pairs[0].WindowSize = 1 },
			errMsg: "window_size",
		},
		{
			name:   "zero entry threshold",
			mutate: func(c *Config) { c.Pairs[0].EntryThreshold = 0 },
			errMsg: "entry_threshold must be positive",
		},
		{
			name:   "exit above entry",
			mutate: func(c *Config) { c.Pairs[0].ExitThreshold = 3 },
			errMsg: "exit_threshold must be below",
		},
		{
			name:   "zero gross exposure",
			mutate: func(c *Config) { c.Risk.MaxGrossExposure = 0 },
			errMsg: "risk.max_gross_exposure",
		},
		{
			name:   "zero pair notional",
			mutate: func(c *Config) { c.Risk.MaxPairNotional = 0 },
			errMsg: "risk.max_pair_notional",
		},
		{
			name:   "zero risk budget",
			mutate: func(c *Config) { c.Risk.RiskBudgetPerPair = 0 },
			errMsg: "risk.risk_budget_per_pair",
		},
		{
			name:   "bad tick interval",
			mutate: func(c *Config) { c.Execution.TickInterval = "fast" },
			errMsg: "execution.tick_interval",
		},
		{
			name:   "negative reconcile timeout",
			mutate: func(c *Config) { c.Execution.ReconcileTimeout = "-5s" },
			errMsg: "must not be negative",
		},
		{
			name:   "negative retries",
			mutate: func(c *Config) { c.Execution.MaxRetries = -1 },
			errMsg: "execution.max_retries",
		},
		{
			name: "csv journal without files",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{Type: "csv"}
			},
			errMsg: "trades_file and equity_file",
		},
		{
			name: "sqlite journal without path",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{Type: "sqlite"}
			},
			errMsg: "db_path required",
		},
		{
			name: "postgres journal without dsn",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{Type: "postgres"}
			},
			errMsg: "dsn required",
		},
		{
			name: "unknown journal type",
			mutate: func(c *Config) {
				c.Journal = JournalConfig{Type: "oracle"}
			},
			errMsg: "journal.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, 30*time.Second, cfg.ReconcileTimeout())
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, time.Duration(0), cfg.FillDelay())
	assert.Equal(t, time.Minute, cfg.MaxAge())

	cfg.Execution.TickInterval = "250ms"
	cfg.Execution.ReconcileTimeout = "5s"
	cfg.Broker.FillDelay = "1.5s"
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 5*time.Second, cfg.ReconcileTimeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.FillDelay())
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Pairs = []PairConfig{
		{ID: "AAPL-MSFT", SymbolA: "AAPL", SymbolB: "MSFT", WindowSize: 60, EntryThreshold: 2, ExitThreshold: 0.5, MaxHoldingTicks: 500, RiskBudget: 5000},
		{ID: "MSFT-GOOG", SymbolA: "MSFT", SymbolB: "GOOG", WindowSize: 90, EntryThreshold: 2.5, ExitThreshold: 1},
	}

	params := cfg.PairParams()
	require.Len(t, params, 2)
	assert.Equal(t, "AAPL-MSFT", params[0].ID)
	assert.Equal(t, 60, params[0].WindowSize)
	assert.Equal(t, 500, params[0].MaxHoldingTicks)
	assert.Equal(t, 5000.0, params[0].Notional)
	assert.Equal(t, 2.5, params[1].EntryThreshold)

	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, cfg.Symbols())

	pol := cfg.Policy()
	assert.Equal(t, cfg.Risk.MaxGrossExposure, pol.MaxGrossExposure)
	assert.Equal(t, cfg.Risk.RiskBudgetPerPair, pol.RiskBudgetPerPair)

	cfg.Strategy = ""
	assert.Equal(t, strategy.DefaultStrategy, cfg.StrategyName())
	cfg.Strategy = "custom"
	assert.Equal(t, "custom", cfg.StrategyName())

	cfg.Execution = ExecutionConfig{TickInterval: "2s", MaxRetries: 5, ReconcileTimeout: "10s", PollInterval: "50ms"}
	cfg.Ledger.SnapshotPath = "/tmp/ledger.json"
	rc := cfg.RunnerConfig()
	assert.Equal(t, 2*time.Second, rc.TickInterval)
	assert.Equal(t, 5, rc.MaxRetries)
	assert.Equal(t, 10*time.Second, rc.ReconcileTimeout)
	assert.Equal(t, 50*time.Millisecond, rc.PollInterval)
	assert.Equal(t, cfg.Broker.StartingCash, rc.StartingCash)
	assert.Equal(t, "/tmp/ledger.json", rc.SnapshotPath)
}

func TestOpenJournal(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		cfg := Default()
		cfg.Journal = JournalConfig{Type: "none"}
		j, err := cfg.OpenJournal(ctx)
		require.NoError(t, err)
		assert.IsType(t, journal.Nop{}, j)
	})

	t.Run("csv creates parent dirs", func(t *testing.T) {
		dir := t.TempDir()
		cfg := Default()
		cfg.Journal = JournalConfig{
			Type:       "csv",
			TradesFile: filepath.Join(dir, "journal", "trades.csv"),
			EquityFile: filepath.Join(dir, "journal", "equity.csv"),
		}
		j, err := cfg.OpenJournal(ctx)
		require.NoError(t, err)
		defer j.Close()

		_, err = os.Stat(cfg.Journal.TradesFile)
		assert.NoError(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		cfg := Default()
		cfg.Journal = JournalConfig{Type: "oracle"}
		_, err := cfg.OpenJournal(ctx)
		assert.Error(t, err)
	})
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			path := filepath.Join(tmpDir, "test"+tt.ext)

			err := cfg.SaveToFile(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg.App.Name, loaded.App.Name)
			assert.Equal(t, cfg.Broker.StartingCash, loaded.Broker.StartingCash)
			require.Len(t, loaded.Pairs, len(cfg.Pairs))
			assert.Equal(t, cfg.Pairs[0].EntryThreshold, loaded.Pairs[0].EntryThreshold)
			assert.Equal(t, cfg.Execution.TickInterval, loaded.Execution.TickInterval)
		})
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")

	cfg := Default()
	cfg.Broker.Kind = "ibkr"
	// SaveToFile does not validate.
	require.NoError(t, cfg.SaveToFile(path))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
