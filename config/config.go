// Package config holds the YAML/JSON configuration tree and its
// translation into the typed settings the components consume.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"pairbot/journal"
	"pairbot/risk"
	"pairbot/runner"
	"pairbot/strategy"
)

// Config is the complete bot configuration.
type Config struct {
	App       AppConfig       `json:"app" yaml:"app"`
	Feed      FeedConfig      `json:"feed" yaml:"feed"`
	Broker    BrokerConfig    `json:"broker" yaml:"broker"`
	Strategy  string          `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Pairs     []PairConfig    `json:"pairs" yaml:"pairs"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Alerts    AlertConfig     `json:"alerts" yaml:"alerts"`
}

type AppConfig struct {
	Name        string `json:"name" yaml:"name"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	LogPretty   bool   `json:"log_pretty,omitempty" yaml:"log_pretty,omitempty"`
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

// FeedConfig selects the price source. Durations are strings like
// "500ms" or "1m".
type FeedConfig struct {
	Provider string `json:"provider" yaml:"provider"` // "stub", "csv" or "binance"
	MaxAge   string `json:"max_age,omitempty" yaml:"max_age,omitempty"`
	CSVDir   string `json:"csv_dir,omitempty" yaml:"csv_dir,omitempty"`
}

type BrokerConfig struct {
	Kind         string  `json:"kind" yaml:"kind"` // "paper"
	StartingCash float64 `json:"starting_cash" yaml:"starting_cash"`
	FillDelay    string  `json:"fill_delay,omitempty" yaml:"fill_delay,omitempty"`
	FillSteps    int     `json:"fill_steps,omitempty" yaml:"fill_steps,omitempty"`
}

// PairConfig describes one traded pair.
type PairConfig struct {
	ID              string  `json:"id" yaml:"id"`
	SymbolA         string  `json:"symbol_a" yaml:"symbol_a"`
	SymbolB         string  `json:"symbol_b" yaml:"symbol_b"`
	WindowSize      int     `json:"window_size" yaml:"window_size"`
	EntryThreshold  float64 `json:"entry_threshold" yaml:"entry_threshold"`
	ExitThreshold   float64 `json:"exit_threshold" yaml:"exit_threshold"`
	MaxHoldingTicks int     `json:"max_holding_ticks,omitempty" yaml:"max_holding_ticks,omitempty"`
	RiskBudget      float64 `json:"risk_budget,omitempty" yaml:"risk_budget,omitempty"`
}

type RiskConfig struct {
	MaxGrossExposure  float64 `json:"max_gross_exposure" yaml:"max_gross_exposure"`
	MaxPairNotional   float64 `json:"max_pair_notional" yaml:"max_pair_notional"`
	RiskBudgetPerPair float64 `json:"risk_budget_per_pair" yaml:"risk_budget_per_pair"`
	MaxDailyLoss      float64 `json:"max_daily_loss,omitempty" yaml:"max_daily_loss,omitempty"`
}

type ExecutionConfig struct {
	TickInterval     string `json:"tick_interval" yaml:"tick_interval"`
	MaxRetries       int    `json:"max_retries" yaml:"max_retries"`
	ReconcileTimeout string `json:"reconcile_timeout" yaml:"reconcile_timeout"`
	PollInterval     string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv", "sqlite" or "postgres"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

type LedgerConfig struct {
	SnapshotPath string `json:"snapshot_path,omitempty" yaml:"snapshot_path,omitempty"`
}

type AlertConfig struct {
	DiscordWebhookURL string `json:"discord_webhook_url,omitempty" yaml:"discord_webhook_url,omitempty"`
}

// LoadFromFile loads configuration from a file, trying YAML first and
// falling back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration, choosing the format by file
// extension (.yaml/.yml for YAML, everything else JSON).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration tree.
func (c *Config) Validate() error {
	if c.App.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(c.App.LogLevel)); err != nil {
			return fmt.Errorf("app.log_level: unknown level %q", c.App.LogLevel)
		}
	}

	switch c.Feed.Provider {
	case "stub", "binance":
	case "csv":
		if c.Feed.CSVDir == "" {
			return fmt.Errorf("feed.csv_dir is required for the csv provider")
		}
	default:
		return fmt.Errorf("feed.provider must be 'stub', 'csv' or 'binance'")
	}
	if err := checkDuration("feed.max_age", c.Feed.MaxAge); err != nil {
		return err
	}

	if c.Broker.Kind != "paper" {
		return fmt.Errorf("broker.kind must be 'paper'")
	}
	if c.Broker.StartingCash <= 0 {
		return fmt.Errorf("broker.starting_cash must be positive")
	}
	if err := checkDuration("broker.fill_delay", c.Broker.FillDelay); err != nil {
		return err
	}
	if c.Broker.FillSteps < 0 {
		return fmt.Errorf("broker.fill_steps must not be negative")
	}

	if len(c.Pairs) == 0 {
		return fmt.Errorf("at least one pair is required")
	}
	seen := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if p.ID == "" {
			return fmt.Errorf("pairs[%d].id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("pairs[%d].id %q is duplicated", i, p.ID)
		}
		seen[p.ID] = true
		if p.SymbolA == "" || p.SymbolB == "" {
			return fmt.Errorf("pair %s: symbol_a and symbol_b are required", p.ID)
		}
		if p.SymbolA == p.SymbolB {
			return fmt.Errorf("pair %s: legs must be different symbols", p.ID)
		}
		if p.WindowSize < 2 {
			return fmt.Errorf("pair %s: window_size must be at least 2", p.ID)
		}
		if p.EntryThreshold <= 0 {
			return fmt.Errorf("pair %s: entry_threshold must be positive", p.ID)
		}
		if p.ExitThreshold < 0 {
			return fmt.Errorf("pair %s: exit_threshold must not be negative", p.ID)
		}
		if p.ExitThreshold >= p.EntryThreshold {
			return fmt.Errorf("pair %s: exit_threshold must be below entry_threshold", p.ID)
		}
		if p.MaxHoldingTicks < 0 {
			return fmt.Errorf("pair %s: max_holding_ticks must not be negative", p.ID)
		}
		if p.RiskBudget < 0 {
			return fmt.Errorf("pair %s: risk_budget must not be negative", p.ID)
		}
	}

	if c.Risk.MaxGrossExposure <= 0 {
		return fmt.Errorf("risk.max_gross_exposure must be positive")
	}
	if c.Risk.MaxPairNotional <= 0 {
		return fmt.Errorf("risk.max_pair_notional must be positive")
	}
	if c.Risk.RiskBudgetPerPair <= 0 {
		return fmt.Errorf("risk.risk_budget_per_pair must be positive")
	}
	if c.Risk.MaxDailyLoss < 0 {
		return fmt.Errorf("risk.max_daily_loss must not be negative")
	}

	if err := checkDuration("execution.tick_interval", c.Execution.TickInterval); err != nil {
		return err
	}
	if err := checkDuration("execution.reconcile_timeout", c.Execution.ReconcileTimeout); err != nil {
		return err
	}
	if err := checkDuration("execution.poll_interval", c.Execution.PollInterval); err != nil {
		return err
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries must not be negative")
	}

	switch strings.ToLower(c.Journal.Type) {
	case "", journal.DriverNone:
	case journal.DriverCSV:
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for csv type")
		}
	case journal.DriverSQLite:
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite type")
		}
	case journal.DriverPostgres:
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal dsn required for postgres type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv', 'sqlite' or 'postgres'")
	}

	return nil
}

func checkDuration(field, s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: bad duration %q", field, s)
	}
	if d < 0 {
		return fmt.Errorf("%s: duration must not be negative", field)
	}
	return nil
}

func parseDur(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// TickInterval returns the loop cadence, one second by default.
func (c *Config) TickInterval() time.Duration {
	return parseDur(c.Execution.TickInterval, time.Second)
}

// ReconcileTimeout bounds fill polling, 30s by default.
func (c *Config) ReconcileTimeout() time.Duration {
	return parseDur(c.Execution.ReconcileTimeout, 30*time.Second)
}

// PollInterval spaces reconcile polls, 200ms by default.
func (c *Config) PollInterval() time.Duration {
	return parseDur(c.Execution.PollInterval, 200*time.Millisecond)
}

// FillDelay is the paper venue's simulated latency.
func (c *Config) FillDelay() time.Duration {
	return parseDur(c.Broker.FillDelay, 0)
}

// MaxAge is how stale a quote may be before the feed reports no data.
func (c *Config) MaxAge() time.Duration {
	return parseDur(c.Feed.MaxAge, time.Minute)
}

// StrategyName resolves the signal source registry name.
func (c *Config) StrategyName() string {
	if c.Strategy == "" {
		return strategy.DefaultStrategy
	}
	return c.Strategy
}

// PairParams maps the pair entries onto strategy parameters.
func (c *Config) PairParams() []strategy.PairParams {
	out := make([]strategy.PairParams, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		out = append(out, strategy.PairParams{
			ID:              p.ID,
			SymbolA:         p.SymbolA,
			SymbolB:         p.SymbolB,
			WindowSize:      p.WindowSize,
			EntryThreshold:  p.EntryThreshold,
			ExitThreshold:   p.ExitThreshold,
			MaxHoldingTicks: p.MaxHoldingTicks,
			Notional:        p.RiskBudget,
		})
	}
	return out
}

// Symbols lists every distinct symbol across all pairs.
func (c *Config) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.Pairs {
		for _, sym := range []string{p.SymbolA, p.SymbolB} {
			if !seen[sym] {
				seen[sym] = true
				out = append(out, sym)
			}
		}
	}
	return out
}

// Policy maps the risk section onto the manager's policy.
func (c *Config) Policy() risk.Policy {
	return risk.Policy{
		MaxGrossExposure:  c.Risk.MaxGrossExposure,
		MaxPairNotional:   c.Risk.MaxPairNotional,
		RiskBudgetPerPair: c.Risk.RiskBudgetPerPair,
		MaxDailyLoss:      c.Risk.MaxDailyLoss,
	}
}

// RunnerConfig maps the execution section onto the loop settings.
func (c *Config) RunnerConfig() runner.Config {
	return runner.Config{
		TickInterval:     c.TickInterval(),
		MaxRetries:       c.Execution.MaxRetries,
		ReconcileTimeout: c.ReconcileTimeout(),
		PollInterval:     c.PollInterval(),
		StartingCash:     c.Broker.StartingCash,
		SnapshotPath:     c.Ledger.SnapshotPath,
	}
}

// OpenJournal builds the configured journal backend, creating parent
// directories for file-backed ones.
func (c *Config) OpenJournal(ctx context.Context) (journal.Journal, error) {
	switch strings.ToLower(c.Journal.Type) {
	case "", journal.DriverNone:
		return journal.Nop{}, nil
	case journal.DriverCSV:
		for _, p := range []string{c.Journal.TradesFile, c.Journal.EquityFile} {
			if dir := filepath.Dir(p); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, err
				}
			}
		}
		return journal.NewCSV(c.Journal.TradesFile, c.Journal.EquityFile)
	case journal.DriverSQLite:
		return journal.Open(ctx, journal.DriverSQLite, c.Journal.DBPath)
	case journal.DriverPostgres:
		return journal.Open(ctx, journal.DriverPostgres, c.Journal.DSN)
	default:
		return nil, fmt.Errorf("journal.type %q not recognized", c.Journal.Type)
	}
}

// Default returns a runnable configuration: stub feed, paper broker,
// one liquid pair and a CSV journal.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "pairbot",
			LogLevel:    "info",
			MetricsAddr: ":2112",
		},
		Feed: FeedConfig{
			Provider: "stub",
			MaxAge:   "1m",
		},
		Broker: BrokerConfig{
			Kind:         "paper",
			StartingCash: 100000,
		},
		Strategy: strategy.DefaultStrategy,
		Pairs: []PairConfig{{
			ID:             "AAPL-MSFT",
			SymbolA:        "AAPL",
			SymbolB:        "MSFT",
			WindowSize:     120,
			EntryThreshold: 2.0,
			ExitThreshold:  0.5,
		}},
		Risk: RiskConfig{
			MaxGrossExposure:  100000,
			MaxPairNotional:   25000,
			RiskBudgetPerPair: 10000,
		},
		Execution: ExecutionConfig{
			TickInterval:     "1s",
			MaxRetries:       3,
			ReconcileTimeout: "30s",
			PollInterval:     "200ms",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./journal/trades.csv",
			EquityFile: "./journal/equity.csv",
		},
		Ledger: LedgerConfig{
			SnapshotPath: "./ledger.json",
		},
	}
}
