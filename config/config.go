// Package config loads run configuration from YAML or JSON files, in that
// order of preference, and validates it before any bar processing begins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/backtester/sim"
)

// Config is the complete run configuration.
type Config struct {
	Broker   BrokerConfig   `json:"broker" yaml:"broker"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
}

// BrokerConfig maps onto sim.Config.
type BrokerConfig struct {
	Cash             float64 `json:"cash" yaml:"cash"`
	CommissionRate   float64 `json:"commission_rate" yaml:"commission_rate"`
	CommissionFixed  float64 `json:"commission_fixed" yaml:"commission_fixed"`
	Spread           float64 `json:"spread" yaml:"spread"`
	Slippage         float64 `json:"slippage" yaml:"slippage"`
	Leverage         float64 `json:"leverage" yaml:"leverage"`
	TradeOnClose     bool    `json:"trade_on_close" yaml:"trade_on_close"`
	Hedging          bool    `json:"hedging" yaml:"hedging"`
	ExclusiveOrders  bool    `json:"exclusive_orders" yaml:"exclusive_orders"`
	FractionalSizing bool    `json:"fractional_sizing" yaml:"fractional_sizing"`
	TiePolicy        string  `json:"tie_policy" yaml:"tie_policy"` // "stop-first" or "take-first"
}

// StrategyConfig selects and parameterizes the built-in strategy.
type StrategyConfig struct {
	Name    string  `json:"name" yaml:"name"`
	Fast    int     `json:"fast" yaml:"fast"`
	Slow    int     `json:"slow" yaml:"slow"`
	RiskPct float64 `json:"risk_percent" yaml:"risk_percent"`
	RR      float64 `json:"risk_reward" yaml:"risk_reward"`
}

// JournalConfig selects the persistence backend.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads a config file, trying YAML first and JSON second.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the config as YAML (or JSON for .json paths).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// SimConfig converts the broker section into the engine's config type.
func (c *Config) SimConfig() (sim.Config, error) {
	out := sim.Config{
		Cash:             c.Broker.Cash,
		CommissionRate:   c.Broker.CommissionRate,
		CommissionFixed:  c.Broker.CommissionFixed,
		Spread:           c.Broker.Spread,
		Slippage:         c.Broker.Slippage,
		Leverage:         c.Broker.Leverage,
		TradeOnClose:     c.Broker.TradeOnClose,
		Hedging:          c.Broker.Hedging,
		ExclusiveOrders:  c.Broker.ExclusiveOrders,
		FractionalSizing: c.Broker.FractionalSizing,
	}

	switch c.Broker.TiePolicy {
	case "", "stop-first":
		out.TiePolicy = sim.StopFirst
	case "take-first":
		out.TiePolicy = sim.TakeFirst
	default:
		return sim.Config{}, fmt.Errorf("broker.tie_policy must be 'stop-first' or 'take-first', got %q", c.Broker.TiePolicy)
	}

	return out, out.Validate()
}

// Validate checks the whole file.
func (c *Config) Validate() error {
	if _, err := c.SimConfig(); err != nil {
		return err
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Cash:     10_000,
			Leverage: 1,
		},
		Strategy: StrategyConfig{
			Name:    "sma-cross",
			Fast:    10,
			Slow:    30,
			RiskPct: 0.2,
			RR:      2,
		},
		Journal: JournalConfig{
			Type: "none",
		},
	}
}
