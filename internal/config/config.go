package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// StrategyConfig holds the per-strategy knobs. Loaded once per session and
// treated as immutable afterwards.
type StrategyConfig struct {
	Enabled            bool    `yaml:"enabled"`
	UseSignalChange    bool    `yaml:"use_signal_change"`
	UseStopLoss        bool    `yaml:"use_stop_loss"`
	UseTakeProfit      bool    `yaml:"use_take_profit"`
	UseTrailingStop    bool    `yaml:"use_trailing_stop"`
	UsePatternReversal bool    `yaml:"use_pattern_reversal"`
	UseATRForSLTP      bool    `yaml:"use_atr_for_sl_tp"`
	ATRSLMultiplier    float64 `yaml:"atr_sl_multiplier"`
	ATRTPMultiplier    float64 `yaml:"atr_tp_multiplier"`
	ATRTrailMultiplier float64 `yaml:"atr_trailing_multiplier"`
	FixedSLPips        float64 `yaml:"fixed_sl_pips"`
	FixedTPPips        float64 `yaml:"fixed_tp_pips"`
}

// Config holds all application configuration.
type Config struct {
	Session struct {
		Symbol             string  `yaml:"symbol"`
		MoneyLimit         float64 `yaml:"money_limit"`
		RiskPerTradePct    float64 `yaml:"risk_per_trade_percent"`
		DailyProfitLimit   float64 `yaml:"daily_profit_limit"` // 0 disables the cap
		MaxOrdersPerCandle int     `yaml:"max_orders_per_candle"`
	} `yaml:"session"`
	Broker struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		ConnectRetries int    `yaml:"connect_retries"`
	} `yaml:"broker"`
	Monitor struct {
		Interval string `yaml:"interval"` // cron @every duration, e.g. "2s"
	} `yaml:"monitor"`
	Ledger struct {
		JSONLPath  string `yaml:"jsonl_path"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"ledger"`
	Notifier struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"notifier"`
	Backtest struct {
		HoldPeriod int     `yaml:"hold_period"`
		PipValue   float64 `yaml:"pip_value"`
	} `yaml:"backtest"`
	Strategies map[string]StrategyConfig `yaml:"strategies"`
	Proxy      string                    `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("BROKER_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Session.Symbol = v
	}
	if v := os.Getenv("MONEY_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.MoneyLimit = f
		}
	}
	if v := os.Getenv("RISK_PER_TRADE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.RiskPerTradePct = f
		}
	}
	if v := os.Getenv("DAILY_PROFIT_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Session.DailyProfitLimit = f
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Ledger.SQLitePath = v
	}
	if v := os.Getenv("AUDIT_JSONL_PATH"); v != "" {
		cfg.Ledger.JSONLPath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Session.Symbol == "" {
		cfg.Session.Symbol = "EURUSD"
	}
	if cfg.Session.RiskPerTradePct == 0 {
		cfg.Session.RiskPerTradePct = 1.0
	}
	if cfg.Session.MaxOrdersPerCandle == 0 {
		cfg.Session.MaxOrdersPerCandle = 2
	}
	if cfg.Broker.ConnectRetries == 0 {
		cfg.Broker.ConnectRetries = 3
	}
	if cfg.Monitor.Interval == "" {
		cfg.Monitor.Interval = "2s"
	}
	if cfg.Backtest.HoldPeriod == 0 {
		cfg.Backtest.HoldPeriod = 10
	}
	if cfg.Backtest.PipValue == 0 {
		cfg.Backtest.PipValue = 10
	}

	return cfg, nil
}

// Validate checks that all required fields are set and that risk values are
// sane. Invalid values are rejected outright, never clamped.
func (c *Config) Validate() error {
	if c.Session.Symbol == "" {
		return fmt.Errorf("session.symbol is required")
	}
	if c.Session.MoneyLimit < 0 {
		return fmt.Errorf("session.money_limit must not be negative, got %v", c.Session.MoneyLimit)
	}
	if c.Session.RiskPerTradePct < 0 {
		return fmt.Errorf("session.risk_per_trade_percent must not be negative, got %v", c.Session.RiskPerTradePct)
	}
	if c.Session.DailyProfitLimit < 0 {
		return fmt.Errorf("session.daily_profit_limit must not be negative, got %v", c.Session.DailyProfitLimit)
	}
	if c.Session.MaxOrdersPerCandle < 1 {
		return fmt.Errorf("session.max_orders_per_candle must be at least 1, got %d", c.Session.MaxOrdersPerCandle)
	}
	if c.Backtest.HoldPeriod < 1 {
		return fmt.Errorf("backtest.hold_period must be at least 1, got %d", c.Backtest.HoldPeriod)
	}
	for name, sc := range c.Strategies {
		if sc.ATRSLMultiplier < 0 || sc.ATRTPMultiplier < 0 || sc.ATRTrailMultiplier < 0 {
			return fmt.Errorf("strategies.%s: ATR multipliers must not be negative", name)
		}
		if sc.FixedSLPips < 0 || sc.FixedTPPips < 0 {
			return fmt.Errorf("strategies.%s: fixed pip distances must not be negative", name)
		}
	}
	return nil
}

// Strategy returns the config for a named strategy, falling back to a
// conservative default when the strategy has no explicit section.
func (c *Config) Strategy(name string) StrategyConfig {
	if sc, ok := c.Strategies[name]; ok {
		return sc
	}
	return StrategyConfig{
		UseStopLoss:     true,
		UseTakeProfit:   true,
		ATRSLMultiplier: 1.5,
		ATRTPMultiplier: 2.0,
		FixedSLPips:     30,
		FixedTPPips:     60,
	}
}
