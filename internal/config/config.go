// Package config defines all configuration for the market-making engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// credentials overridable via MM_* environment variables. Unknown keys in
// the file are rejected rather than silently ignored.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly onto the YAML file
// structure, one group per external-interfaces table entry.
type Config struct {
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Timing    TimingConfig    `mapstructure:"timing"`
	Flow      FlowConfig      `mapstructure:"flow"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// ExchangeConfig selects and authenticates the adapter. Name picks the
// registered constructor (exchange.New); rest_url/ws_url/credentials are
// passed through to it.
type ExchangeConfig struct {
	Name        string `mapstructure:"name"`
	RESTURL     string `mapstructure:"rest_url"`
	WSURL       string `mapstructure:"ws_url"`
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
}

// TradingConfig identifies the instrument and toggles dry-run.
type TradingConfig struct {
	Symbol      string `mapstructure:"symbol"`
	PaperTrading bool  `mapstructure:"paper_trading"`
}

// StrategyConfig holds the quoting parameters shared by every Quoter
// variant (internal/strategy.Params). Variant is selected separately so
// one config file can switch between baseline/inventory-adjusted/
// Avellaneda-Stoikov without touching these fields.
type StrategyConfig struct {
	Variant          string  `mapstructure:"variant"`
	MinSpreadBps     float64 `mapstructure:"min_spread_bps"`
	MaxSpreadBps     float64 `mapstructure:"max_spread_bps"`
	TargetSpreadBps  float64 `mapstructure:"target_spread_bps"`
	InventorySkew    float64 `mapstructure:"inventory_skew"`
	InventoryTarget  float64 `mapstructure:"inventory_target"`
	DefaultOrderSize float64 `mapstructure:"default_order_size"`
	MinOrderSize     float64 `mapstructure:"min_order_size"`
	MaxOrderSize     float64 `mapstructure:"max_order_size"`
	TickSize         float64 `mapstructure:"tick_size"`
	MaxPosition      float64 `mapstructure:"max_position"`

	// Avellaneda-Stoikov-only knobs; ignored by the other two variants.
	Gamma float64 `mapstructure:"as_gamma"`
	Sigma float64 `mapstructure:"as_sigma"`
	K     float64 `mapstructure:"as_k"`
	T     float64 `mapstructure:"as_t"`
}

// RiskConfig sets the pre-trade gate's hard limits (internal/risk.Limits).
type RiskConfig struct {
	MaxPositionQty    float64 `mapstructure:"max_position_qty"`
	MaxPositionValue  float64 `mapstructure:"max_position_value"`
	MaxOrderQty       float64 `mapstructure:"max_order_qty"`
	MaxOrderValue     float64 `mapstructure:"max_order_value"`
	MaxOrdersPerSecond int64  `mapstructure:"max_orders_per_second"`
	MaxOpenOrders     int64   `mapstructure:"max_open_orders"`
	MaxDailyLoss      float64 `mapstructure:"max_daily_loss"`
	MaxDrawdown       float64 `mapstructure:"max_drawdown"`
	MaxDeviationBps   int64   `mapstructure:"max_deviation_bps"`
	ErrorThreshold    int64   `mapstructure:"error_threshold"`
	RejectThreshold   int64   `mapstructure:"reject_threshold"`
}

// TimingConfig gates how often the strategy recomputes and replaces
// quotes, and how long a hedge attempt may take before it is abandoned.
type TimingConfig struct {
	QuoteRefreshUs int64 `mapstructure:"quote_refresh_us"`
	MinQuoteLifeUs int64 `mapstructure:"min_quote_life_us"`
	HedgeTimeoutUs int64 `mapstructure:"hedge_timeout_us"`
}

// FlowConfig tunes the toxic-flow detector that widens quotes after a
// burst of one-sided fills (internal/strategy.FlowTracker). MaxWidenBps of
// 0 disables the detector.
type FlowConfig struct {
	WindowSeconds     int64   `mapstructure:"window_seconds"`
	ToxicityThreshold float64 `mapstructure:"toxicity_threshold"`
	CooldownSeconds   int64   `mapstructure:"cooldown_seconds"`
	MaxWidenBps       float64 `mapstructure:"max_widen_bps"`
}

// StoreConfig sets where position data is persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the read-only snapshot/metrics HTTP server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides for
// credentials, rejecting any key in the file that doesn't map onto a
// known field. Load only parses and unmarshals; the caller applies any
// --testnet endpoint swap and then calls Validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("MM_EXCHANGE_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("MM_EXCHANGE_API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}
	if os.Getenv("MM_TRADING_PAPER_TRADING") == "true" || os.Getenv("MM_TRADING_PAPER_TRADING") == "1" {
		cfg.Trading.PaperTrading = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.Name == "" {
		return fmt.Errorf("exchange.name is required")
	}
	if !c.Trading.PaperTrading && c.Exchange.RESTURL == "" {
		return fmt.Errorf("exchange.rest_url is required unless trading.paper_trading is set")
	}
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Strategy.TargetSpreadBps <= 0 {
		return fmt.Errorf("strategy.target_spread_bps must be > 0")
	}
	if c.Strategy.DefaultOrderSize <= 0 {
		return fmt.Errorf("strategy.default_order_size must be > 0")
	}
	if c.Risk.MaxPositionQty <= 0 {
		return fmt.Errorf("risk.max_position_qty must be > 0")
	}
	if c.Risk.MaxOrderQty <= 0 {
		return fmt.Errorf("risk.max_order_qty must be > 0")
	}
	if c.Risk.MaxOrdersPerSecond <= 0 {
		return fmt.Errorf("risk.max_orders_per_second must be > 0")
	}
	if c.Risk.ErrorThreshold <= 0 {
		return fmt.Errorf("risk.error_threshold must be > 0")
	}
	if c.Risk.RejectThreshold <= 0 {
		return fmt.Errorf("risk.reject_threshold must be > 0")
	}
	return nil
}
