// Package config exposes the immutable, strongly typed configuration for the
// trading engine, loaded from YAML once at startup.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/evdnx/gaptrader/types"
)

// SymbolSettings overrides strategy parameters for a single instrument.
// Zero fields fall back to the global defaults (see SettingsFor).
type SymbolSettings struct {
	SLFactor       float64 `yaml:"sl_factor"`
	MinGapPercent  float64 `yaml:"min_gap_percent"`
	ATRFastPeriod  int     `yaml:"atr_fast_period"`
	ATRSlowPeriod  int     `yaml:"atr_slow_period"`
	RSIUpper       float64 `yaml:"rsi_upper"`
	RSILower       float64 `yaml:"rsi_lower"`
	TrailingFactor float64 `yaml:"trailing_factor"`
	// PerUnitValue is the account-currency value of a one-point move for one
	// lot. Broker dependent; 1.0 for the USD-quoted crypto pairs.
	PerUnitValue float64 `yaml:"per_unit_value"`
	// PipSize is the price increment of one pip for the instrument.
	PipSize float64 `yaml:"pip_size"`
	// Commodity symbols get an additional ATR trailing overlay.
	Commodity bool `yaml:"commodity"`
}

// Risk groups the capital-preservation parameters.
type Risk struct {
	PerTrade           float64 `yaml:"per_trade"`            // fixed dollar risk per position
	RewardRatio        float64 `yaml:"reward_ratio"`         // take-profit = ratio x stop distance
	MinLot             float64 `yaml:"min_lot"`
	MaxAllowedLot      float64 `yaml:"max_allowed_lot"`
	LotStep            float64 `yaml:"lot_step"`
	Tolerance          float64 `yaml:"tolerance"`            // allowed over-risk from lot rounding
	MaxGlobalTrades    int     `yaml:"max_global_trades"`
	MaxTradesPerPair   int     `yaml:"max_trades_per_pair"`
	DailyLossPercent   float64 `yaml:"daily_loss_percent"`
	MaxDrawdownPercent float64 `yaml:"max_drawdown_percent"`
}

// Strategy groups the indicator and entry-rule parameters.
type Strategy struct {
	SlowMAPeriod        int     `yaml:"slow_ma_period"`
	FastMAPeriod        int     `yaml:"fast_ma_period"`
	RSIPeriod           int     `yaml:"rsi_period"`
	ATRFastPeriod       int     `yaml:"atr_fast_period"`
	ATRSlowPeriod       int     `yaml:"atr_slow_period"`
	MinGapPercent       float64 `yaml:"min_gap_percent"`
	StopLossATRFactor   float64 `yaml:"stop_loss_atr_factor"`
	TrailingATRFactor   float64 `yaml:"trailing_atr_factor"`
	MaxSpreadMultiplier float64 `yaml:"max_spread_multiplier"`
	MinBarsBetween      int     `yaml:"min_bars_between_trades"`
	EnableBuy           bool    `yaml:"enable_buy"`
	EnableSell          bool    `yaml:"enable_sell"`
	LimitOrderDistance  float64 `yaml:"limit_order_distance"` // pips from market
	ExpirationBars      int     `yaml:"expiration_bars"`
}

// Session configures the weekly trading window.
type Session struct {
	Enabled        bool   `yaml:"enabled"`
	Timezone       string `yaml:"timezone"` // IANA name, e.g. Africa/Lagos
	SundayOpenHour int    `yaml:"sunday_open_hour"`
	SundayOpenMin  int    `yaml:"sunday_open_min"`
	FridayCloseHour int   `yaml:"friday_close_hour"`
	FridayCloseMin  int   `yaml:"friday_close_min"`
}

// Journal configures the append-only trade journal sink.
type Journal struct {
	Enabled  bool   `yaml:"enabled"`
	Filename string `yaml:"filename"`
}

// Config collects every configuration leaf. Read-only after Load.
type Config struct {
	Symbols        []string                  `yaml:"symbols"`
	Timeframes     []types.Timeframe         `yaml:"timeframes"`
	Risk           Risk                      `yaml:"risk"`
	Strategy       Strategy                  `yaml:"strategy"`
	Session        Session                   `yaml:"session"`
	Journal        Journal                   `yaml:"journal"`
	SymbolSettings map[string]SymbolSettings `yaml:"symbol_settings"`

	BaseMagic    int64  `yaml:"base_magic"`
	PollSeconds  int    `yaml:"poll_seconds"`
	CallTimeoutMS int   `yaml:"call_timeout_ms"`
	MetricsAddr  string `yaml:"metrics_addr"`
	FeedURL      string `yaml:"feed_url"`
}

// Credentials carry the brokerage login, sourced from the environment so
// they never live in the YAML file.
type Credentials struct {
	Account  string
	Password string
	Server   string
}

// CredentialsFromEnv reads the broker login from the environment. The cmd
// layer loads a .env file first via godotenv.
func CredentialsFromEnv() (Credentials, error) {
	c := Credentials{
		Account:  os.Getenv("BROKER_ACCOUNT"),
		Password: os.Getenv("BROKER_PASSWORD"),
		Server:   os.Getenv("BROKER_SERVER"),
	}
	if c.Account == "" || c.Password == "" || c.Server == "" {
		return Credentials{}, errors.New("broker credentials not configured (BROKER_ACCOUNT/BROKER_PASSWORD/BROKER_SERVER)")
	}
	return c, nil
}

// Load reads a YAML file from disk and hydrates a validated Config.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the baseline parameter set the strategy was tuned with.
func Default() Config {
	return Config{
		Symbols:    []string{"XAUUSD", "BTCUSD", "US30", "USDJPY", "GBPJPY", "EURGBP", "ETHUSD", "USOIL", "AUDJPY", "XAGUSD", "EURUSD", "GBPUSD"},
		Timeframes: []types.Timeframe{types.M5, types.M15, types.M30},
		Risk: Risk{
			PerTrade:           50,
			RewardRatio:        5,
			MinLot:             0.01,
			MaxAllowedLot:      1.0,
			LotStep:            0.01,
			Tolerance:          0.05,
			MaxGlobalTrades:    15,
			MaxTradesPerPair:   1,
			DailyLossPercent:   5.0,
			MaxDrawdownPercent: 10.0,
		},
		Strategy: Strategy{
			SlowMAPeriod:        360,
			FastMAPeriod:        20,
			RSIPeriod:           20,
			ATRFastPeriod:       10,
			ATRSlowPeriod:       20,
			MinGapPercent:       0.6,
			StopLossATRFactor:   1.5,
			TrailingATRFactor:   1.0,
			MaxSpreadMultiplier: 3.0,
			MinBarsBetween:      5,
			EnableBuy:           true,
			EnableSell:          true,
			LimitOrderDistance:  2.0,
			ExpirationBars:      5,
		},
		Session: Session{
			Enabled:         true,
			Timezone:        "Africa/Lagos",
			SundayOpenHour:  22,
			SundayOpenMin:   15,
			FridayCloseHour: 21,
			FridayCloseMin:  45,
		},
		Journal: Journal{
			Enabled:  true,
			Filename: "TradeJournal.csv",
		},
		SymbolSettings: map[string]SymbolSettings{
			"XAUUSD": {SLFactor: 2.0, RSIUpper: 70, RSILower: 30, TrailingFactor: 1.0, PipSize: 0.1, Commodity: true},
			"XAGUSD": {SLFactor: 2.0, RSIUpper: 70, RSILower: 30, TrailingFactor: 1.0, PipSize: 0.01, Commodity: true},
			"USOIL":  {RSIUpper: 70, RSILower: 30, TrailingFactor: 2.0, PipSize: 0.01, Commodity: true},
			"BTCUSD": {RSIUpper: 75, RSILower: 25, PerUnitValue: 1.0, PipSize: 1.0},
			"ETHUSD": {RSIUpper: 75, RSILower: 25, PerUnitValue: 1.0, PipSize: 0.1},
			"US30":   {MinGapPercent: 0.8, RSIUpper: 70, RSILower: 30, PipSize: 1.0},
			"USDJPY": {ATRFastPeriod: 8, ATRSlowPeriod: 14, RSIUpper: 70, RSILower: 30, PipSize: 0.01},
			"GBPJPY": {ATRFastPeriod: 8, ATRSlowPeriod: 14, RSIUpper: 70, RSILower: 30, PipSize: 0.01},
			"AUDJPY": {ATRFastPeriod: 8, ATRSlowPeriod: 14, RSIUpper: 70, RSILower: 30, PipSize: 0.01},
			"EURGBP": {ATRFastPeriod: 8, ATRSlowPeriod: 14, RSIUpper: 70, RSILower: 30},
			"EURUSD": {ATRFastPeriod: 8, ATRSlowPeriod: 14, RSIUpper: 70, RSILower: 30},
			"GBPUSD": {ATRFastPeriod: 8, ATRSlowPeriod: 14, RSIUpper: 70, RSILower: 30},
		},
		BaseMagic:     10000,
		PollSeconds:   5,
		CallTimeoutMS: 5000,
		MetricsAddr:   ":9090",
	}
}

// SettingsFor resolves the effective per-symbol settings, filling zero
// overrides with the global strategy defaults.
func (c *Config) SettingsFor(symbol string) SymbolSettings {
	s := c.SymbolSettings[symbol]
	if s.SLFactor == 0 {
		s.SLFactor = c.Strategy.StopLossATRFactor
	}
	if s.MinGapPercent == 0 {
		s.MinGapPercent = c.Strategy.MinGapPercent
	}
	if s.ATRFastPeriod == 0 {
		s.ATRFastPeriod = c.Strategy.ATRFastPeriod
	}
	if s.ATRSlowPeriod == 0 {
		s.ATRSlowPeriod = c.Strategy.ATRSlowPeriod
	}
	if s.RSIUpper == 0 {
		s.RSIUpper = 70
	}
	if s.RSILower == 0 {
		s.RSILower = 30
	}
	if s.TrailingFactor == 0 {
		s.TrailingFactor = c.Strategy.TrailingATRFactor
	}
	if s.PerUnitValue == 0 {
		s.PerUnitValue = 1.0
	}
	if s.PipSize == 0 {
		s.PipSize = 0.0001
	}
	return s
}

// Validate checks that all fields are within sensible bounds. It returns the
// first encountered error so the caller can surface a clear configuration
// problem before any trading starts.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("no symbols configured")
	}
	if len(c.Timeframes) == 0 {
		return errors.New("no timeframes configured")
	}
	for i := 1; i < len(c.Timeframes); i++ {
		if c.Timeframes[i] <= c.Timeframes[i-1] {
			return errors.New("timeframes must be strictly ascending")
		}
	}
	if c.Risk.PerTrade <= 0 {
		return fmt.Errorf("risk per_trade (%v) must be positive", c.Risk.PerTrade)
	}
	if c.Risk.RewardRatio <= 0 {
		return fmt.Errorf("risk reward_ratio (%v) must be positive", c.Risk.RewardRatio)
	}
	if c.Risk.MinLot <= 0 || c.Risk.MaxAllowedLot < c.Risk.MinLot {
		return fmt.Errorf("lot bounds invalid: min %v max %v", c.Risk.MinLot, c.Risk.MaxAllowedLot)
	}
	if c.Risk.LotStep <= 0 {
		return errors.New("risk lot_step must be positive")
	}
	if c.Risk.Tolerance < 0 {
		return errors.New("risk tolerance cannot be negative")
	}
	if c.Risk.MaxGlobalTrades <= 0 || c.Risk.MaxTradesPerPair <= 0 {
		return errors.New("trade caps must be positive")
	}
	if c.Risk.DailyLossPercent <= 0 || c.Risk.DailyLossPercent > 100 {
		return fmt.Errorf("daily_loss_percent (%v) out of range", c.Risk.DailyLossPercent)
	}
	if c.Risk.MaxDrawdownPercent <= 0 || c.Risk.MaxDrawdownPercent > 100 {
		return fmt.Errorf("max_drawdown_percent (%v) out of range", c.Risk.MaxDrawdownPercent)
	}
	if c.Strategy.SlowMAPeriod <= c.Strategy.FastMAPeriod {
		return errors.New("slow_ma_period must exceed fast_ma_period")
	}
	if c.Strategy.FastMAPeriod <= 0 || c.Strategy.RSIPeriod <= 0 ||
		c.Strategy.ATRFastPeriod <= 0 || c.Strategy.ATRSlowPeriod <= 0 {
		return errors.New("indicator periods must be positive")
	}
	if c.Strategy.MinGapPercent <= 0 {
		return errors.New("min_gap_percent must be positive")
	}
	if c.Strategy.MaxSpreadMultiplier <= 0 {
		return errors.New("max_spread_multiplier must be positive")
	}
	if c.Strategy.MinBarsBetween < 0 {
		return errors.New("min_bars_between_trades cannot be negative")
	}
	if c.Strategy.ExpirationBars <= 0 {
		return errors.New("expiration_bars must be positive")
	}
	if c.Session.Enabled {
		if c.Session.Timezone == "" {
			return errors.New("session timezone required when session enabled")
		}
		if c.Session.SundayOpenHour < 0 || c.Session.SundayOpenHour > 23 ||
			c.Session.FridayCloseHour < 0 || c.Session.FridayCloseHour > 23 ||
			c.Session.SundayOpenMin < 0 || c.Session.SundayOpenMin > 59 ||
			c.Session.FridayCloseMin < 0 || c.Session.FridayCloseMin > 59 {
			return errors.New("session open/close time out of range")
		}
	}
	if c.Journal.Enabled && c.Journal.Filename == "" {
		return errors.New("journal filename required when journal enabled")
	}
	if c.PollSeconds <= 0 {
		return errors.New("poll_seconds must be positive")
	}
	if c.CallTimeoutMS <= 0 {
		return errors.New("call_timeout_ms must be positive")
	}
	return nil
}
