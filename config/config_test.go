package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evdnx/gaptrader/types"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateFailsFast(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"no timeframes", func(c *Config) { c.Timeframes = nil }},
		{"unsorted timeframes", func(c *Config) { c.Timeframes = []types.Timeframe{types.M15, types.M5} }},
		{"zero risk", func(c *Config) { c.Risk.PerTrade = 0 }},
		{"inverted lots", func(c *Config) { c.Risk.MaxAllowedLot = 0.001 }},
		{"zero lot step", func(c *Config) { c.Risk.LotStep = 0 }},
		{"slow not above fast", func(c *Config) { c.Strategy.SlowMAPeriod = c.Strategy.FastMAPeriod }},
		{"zero gap", func(c *Config) { c.Strategy.MinGapPercent = 0 }},
		{"daily loss out of range", func(c *Config) { c.Risk.DailyLossPercent = 101 }},
		{"bad session hour", func(c *Config) { c.Session.SundayOpenHour = 24 }},
		{"journal without filename", func(c *Config) { c.Journal.Filename = "" }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestSettingsForFallsBack(t *testing.T) {
	cfg := Default()
	set := cfg.SettingsFor("EURUSD")
	if set.SLFactor != cfg.Strategy.StopLossATRFactor {
		t.Fatalf("expected global sl factor, got %v", set.SLFactor)
	}
	if set.ATRFastPeriod != 8 {
		t.Fatalf("expected symbol atr override 8, got %d", set.ATRFastPeriod)
	}
	if set.PerUnitValue != 1.0 {
		t.Fatalf("expected default per-unit value 1.0, got %v", set.PerUnitValue)
	}

	unknown := cfg.SettingsFor("NZDUSD")
	if unknown.MinGapPercent != cfg.Strategy.MinGapPercent {
		t.Fatalf("unknown symbol should use global gap, got %v", unknown.MinGapPercent)
	}
	if unknown.RSIUpper != 70 || unknown.RSILower != 30 {
		t.Fatalf("unknown symbol should use default bands, got %v/%v", unknown.RSIUpper, unknown.RSILower)
	}
}

func TestSettingsForCommodity(t *testing.T) {
	cfg := Default()
	if !cfg.SettingsFor("XAUUSD").Commodity {
		t.Fatal("gold should be flagged commodity")
	}
	if cfg.SettingsFor("EURUSD").Commodity {
		t.Fatal("eurusd should not be flagged commodity")
	}
	if got := cfg.SettingsFor("USOIL").TrailingFactor; got != 2.0 {
		t.Fatalf("oil trailing factor: expected 2.0, got %v", got)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
symbols: [EURUSD, GBPUSD]
timeframes: [5, 15]
risk:
  per_trade: 25
session:
  enabled: false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "EURUSD" {
		t.Fatalf("symbols not overridden: %v", cfg.Symbols)
	}
	if cfg.Risk.PerTrade != 25 {
		t.Fatalf("per_trade not overridden: %v", cfg.Risk.PerTrade)
	}
	// Untouched leaves keep their defaults.
	if cfg.Risk.MaxGlobalTrades != 15 {
		t.Fatalf("expected default global cap 15, got %d", cfg.Risk.MaxGlobalTrades)
	}
	if cfg.Strategy.SlowMAPeriod != 360 {
		t.Fatalf("expected default slow period 360, got %d", cfg.Strategy.SlowMAPeriod)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("risk:\n  per_trade: -5\n"), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation failure for negative risk")
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("BROKER_ACCOUNT", "12345")
	t.Setenv("BROKER_PASSWORD", "secret")
	t.Setenv("BROKER_SERVER", "Broker-Demo")
	creds, err := CredentialsFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.Account != "12345" || creds.Server != "Broker-Demo" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	t.Setenv("BROKER_PASSWORD", "")
	if _, err := CredentialsFromEnv(); err == nil {
		t.Fatal("expected error for missing password")
	}
}
