package signal

import (
	"math"
	"testing"
	"time"

	"github.com/evdnx/gaptrader/config"
	"github.com/evdnx/gaptrader/indicator"
	"github.com/evdnx/gaptrader/types"
)

// longSetup is a snapshot that satisfies every long entry condition for a
// symbol with no per-symbol overrides (gap 0.8% against a 0.6% minimum).
func longSetup() indicator.Snapshot {
	return indicator.Snapshot{
		Symbol:    "TEST",
		Timeframe: types.M5,
		Close:     99.2,
		SlowMA:    100,
		FastMA:    99.0,
		RSI:       40,
		PrevRSI:   45,
		ATRFast:   0.5,
		ATRSlow:   0.8,
		Spread:    0.1,
		AvgSpread: 0.1,
		BarIndex:  400,
		Time:      time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
}

func shortSetup() indicator.Snapshot {
	snap := longSetup()
	snap.Close = 100.8
	snap.FastMA = 101.0
	snap.RSI = 60
	snap.PrevRSI = 55
	return snap
}

func newTestGenerator() *Generator {
	cfg := config.Default()
	return NewGenerator(&cfg)
}

func TestLongEntry(t *testing.T) {
	gen := newTestGenerator()
	snap := longSetup()

	sig, ok := gen.Evaluate(snap)
	if !ok {
		t.Fatal("expected a long signal")
	}
	if sig.Side != types.Buy {
		t.Fatalf("side: expected Buy, got %v", sig.Side)
	}
	if sig.Symbol != "TEST" || sig.Timeframe != types.M5 {
		t.Fatalf("pair mismatch: %s/%d", sig.Symbol, sig.Timeframe)
	}
	if sig.Price != snap.Close {
		t.Fatalf("price: expected %v, got %v", snap.Close, sig.Price)
	}
	// Default stop factor is 1.5 against fast ATR 0.5.
	if math.Abs(sig.StopDistance-0.75) > 1e-9 {
		t.Fatalf("stop distance: expected 0.75, got %v", sig.StopDistance)
	}
}

func TestShortEntryMirror(t *testing.T) {
	gen := newTestGenerator()

	sig, ok := gen.Evaluate(shortSetup())
	if !ok {
		t.Fatal("expected a short signal")
	}
	if sig.Side != types.Sell {
		t.Fatalf("side: expected Sell, got %v", sig.Side)
	}
}

func TestGapBelowThreshold(t *testing.T) {
	gen := newTestGenerator()
	snap := longSetup()
	snap.Close = 99.5 // gap 0.5%, under the 0.6% minimum

	if _, ok := gen.Evaluate(snap); ok {
		t.Fatal("sub-threshold gap must not fire")
	}
}

func TestEntryConditionsAreConjunctive(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*indicator.Snapshot)
	}{
		{"atr expanding", func(s *indicator.Snapshot) { s.ATRFast = 0.9 }},
		{"price below fast ma", func(s *indicator.Snapshot) { s.Close = 98.9; s.SlowMA = 102 }},
		{"rsi rising", func(s *indicator.Snapshot) { s.PrevRSI = 35 }},
		{"rsi at upper band", func(s *indicator.Snapshot) { s.RSI = 75; s.PrevRSI = 80 }},
	}
	for _, tc := range cases {
		gen := newTestGenerator()
		snap := longSetup()
		tc.mutate(&snap)
		if _, ok := gen.Evaluate(snap); ok {
			t.Fatalf("%s: long fired with a broken condition", tc.name)
		}
	}
}

func TestSpreadFilter(t *testing.T) {
	gen := newTestGenerator()
	snap := longSetup()
	snap.Spread = 0.4 // over avg 0.1 x multiplier 3

	if _, ok := gen.Evaluate(snap); ok {
		t.Fatal("widened spread must reject the candidate")
	}

	// A spread rejection never starts a cooldown.
	snap.Spread = 0.1
	snap.BarIndex++
	if _, ok := gen.Evaluate(snap); !ok {
		t.Fatal("expected signal once spread normalises")
	}
}

func TestCooldown(t *testing.T) {
	gen := newTestGenerator()
	snap := longSetup()

	if _, ok := gen.Evaluate(snap); !ok {
		t.Fatal("setup signal did not fire")
	}
	for _, delta := range []int{1, 3, 4} {
		again := longSetup()
		again.BarIndex = snap.BarIndex + delta
		if _, ok := gen.Evaluate(again); ok {
			t.Fatalf("signal fired %d bars after the last, inside cooldown", delta)
		}
	}
	again := longSetup()
	again.BarIndex = snap.BarIndex + 5
	if _, ok := gen.Evaluate(again); !ok {
		t.Fatal("expected signal once cooldown elapses")
	}
}

func TestCooldownIsPerPair(t *testing.T) {
	gen := newTestGenerator()

	if _, ok := gen.Evaluate(longSetup()); !ok {
		t.Fatal("m5 signal did not fire")
	}
	other := longSetup()
	other.Timeframe = types.M15
	if _, ok := gen.Evaluate(other); !ok {
		t.Fatal("cooldown leaked across timeframes")
	}
}

func TestDisabledSides(t *testing.T) {
	cfg := config.Default()
	cfg.Strategy.EnableBuy = false
	gen := NewGenerator(&cfg)
	if _, ok := gen.Evaluate(longSetup()); ok {
		t.Fatal("long fired with buys disabled")
	}

	cfg2 := config.Default()
	cfg2.Strategy.EnableSell = false
	gen = NewGenerator(&cfg2)
	if _, ok := gen.Evaluate(shortSetup()); ok {
		t.Fatal("short fired with sells disabled")
	}
}

func TestSymbolOverrideRaisesGapBar(t *testing.T) {
	gen := newTestGenerator()
	snap := longSetup()
	snap.Symbol = "US30" // per-symbol minimum gap is 0.8%
	snap.Close = 99.3    // gap 0.7%

	if _, ok := gen.Evaluate(snap); ok {
		t.Fatal("gap under the symbol override must not fire")
	}
	snap.Close = 99.1 // gap 0.9%
	if _, ok := gen.Evaluate(snap); !ok {
		t.Fatal("expected signal above the symbol override")
	}
}
