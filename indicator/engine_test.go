package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/evdnx/gaptrader/config"
	"github.com/evdnx/gaptrader/testutils"
	"github.com/evdnx/gaptrader/types"
)

// testConfig shrinks the indicator windows so warm-up stays readable.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Strategy.SlowMAPeriod = 5
	cfg.Strategy.FastMAPeriod = 3
	cfg.Strategy.RSIPeriod = 3
	cfg.Strategy.ATRFastPeriod = 2
	cfg.Strategy.ATRSlowPeriod = 3
	return &cfg
}

var t0 = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func TestWarmupGating(t *testing.T) {
	eng := NewEngine(testConfig())
	bars := testutils.MakeBars("TEST", types.M5, t0, []float64{1, 2, 3, 4, 5, 6})

	for i, bar := range bars[:4] {
		_, ok, err := eng.Update(bar, 0.1)
		if err != nil {
			t.Fatalf("bar %d: unexpected error %v", i, err)
		}
		if ok {
			t.Fatalf("bar %d: snapshot before slow window populated", i)
		}
	}
	snap, ok, err := eng.Update(bars[4], 0.1)
	if err != nil {
		t.Fatalf("bar 5: %v", err)
	}
	if !ok {
		t.Fatal("expected first snapshot once slow window is full")
	}
	if snap.SlowMA != 3 { // SMA seed of 1..5
		t.Fatalf("slow seed: expected 3, got %v", snap.SlowMA)
	}
	if snap.BarIndex != 5 {
		t.Fatalf("bar index: expected 5, got %d", snap.BarIndex)
	}

	snap, ok, err = eng.Update(bars[5], 0.1)
	if err != nil || !ok {
		t.Fatalf("bar 6: ok=%v err=%v", ok, err)
	}
	// EMA recurrence: 3 + (6-3)*2/6 = 4.
	if math.Abs(snap.SlowMA-4) > 1e-9 {
		t.Fatalf("slow ema: expected 4, got %v", snap.SlowMA)
	}
}

func TestRejectsNonMonotonicBars(t *testing.T) {
	eng := NewEngine(testConfig())
	bars := testutils.MakeBars("TEST", types.M5, t0, []float64{1, 2})

	if _, _, err := eng.Update(bars[1], 0); err != nil {
		t.Fatalf("first bar: %v", err)
	}
	if _, _, err := eng.Update(bars[1], 0); !errors.Is(err, ErrStaleBar) {
		t.Fatalf("duplicate timestamp: expected ErrStaleBar, got %v", err)
	}
	if _, _, err := eng.Update(bars[0], 0); !errors.Is(err, ErrStaleBar) {
		t.Fatalf("past timestamp: expected ErrStaleBar, got %v", err)
	}
	// The pair clock is untouched by rejected bars.
	if got := eng.BarIndex("TEST", types.M5); got != 1 {
		t.Fatalf("bar index after rejects: expected 1, got %d", got)
	}
}

func TestPairsAreIndependent(t *testing.T) {
	eng := NewEngine(testConfig())
	bars5 := testutils.MakeBars("TEST", types.M5, t0, []float64{1, 2, 3})
	bars15 := testutils.MakeBars("TEST", types.M15, t0, []float64{1})

	for _, b := range bars5 {
		if _, _, err := eng.Update(b, 0); err != nil {
			t.Fatalf("m5 update: %v", err)
		}
	}
	if _, _, err := eng.Update(bars15[0], 0); err != nil {
		t.Fatalf("m15 must keep its own clock: %v", err)
	}
	if eng.BarIndex("TEST", types.M5) != 3 || eng.BarIndex("TEST", types.M15) != 1 {
		t.Fatalf("bar indexes crossed pairs: m5=%d m15=%d",
			eng.BarIndex("TEST", types.M5), eng.BarIndex("TEST", types.M15))
	}
}

func TestGapSign(t *testing.T) {
	below := Snapshot{SlowMA: 100, Close: 99.2}
	if g := below.Gap(); math.Abs(g-0.8) > 1e-9 {
		t.Fatalf("price below anchor: expected gap 0.8, got %v", g)
	}
	above := Snapshot{SlowMA: 100, Close: 100.6}
	if g := above.Gap(); math.Abs(g+0.6) > 1e-9 {
		t.Fatalf("price above anchor: expected gap -0.6, got %v", g)
	}
	if (Snapshot{}).Gap() != 0 {
		t.Fatal("zero slow average must yield zero gap, not a division blowup")
	}
}

func TestRSIDirectionTracked(t *testing.T) {
	eng := NewEngine(testConfig())
	closes := []float64{100, 101, 102, 103, 104, 103, 102}
	bars := testutils.MakeBars("TEST", types.M5, t0, closes)

	var last Snapshot
	for _, b := range bars {
		snap, ok, err := eng.Update(b, 0)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if ok {
			last = snap
		}
	}
	// Two losing bars at the tail: RSI must be falling.
	if !(last.PrevRSI > last.RSI) {
		t.Fatalf("expected falling rsi, prev=%v cur=%v", last.PrevRSI, last.RSI)
	}
	if last.RSI < 0 || last.RSI > 100 {
		t.Fatalf("rsi out of range: %v", last.RSI)
	}
}

func TestATRPositiveAfterWarmup(t *testing.T) {
	eng := NewEngine(testConfig())
	bars := testutils.MakeBars("TEST", types.M5, t0, []float64{10, 11, 12, 11, 10, 11})

	var snap Snapshot
	var ready bool
	for _, b := range bars {
		s, ok, err := eng.Update(b, 0.05)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if ok {
			snap, ready = s, true
		}
	}
	if !ready {
		t.Fatal("expected a snapshot after warm-up")
	}
	if snap.ATRFast <= 0 || snap.ATRSlow <= 0 {
		t.Fatalf("atr must be positive: fast=%v slow=%v", snap.ATRFast, snap.ATRSlow)
	}
	if snap.AvgSpread <= 0 {
		t.Fatalf("spread average missing: %v", snap.AvgSpread)
	}
}
