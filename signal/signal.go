// Package signal turns indicator snapshots into directional trade candidates
// using the gap mean-reversion rule.
package signal

import (
	"fmt"

	"github.com/evdnx/gaptrader/config"
	"github.com/evdnx/gaptrader/indicator"
	"github.com/evdnx/gaptrader/types"
)

// Generator evaluates one snapshot at a time. Its only mutable state is the
// per-pair bar index of the last emitted signal, used for the cooldown rule.
type Generator struct {
	cfg        *config.Config
	lastSignal map[string]int
}

func NewGenerator(cfg *config.Config) *Generator {
	return &Generator{cfg: cfg, lastSignal: make(map[string]int)}
}

func key(symbol string, tf types.Timeframe) string {
	return fmt.Sprintf("%s/%d", symbol, tf)
}

// Evaluate returns a signal when the gap rule fires on this snapshot.
//
// Long: volatility contracting (fast ATR below slow), price stretched below
// the slow average by at least the symbol's minimum gap, price back above
// the fast average (reversion underway), RSI falling and still under the
// upper band. Short is the mirror. A widened spread or an active cooldown
// rejects the candidate outright; rejected signals are never queued.
func (g *Generator) Evaluate(snap indicator.Snapshot) (types.Signal, bool) {
	set := g.cfg.SettingsFor(snap.Symbol)

	if snap.AvgSpread > 0 && snap.Spread > snap.AvgSpread*g.cfg.Strategy.MaxSpreadMultiplier {
		return types.Signal{}, false
	}

	k := key(snap.Symbol, snap.Timeframe)
	if last, ok := g.lastSignal[k]; ok && snap.BarIndex-last < g.cfg.Strategy.MinBarsBetween {
		return types.Signal{}, false
	}

	contracting := snap.ATRFast < snap.ATRSlow
	gap := snap.Gap()

	long := g.cfg.Strategy.EnableBuy &&
		contracting &&
		gap >= set.MinGapPercent &&
		snap.Close > snap.FastMA &&
		snap.PrevRSI > snap.RSI &&
		snap.RSI < set.RSIUpper

	short := g.cfg.Strategy.EnableSell &&
		contracting &&
		gap <= -set.MinGapPercent &&
		snap.Close < snap.FastMA &&
		snap.PrevRSI < snap.RSI &&
		snap.RSI > set.RSILower

	if !long && !short {
		return types.Signal{}, false
	}

	side := types.Buy
	if short {
		side = types.Sell
	}
	stop := set.SLFactor * snap.ATRFast
	if stop <= 0 {
		return types.Signal{}, false
	}

	g.lastSignal[k] = snap.BarIndex
	return types.Signal{
		Symbol:       snap.Symbol,
		Timeframe:    snap.Timeframe,
		Side:         side,
		Price:        snap.Close,
		StopDistance: stop,
		Time:         snap.Time,
	}, true
}
