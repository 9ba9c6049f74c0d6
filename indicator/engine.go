// Package indicator maintains rolling technical state per (symbol, timeframe)
// pair and produces immutable snapshots on bar close.
package indicator

import (
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/gaptrader/config"
	"github.com/evdnx/gaptrader/types"
)

// ErrStaleBar is returned when a bar does not advance the pair's clock.
var ErrStaleBar = errors.New("bar timestamp not newer than last processed")

// spreadAvgPeriod matches the 50-sample spread average the strategy was
// tuned with.
const spreadAvgPeriod = 50

// Snapshot is the full indicator state derived from one closed bar.
// Recomputed only on bar close; timestamps advance monotonically per pair.
type Snapshot struct {
	Symbol    string
	Timeframe types.Timeframe
	Close     float64
	SlowMA    float64 // long-period EMA, the mean-reversion anchor
	FastMA    float64 // short-period EMA, the reversion confirmation
	RSI       float64
	PrevRSI   float64
	ATRFast   float64
	ATRSlow   float64
	Spread    float64 // spread at bar close
	AvgSpread float64 // smoothed spread estimate
	BarIndex  int     // bars processed for this pair since start
	Time      time.Time
}

// Gap returns the signed divergence of price from the slow average as a
// percentage of the slow average. Positive when price is below the anchor
// (a mean-reversion buy setup), negative when above.
func (s Snapshot) Gap() float64 {
	if s.SlowMA == 0 {
		return 0
	}
	return 100 * (s.SlowMA - s.Close) / s.SlowMA
}

type pairState struct {
	slow      *ema
	fast      *ema
	rsi       *wilderRSI
	atrFast   *wilderATR
	atrSlow   *wilderATR
	spreadAvg *ema
	barIndex  int
	lastTime  time.Time
}

// Engine owns the per-pair indicator state. Not safe for concurrent use;
// the orchestrator feeds it from a single cycle at a time.
type Engine struct {
	cfg   *config.Config
	pairs map[string]*pairState
}

func NewEngine(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg, pairs: make(map[string]*pairState)}
}

func pairKey(symbol string, tf types.Timeframe) string {
	return fmt.Sprintf("%s/%d", symbol, tf)
}

func (e *Engine) state(symbol string, tf types.Timeframe) *pairState {
	key := pairKey(symbol, tf)
	st, ok := e.pairs[key]
	if !ok {
		set := e.cfg.SettingsFor(symbol)
		st = &pairState{
			slow:      newEMA(e.cfg.Strategy.SlowMAPeriod),
			fast:      newEMA(e.cfg.Strategy.FastMAPeriod),
			rsi:       newWilderRSI(e.cfg.Strategy.RSIPeriod),
			atrFast:   newWilderATR(set.ATRFastPeriod),
			atrSlow:   newWilderATR(set.ATRSlowPeriod),
			spreadAvg: newEMA(spreadAvgPeriod),
		}
		e.pairs[key] = st
	}
	return st
}

// Update advances the pair's rolling state with a newly closed bar and the
// spread observed at its close. The snapshot is valid (ok=true) only once
// the slow moving-average window is fully populated; until then the pair is
// warming up. Bars must arrive in strictly increasing time order per pair.
func (e *Engine) Update(bar types.Bar, spread float64) (Snapshot, bool, error) {
	st := e.state(bar.Symbol, bar.Timeframe)
	if !st.lastTime.IsZero() && !bar.Time.After(st.lastTime) {
		return Snapshot{}, false, fmt.Errorf("%s tf=%d at %s: %w",
			bar.Symbol, bar.Timeframe, bar.Time.Format(time.RFC3339), ErrStaleBar)
	}
	st.lastTime = bar.Time
	st.barIndex++

	st.slow.update(bar.Close)
	st.fast.update(bar.Close)
	st.rsi.update(bar.Close)
	st.atrFast.update(bar.High, bar.Low, bar.Close)
	st.atrSlow.update(bar.High, bar.Low, bar.Close)
	if spread > 0 {
		st.spreadAvg.update(spread)
	}

	if !st.slow.ready || !st.rsi.ready || !st.atrFast.ready || !st.atrSlow.ready {
		return Snapshot{}, false, nil
	}

	avgSpread := spread
	if st.spreadAvg.ready {
		avgSpread = st.spreadAvg.value
	} else if st.spreadAvg.count > 0 {
		avgSpread = st.spreadAvg.sum / float64(st.spreadAvg.count)
	}

	return Snapshot{
		Symbol:    bar.Symbol,
		Timeframe: bar.Timeframe,
		Close:     bar.Close,
		SlowMA:    st.slow.value,
		FastMA:    st.fast.value,
		RSI:       st.rsi.value,
		PrevRSI:   st.rsi.prev,
		ATRFast:   st.atrFast.value,
		ATRSlow:   st.atrSlow.value,
		Spread:    spread,
		AvgSpread: avgSpread,
		BarIndex:  st.barIndex,
		Time:      bar.Time,
	}, true, nil
}

// BarIndex reports how many bars the pair has processed. Zero for unseen
// pairs.
func (e *Engine) BarIndex(symbol string, tf types.Timeframe) int {
	if st, ok := e.pairs[pairKey(symbol, tf)]; ok {
		return st.barIndex
	}
	return 0
}
