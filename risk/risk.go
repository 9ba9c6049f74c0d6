// Package risk owns the account-level risk state and turns signals into
// risk-bounded order volumes, or rejects them with an observable reason.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/gaptrader/config"
	"github.com/evdnx/gaptrader/logger"
	"github.com/evdnx/gaptrader/metrics"
	"github.com/evdnx/gaptrader/types"
)

// State is the account-level risk snapshot. Mutated only by the Manager;
// everything else reads it through State().
type State struct {
	DayStartEquity float64
	Equity         float64
	PeakEquity     float64
	DailyPnL       float64 // realized + unrealized, relative to day start
	RealizedToday  float64
	DrawdownPct    float64 // percent below peak equity
	OpenGlobal     int
	OpenPerPair    map[string]int
}

// Manager enforces the capital-preservation rules. Single-writer: one
// orchestrator cycle mutates it at a time.
type Manager struct {
	cfg *config.Config
	log logger.Logger

	st             State
	haltedDaily    bool
	haltedDrawdown bool
	lastTradeBar   map[string]int
	lastDay        time.Time
}

func NewManager(cfg *config.Config, log logger.Logger, startEquity float64) *Manager {
	return &Manager{
		cfg: cfg,
		log: log,
		st: State{
			DayStartEquity: startEquity,
			Equity:         startEquity,
			PeakEquity:     startEquity,
			OpenPerPair:    make(map[string]int),
		},
		lastTradeBar: make(map[string]int),
	}
}

func pairKey(symbol string, tf types.Timeframe) string {
	return fmt.Sprintf("%s/%d", symbol, tf)
}

// State returns a copy of the current risk state.
func (m *Manager) State() State {
	out := m.st
	out.OpenPerPair = make(map[string]int, len(m.st.OpenPerPair))
	for k, v := range m.st.OpenPerPair {
		out.OpenPerPair[k] = v
	}
	return out
}

// Halted reports whether new entries are blocked. Position management is
// never halted; capital preservation only stops new risk.
func (m *Manager) Halted() bool { return m.haltedDaily || m.haltedDrawdown }

// Tick updates equity-derived state once per cycle. The peak-equity
// watermark only rises; the drawdown halt clears when equity recovers above
// the breach threshold.
func (m *Manager) Tick(equity float64) {
	m.st.Equity = equity
	if equity > m.st.PeakEquity {
		m.st.PeakEquity = equity
	}
	m.st.DailyPnL = equity - m.st.DayStartEquity
	if m.st.PeakEquity > 0 {
		m.st.DrawdownPct = (m.st.PeakEquity - equity) / m.st.PeakEquity * 100
	}
	metrics.EquityGauge.Set(equity)
	metrics.DrawdownGauge.Set(m.st.DrawdownPct)

	lossLimit := m.st.DayStartEquity * m.cfg.Risk.DailyLossPercent / 100
	if !m.haltedDaily && m.st.DailyPnL <= -lossLimit {
		m.haltedDaily = true
		m.log.Warn("daily_loss_limit_breached",
			logger.Float64("daily_pnl", m.st.DailyPnL),
			logger.Float64("limit", lossLimit))
	}
	ddBreached := m.st.DrawdownPct >= m.cfg.Risk.MaxDrawdownPercent
	if ddBreached && !m.haltedDrawdown {
		m.haltedDrawdown = true
		m.log.Warn("drawdown_limit_breached",
			logger.Float64("drawdown_pct", m.st.DrawdownPct),
			logger.Float64("peak_equity", m.st.PeakEquity))
	} else if !ddBreached && m.haltedDrawdown {
		m.haltedDrawdown = false
		m.log.Info("drawdown_halt_cleared",
			logger.Float64("drawdown_pct", m.st.DrawdownPct))
	}
}

// OnNewDay re-baselines the daily counters at the configured session open.
// The drawdown halt deliberately survives the reset.
func (m *Manager) OnNewDay(now time.Time) {
	m.st.DayStartEquity = m.st.Equity
	m.st.DailyPnL = 0
	m.st.RealizedToday = 0
	m.haltedDaily = false
	m.lastDay = now
	m.log.Info("new_trading_day",
		logger.Time("day", now),
		logger.Float64("day_start_equity", m.st.DayStartEquity))
}

// LastDay returns the day of the most recent daily reset.
func (m *Manager) LastDay() time.Time { return m.lastDay }

// OnPlaced stamps the pair's cooldown clock. Called only once the gateway
// has accepted the order; sizing alone never burns the window, so a
// broker-rejected order can be re-evaluated the next cycle.
func (m *Manager) OnPlaced(symbol string, tf types.Timeframe, barIndex int) {
	m.lastTradeBar[pairKey(symbol, tf)] = barIndex
}

// OnFill records a filled entry order.
func (m *Manager) OnFill(f types.Fill, tf types.Timeframe) {
	m.st.OpenGlobal++
	m.st.OpenPerPair[pairKey(f.Symbol, tf)]++
}

// OnClose records a closed position and its realized profit.
func (m *Manager) OnClose(f types.Fill, tf types.Timeframe) {
	if m.st.OpenGlobal > 0 {
		m.st.OpenGlobal--
	}
	key := pairKey(f.Symbol, tf)
	if m.st.OpenPerPair[key] > 0 {
		m.st.OpenPerPair[key]--
	}
	m.st.RealizedToday += f.Profit
}

// SizePosition converts a signal into a risk-bounded order intent, or
// returns a Rejection naming the rule that blocked it. barIndex is the
// pair's current bar count, used for the minimum-bars-between-trades rule.
//
// Volume is chosen so that the dollar loss at the stop equals the configured
// risk per trade, clamped to the lot bounds and floored to the lot step.
// If clamping forces more risk than the rounding tolerance allows, the trade
// is rejected rather than silently over-risked.
func (m *Manager) SizePosition(sig types.Signal, barIndex int) (types.OrderIntent, error) {
	reject := func(reason Reason, detail string) (types.OrderIntent, error) {
		metrics.RiskRejections.WithLabelValues(string(reason)).Inc()
		return types.OrderIntent{}, Rejection{Reason: reason, Detail: detail}
	}

	if m.haltedDrawdown {
		return reject(DrawdownBreached, fmt.Sprintf("drawdown %.2f%%", m.st.DrawdownPct))
	}
	if m.haltedDaily {
		return reject(DailyLossBreached, fmt.Sprintf("daily pnl %.2f", m.st.DailyPnL))
	}
	if m.st.OpenGlobal >= m.cfg.Risk.MaxGlobalTrades {
		return reject(GlobalCapReached, fmt.Sprintf("open %d", m.st.OpenGlobal))
	}
	key := pairKey(sig.Symbol, sig.Timeframe)
	if m.st.OpenPerPair[key] >= m.cfg.Risk.MaxTradesPerPair {
		return reject(PairCapReached, key)
	}
	if last, ok := m.lastTradeBar[key]; ok && barIndex-last < m.cfg.Strategy.MinBarsBetween {
		return reject(CooldownActive, fmt.Sprintf("%d bars since last trade", barIndex-last))
	}

	set := m.cfg.SettingsFor(sig.Symbol)
	if sig.StopDistance <= 0 || set.PerUnitValue <= 0 {
		return reject(OverRisk, "non-positive stop distance or unit value")
	}

	volume := m.cfg.Risk.PerTrade / (sig.StopDistance * set.PerUnitValue)
	if volume < m.cfg.Risk.MinLot {
		volume = m.cfg.Risk.MinLot
	}
	if volume > m.cfg.Risk.MaxAllowedLot {
		volume = m.cfg.Risk.MaxAllowedLot
	}
	// The epsilon keeps boundary volumes (1.0/0.01) from losing a step to
	// float division; the round cleans up the multiplication drift.
	volume = math.Floor(volume/m.cfg.Risk.LotStep+1e-9) * m.cfg.Risk.LotStep
	volume = math.Round(volume/m.cfg.Risk.LotStep) * m.cfg.Risk.LotStep

	implied := volume * sig.StopDistance * set.PerUnitValue
	if implied > m.cfg.Risk.PerTrade*(1+m.cfg.Risk.Tolerance) {
		return reject(OverRisk, fmt.Sprintf("implied risk %.2f exceeds %.2f", implied, m.cfg.Risk.PerTrade))
	}

	var stop, target float64
	if sig.Side == types.Buy {
		stop = sig.Price - sig.StopDistance
		target = sig.Price + sig.StopDistance*m.cfg.Risk.RewardRatio
	} else {
		stop = sig.Price + sig.StopDistance
		target = sig.Price - sig.StopDistance*m.cfg.Risk.RewardRatio
	}

	return types.OrderIntent{
		Symbol:    sig.Symbol,
		Timeframe: sig.Timeframe,
		Side:      sig.Side,
		Volume:    volume,
		Price:     sig.Price,
		Stop:      stop,
		Target:    target,
		Comment:   "gap mean reversion",
	}, nil
}
