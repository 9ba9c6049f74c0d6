// Package position owns open positions and their trailing-stop stage
// machines. Positions are mutated only through the manager's transition
// functions.
package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/gaptrader/config"
	"github.com/evdnx/gaptrader/logger"
	"github.com/evdnx/gaptrader/metrics"
	"github.com/evdnx/gaptrader/types"
)

// Status is the lifecycle state of a position.
type Status int

const (
	// Pending: limit order placed, not yet filled.
	Pending Status = iota
	// Open: filled; Stage 0 until the first profit-lock tier is reached,
	// Stage n while trailing tier n.
	Open
	// Closed: stop or target hit, or closed by the gateway.
	Closed
	// Expired: pending order outlived its time-to-live and was cancelled.
	Expired
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Position is a tracked order/position keyed by its magic identifier.
type Position struct {
	OrderID   string
	Symbol    string
	Timeframe types.Timeframe
	Side      types.Side
	Entry     float64
	Stop      float64
	Target    float64
	Volume    float64
	Status    Status
	Stage     int
	Magic     int64
	OpenTime  time.Time
	Expiry    time.Time // pending orders only
	// InitialRisk is the entry-to-initial-stop distance; trailing tiers are
	// multiples of it.
	InitialRisk float64
}

// ActionType tags the transition outcome of one Advance call.
type ActionType int

const (
	NoOp ActionType = iota
	ModifyStop
	Close
	Expire
)

// Action is the decision produced by Advance for one position.
type Action struct {
	Type   ActionType
	Stop   float64 // ModifyStop
	Target float64 // ModifyStop; unchanged target is carried through
	Reason string  // Close
}

// ErrMagicLive is returned when a second position is tracked for a magic
// that already has one in flight.
var ErrMagicLive = errors.New("position already live for magic")

// Manager owns the position table. Single-writer, one cycle at a time.
type Manager struct {
	cfg       *config.Config
	log       logger.Logger
	positions map[int64]*Position
}

func NewManager(cfg *config.Config, log logger.Logger) *Manager {
	return &Manager{cfg: cfg, log: log, positions: make(map[int64]*Position)}
}

// Magic derives the unique identifier for a (symbol, timeframe, side)
// strategy instance.
func (m *Manager) Magic(symbol string, tf types.Timeframe, side types.Side) int64 {
	symIdx, tfIdx := -1, -1
	for i, s := range m.cfg.Symbols {
		if s == symbol {
			symIdx = i
			break
		}
	}
	for i, t := range m.cfg.Timeframes {
		if t == tf {
			tfIdx = i
			break
		}
	}
	if symIdx < 0 || tfIdx < 0 {
		return 0
	}
	magic := m.cfg.BaseMagic + int64(symIdx)*1000 + int64(tfIdx)*10
	if side == types.Sell {
		magic++
	}
	return magic
}

// Track registers a freshly placed pending order. At most one live position
// per magic is allowed.
func (m *Manager) Track(intent types.OrderIntent, orderID string, now time.Time) (*Position, error) {
	if _, live := m.positions[intent.Magic]; live {
		return nil, fmt.Errorf("magic %d: %w", intent.Magic, ErrMagicLive)
	}
	stop := intent.Stop
	risk := intent.Price - stop
	if intent.Side == types.Sell {
		risk = stop - intent.Price
	}
	p := &Position{
		OrderID:     orderID,
		Symbol:      intent.Symbol,
		Timeframe:   intent.Timeframe,
		Side:        intent.Side,
		Entry:       intent.Price,
		Stop:        stop,
		Target:      intent.Target,
		Volume:      intent.Volume,
		Status:      Pending,
		Magic:       intent.Magic,
		OpenTime:    now,
		Expiry:      intent.Expiration,
		InitialRisk: risk,
	}
	m.positions[intent.Magic] = p
	metrics.PositionsOpen.Set(float64(len(m.positions)))
	return p, nil
}

// OnFill transitions a pending order to an open position at the fill price.
func (m *Manager) OnFill(magic int64, price float64, now time.Time) error {
	p, ok := m.positions[magic]
	if !ok {
		return fmt.Errorf("fill for untracked magic %d", magic)
	}
	if p.Status != Pending {
		return fmt.Errorf("fill for magic %d in state %s", magic, p.Status)
	}
	// Keep the initial risk distance anchored to the actual entry.
	if p.Side == types.Buy {
		p.Stop = price - p.InitialRisk
		p.Target = price + p.InitialRisk*m.cfg.Risk.RewardRatio
	} else {
		p.Stop = price + p.InitialRisk
		p.Target = price - p.InitialRisk*m.cfg.Risk.RewardRatio
	}
	p.Entry = price
	p.Status = Open
	p.Stage = 0
	p.OpenTime = now
	return nil
}

// Remove drops a position that reached Closed or Expired.
func (m *Manager) Remove(magic int64) {
	delete(m.positions, magic)
	metrics.PositionsOpen.Set(float64(len(m.positions)))
}

// Get returns the live position for magic, if any.
func (m *Manager) Get(magic int64) (*Position, bool) {
	p, ok := m.positions[magic]
	return p, ok
}

// Live reports whether a position or pending order exists for magic.
func (m *Manager) Live(magic int64) bool {
	_, ok := m.positions[magic]
	return ok
}

// Count returns the number of tracked positions, pending included.
func (m *Manager) Count() int { return len(m.positions) }

// All returns the tracked positions in unspecified order.
func (m *Manager) All() []*Position {
	out := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

// Advance runs one step of the stage machine for p against the latest price
// and ATR, returning the action the orchestrator should translate into a
// gateway call. It mutates p only when a transition actually fires.
//
// Stop updates are monotonic: a computed stop is applied only if it is
// strictly more favorable than the current stop and still on the valid side
// of the market price.
func (m *Manager) Advance(p *Position, price float64, atr float64, now time.Time) Action {
	switch p.Status {
	case Pending:
		if !p.Expiry.IsZero() && !now.Before(p.Expiry) {
			p.Status = Expired
			return Action{Type: Expire}
		}
		return Action{Type: NoOp}
	case Closed, Expired:
		return Action{Type: NoOp}
	}

	dir := 1.0
	if p.Side == types.Sell {
		dir = -1.0
	}

	// Terminal checks first: stop or target hit.
	if dir*(price-p.Stop) <= 0 {
		p.Status = Closed
		return Action{Type: Close, Reason: "stop"}
	}
	if p.Target != 0 && dir*(price-p.Target) >= 0 {
		p.Status = Closed
		return Action{Type: Close, Reason: "target"}
	}

	if p.InitialRisk <= 0 {
		return Action{Type: NoOp}
	}
	profit := dir * (price - p.Entry)
	units := int(profit / p.InitialRisk)
	if units < 1 {
		return Action{Type: NoOp}
	}

	// Tier stop: lock `units` multiples of the initial risk distance.
	newStop := p.Entry + dir*float64(units)*p.InitialRisk

	// Commodity instruments additionally trail by an ATR multiple and take
	// whichever stop is more favorable.
	set := m.cfg.SettingsFor(p.Symbol)
	if set.Commodity && atr > 0 {
		atrStop := price - dir*set.TrailingFactor*atr
		if dir*(atrStop-newStop) > 0 {
			newStop = atrStop
		}
	}

	if dir*(newStop-p.Stop) > 0 && dir*(price-newStop) > 0 {
		p.Stop = newStop
		if units > p.Stage {
			p.Stage = units
		}
		return Action{Type: ModifyStop, Stop: newStop, Target: p.Target}
	}
	return Action{Type: NoOp}
}
