package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdnx/gaptrader/types"
)

// PaperGateway simulates the brokerage in memory: perfect limit fills, no
// slippage. Mark drives the simulation clock one price at a time.
type PaperGateway struct {
	mu     sync.Mutex
	equity float64
	orders map[string]*BrokerPosition
}

func NewPaperGateway(startEquity float64) *PaperGateway {
	return &PaperGateway{
		equity: startEquity,
		orders: make(map[string]*BrokerPosition),
	}
}

func (p *PaperGateway) PlaceLimitOrder(_ context.Context, intent types.OrderIntent) (string, error) {
	if intent.Volume <= 0 {
		return "", fmt.Errorf("%w: non-positive volume", ErrOrderRejected)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.orders[id] = &BrokerPosition{
		OrderID: id,
		Symbol:  intent.Symbol,
		Side:    intent.Side,
		Volume:  intent.Volume,
		Entry:   intent.Price,
		Stop:    intent.Stop,
		Target:  intent.Target,
		Magic:   intent.Magic,
	}
	return id, nil
}

func (p *PaperGateway) ModifyOrder(_ context.Context, orderID string, stop, target float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: unknown order %s", ErrOrderRejected, orderID)
	}
	if stop != 0 {
		o.Stop = stop
	}
	if target != 0 {
		o.Target = target
	}
	return nil
}

func (p *PaperGateway) CancelOrder(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: unknown order %s", ErrOrderRejected, orderID)
	}
	if o.Filled {
		return fmt.Errorf("%w: order %s already filled", ErrOrderRejected, orderID)
	}
	delete(p.orders, orderID)
	return nil
}

func (p *PaperGateway) AccountEquity(context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return decimal.NewFromFloat(p.equity), nil
}

func (p *PaperGateway) OpenPositions(context.Context) ([]BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]BrokerPosition, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, *o)
	}
	return out, nil
}

// Mark advances the simulation with a new price for symbol: pending limits
// fill when price trades through them; filled positions close on stop or
// target. Returned fills carry realized profit for closes and zero for
// entries.
func (p *PaperGateway) Mark(symbol string, price float64, now time.Time) []types.Fill {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fills []types.Fill
	for id, o := range p.orders {
		if o.Symbol != symbol {
			continue
		}
		dir := 1.0
		if o.Side == types.Sell {
			dir = -1.0
		}
		if !o.Filled {
			// Buy limit fills at or below the limit price, sell limit at or
			// above.
			if dir*(price-o.Entry) <= 0 {
				o.Filled = true
				fills = append(fills, types.Fill{
					OrderID: id, Symbol: symbol, Side: o.Side,
					Volume: o.Volume, Price: o.Entry, Magic: o.Magic, Time: now,
				})
			}
			continue
		}
		closed := false
		exit := 0.0
		if o.Stop != 0 && dir*(price-o.Stop) <= 0 {
			closed, exit = true, o.Stop
		} else if o.Target != 0 && dir*(price-o.Target) >= 0 {
			closed, exit = true, o.Target
		}
		if closed {
			profit := dir * (exit - o.Entry) * o.Volume
			p.equity += profit
			fills = append(fills, types.Fill{
				OrderID: id, Symbol: symbol, Side: o.Side.Opposite(),
				Volume: o.Volume, Price: exit, Profit: profit, Magic: o.Magic, Time: now,
			})
			delete(p.orders, id)
		}
	}
	return fills
}
