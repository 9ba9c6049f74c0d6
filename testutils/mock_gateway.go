package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gaptrader/executor"
	"github.com/evdnx/gaptrader/types"
)

// MockGateway implements executor.Gateway in-memory and records every
// external call for assertions.
type MockGateway struct {
	mu     sync.Mutex
	equity decimal.Decimal
	nextID int

	Placed    []types.OrderIntent
	Modifies  []ModifyCall
	Cancels   []string
	Positions []executor.BrokerPosition

	// PlaceErr, when set, is returned by PlaceLimitOrder.
	PlaceErr error
}

// ModifyCall records one ModifyOrder invocation.
type ModifyCall struct {
	OrderID string
	Stop    float64
	Target  float64
}

// NewMockGateway creates a gateway reporting the supplied equity.
func NewMockGateway(equity float64) *MockGateway {
	return &MockGateway{equity: decimal.NewFromFloat(equity)}
}

// SetEquity changes the equity reported on the next AccountEquity call.
func (m *MockGateway) SetEquity(equity float64) {
	m.mu.Lock()
	m.equity = decimal.NewFromFloat(equity)
	m.mu.Unlock()
}

func (m *MockGateway) PlaceLimitOrder(_ context.Context, intent types.OrderIntent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlaceErr != nil {
		return "", m.PlaceErr
	}
	m.nextID++
	id := fmt.Sprintf("ord-%d", m.nextID)
	m.Placed = append(m.Placed, intent)
	m.Positions = append(m.Positions, executor.BrokerPosition{
		OrderID: id, Symbol: intent.Symbol, Side: intent.Side,
		Volume: intent.Volume, Entry: intent.Price,
		Stop: intent.Stop, Target: intent.Target, Magic: intent.Magic,
	})
	return id, nil
}

func (m *MockGateway) ModifyOrder(_ context.Context, orderID string, stop, target float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Modifies = append(m.Modifies, ModifyCall{OrderID: orderID, Stop: stop, Target: target})
	for i := range m.Positions {
		if m.Positions[i].OrderID == orderID {
			m.Positions[i].Stop = stop
			m.Positions[i].Target = target
		}
	}
	return nil
}

func (m *MockGateway) CancelOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancels = append(m.Cancels, orderID)
	for i := range m.Positions {
		if m.Positions[i].OrderID == orderID {
			m.Positions = append(m.Positions[:i], m.Positions[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockGateway) AccountEquity(context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.equity, nil
}

func (m *MockGateway) OpenPositions(context.Context) ([]executor.BrokerPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]executor.BrokerPosition, len(m.Positions))
	copy(out, m.Positions)
	return out, nil
}

// Fill marks the pending order for magic as filled at price, as a broker
// would after the market trades through the limit.
func (m *MockGateway) Fill(magic int64, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Positions {
		if m.Positions[i].Magic == magic {
			m.Positions[i].Filled = true
			m.Positions[i].Entry = price
		}
	}
}

// PlaceCalls returns how many external placement calls were made.
func (m *MockGateway) PlaceCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Placed)
}
