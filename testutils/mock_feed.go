package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/evdnx/gaptrader/feed"
	"github.com/evdnx/gaptrader/types"
)

// MockFeed serves scripted bars, one per LatestClosedBar call per pair.
type MockFeed struct {
	bars    map[string][]types.Bar
	spreads map[string]float64
	// Err, when set, is returned by every LatestClosedBar call.
	Err error
}

func NewMockFeed() *MockFeed {
	return &MockFeed{
		bars:    make(map[string][]types.Bar),
		spreads: make(map[string]float64),
	}
}

func feedKey(symbol string, tf types.Timeframe) string {
	return fmt.Sprintf("%s/%d", symbol, tf)
}

// Push queues a bar for delivery.
func (m *MockFeed) Push(bar types.Bar) {
	key := feedKey(bar.Symbol, bar.Timeframe)
	m.bars[key] = append(m.bars[key], bar)
}

// SetSpread fixes the spread reported for symbol.
func (m *MockFeed) SetSpread(symbol string, spread float64) {
	m.spreads[symbol] = spread
}

func (m *MockFeed) LatestClosedBar(_ context.Context, symbol string, tf types.Timeframe) (types.Bar, error) {
	if m.Err != nil {
		return types.Bar{}, m.Err
	}
	key := feedKey(symbol, tf)
	queue := m.bars[key]
	if len(queue) == 0 {
		return types.Bar{}, fmt.Errorf("%s: %w", key, feed.ErrNoBar)
	}
	bar := queue[0]
	m.bars[key] = queue[1:]
	return bar, nil
}

func (m *MockFeed) Spread(symbol string) float64 {
	return m.spreads[symbol]
}

// MakeBars builds a flat series of n identical-close bars spaced by the
// timeframe, starting at start. Handy for indicator warm-up.
func MakeBars(symbol string, tf types.Timeframe, start time.Time, closes []float64) []types.Bar {
	out := make([]types.Bar, len(closes))
	for i, c := range closes {
		out[i] = types.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    100,
			Time:      start.Add(time.Duration(i) * tf.Duration()),
		}
	}
	return out
}
