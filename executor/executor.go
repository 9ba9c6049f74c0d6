// Package executor defines the execution gateway boundary and a paper
// implementation used for simulated runs and tests.
package executor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gaptrader/types"
)

// ErrOrderRejected marks a broker-side rejection. The orchestrator logs it
// and re-evaluates next cycle; it never retries the identical intent
// inline.
var ErrOrderRejected = errors.New("order rejected by gateway")

// BrokerPosition is the gateway's view of a working order or open position.
type BrokerPosition struct {
	OrderID string
	Symbol  string
	Side    types.Side
	Volume  float64
	Entry   float64
	Stop    float64
	Target  float64
	Magic   int64
	Filled  bool
}

// Gateway is the brokerage execution boundary. All calls must respect the
// caller's context deadline.
type Gateway interface {
	PlaceLimitOrder(ctx context.Context, intent types.OrderIntent) (orderID string, err error)
	ModifyOrder(ctx context.Context, orderID string, stop, target float64) error
	CancelOrder(ctx context.Context, orderID string) error
	AccountEquity(ctx context.Context) (decimal.Decimal, error)
	OpenPositions(ctx context.Context) ([]BrokerPosition, error)
}
