// Package feed defines the market data boundary: closed bars delivered in
// non-decreasing timestamp order per (symbol, timeframe) pair.
package feed

import (
	"context"
	"errors"

	"github.com/evdnx/gaptrader/types"
)

var (
	// ErrNoBar means no bar has closed since the last delivery. Transient:
	// skip the pair this cycle, retry next.
	ErrNoBar = errors.New("no new closed bar")
	// ErrStale means the feed's data for the pair is older than what was
	// already delivered. Transient.
	ErrStale = errors.New("stale market data")
	// ErrUnavailable means the feed is down. After repeated cycles the
	// orchestrator halts new entries and keeps managing open positions.
	ErrUnavailable = errors.New("market data feed unavailable")
)

// Transient reports whether err is a skip-and-retry condition rather than a
// feed outage.
func Transient(err error) bool {
	return errors.Is(err, ErrNoBar) || errors.Is(err, ErrStale) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Feed supplies closed bars and current spreads.
type Feed interface {
	// LatestClosedBar returns the most recent bar that closed after the
	// previous delivery for the pair, or ErrNoBar.
	LatestClosedBar(ctx context.Context, symbol string, tf types.Timeframe) (types.Bar, error)
	// Spread returns the current spread estimate for symbol in price units,
	// zero when unknown.
	Spread(symbol string) float64
}
