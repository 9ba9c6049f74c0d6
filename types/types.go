package types

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the flattening side for a position opened with s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Timeframe is a bar duration expressed in minutes (MT-style: 5 = M5).
type Timeframe int

const (
	M1  Timeframe = 1
	M5  Timeframe = 5
	M15 Timeframe = 15
	M30 Timeframe = 30
	H1  Timeframe = 60
	H4  Timeframe = 240
	D1  Timeframe = 1440
)

// Duration converts the timeframe to a wall-clock duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Minute
}

// Bar is a single closed OHLCV candle. Immutable once emitted by the feed.
type Bar struct {
	Symbol    string
	Timeframe Timeframe
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Time      time.Time // exchange time of bar open
}

// Signal is a transient directional trade candidate. It is either consumed
// by the risk manager within the cycle that produced it or discarded.
type Signal struct {
	Symbol       string
	Timeframe    Timeframe
	Side         Side
	Price        float64 // reference (close) price at generation
	StopDistance float64 // in price units
	Time         time.Time
}

// OrderIntent is a fully risk-bounded limit order request ready for the
// execution gateway. ID is unique per emission; Magic identifies the
// (symbol, timeframe, side) strategy instance and is the idempotency key.
type OrderIntent struct {
	ID         string
	Symbol     string
	Timeframe  Timeframe
	Side       Side
	Volume     float64
	Price      float64 // limit price
	Stop       float64
	Target     float64
	Magic      int64
	Expiration time.Time
	Comment    string
}

// Fill reports an executed (or closed) order back from the gateway.
type Fill struct {
	OrderID string
	Symbol  string
	Side    Side
	Volume  float64
	Price   float64
	Profit  float64 // realized, zero on entry fills
	Magic   int64
	Time    time.Time
}
