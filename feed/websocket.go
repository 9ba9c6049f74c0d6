package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evdnx/gaptrader/logger"
	"github.com/evdnx/gaptrader/types"
)

// barMessage is the wire format of one closed bar on the stream.
type barMessage struct {
	Symbol    string  `json:"symbol"`
	Timeframe int     `json:"timeframe"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Spread    float64 `json:"spread"`
	Time      int64   `json:"time"` // unix seconds, bar open
}

// WSFeed consumes a websocket bar stream and caches the latest closed bar
// per pair. The read pump owns the connection; LatestClosedBar only reads
// the cache, so a stalled socket never blocks the trading cycle.
type WSFeed struct {
	url string
	log logger.Logger

	mu        sync.RWMutex
	bars      map[string]types.Bar
	delivered map[string]time.Time
	spreads   map[string]float64
	connected bool

	cancel context.CancelFunc
}

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 20 * time.Second
	wsRedialDelay  = 5 * time.Second
)

func NewWSFeed(url string, log logger.Logger) *WSFeed {
	return &WSFeed{
		url:       url,
		log:       log,
		bars:      make(map[string]types.Bar),
		delivered: make(map[string]time.Time),
		spreads:   make(map[string]float64),
	}
}

// Connect dials the stream and starts the read pump. The pump redials on
// failure until ctx is cancelled.
func (f *WSFeed) Connect(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	go f.run(ctx)
}

// Close stops the read pump.
func (f *WSFeed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *WSFeed) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			f.setConnected(false)
			f.log.Warn("feed_dial_failed", logger.String("url", f.url), logger.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wsRedialDelay):
			}
			continue
		}
		f.setConnected(true)
		f.log.Info("feed_connected", logger.String("url", f.url))
		f.readPump(ctx, conn)
		conn.Close()
		f.setConnected(false)
	}
}

func (f *WSFeed) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.log.Warn("feed_read_failed", logger.Err(err))
			return
		}
		var msg barMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.log.Warn("feed_bad_message", logger.Err(err))
			continue
		}
		f.ingest(msg)
	}
}

func (f *WSFeed) ingest(msg barMessage) {
	bar := types.Bar{
		Symbol:    msg.Symbol,
		Timeframe: types.Timeframe(msg.Timeframe),
		Open:      msg.Open,
		High:      msg.High,
		Low:       msg.Low,
		Close:     msg.Close,
		Volume:    msg.Volume,
		Time:      time.Unix(msg.Time, 0).UTC(),
	}
	key := pairKey(bar.Symbol, bar.Timeframe)

	f.mu.Lock()
	defer f.mu.Unlock()
	// Out-of-order bars are dropped; the cache only moves forward.
	if prev, ok := f.bars[key]; ok && !bar.Time.After(prev.Time) {
		return
	}
	f.bars[key] = bar
	if msg.Spread > 0 {
		f.spreads[bar.Symbol] = msg.Spread
	}
}

func (f *WSFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func pairKey(symbol string, tf types.Timeframe) string {
	return fmt.Sprintf("%s/%d", symbol, tf)
}

// LatestClosedBar returns the cached bar for the pair if it is newer than
// the last one delivered.
func (f *WSFeed) LatestClosedBar(_ context.Context, symbol string, tf types.Timeframe) (types.Bar, error) {
	key := pairKey(symbol, tf)

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return types.Bar{}, fmt.Errorf("%s: %w", key, ErrUnavailable)
	}
	bar, ok := f.bars[key]
	if !ok {
		return types.Bar{}, fmt.Errorf("%s: %w", key, ErrNoBar)
	}
	if last, ok := f.delivered[key]; ok && !bar.Time.After(last) {
		return types.Bar{}, fmt.Errorf("%s: %w", key, ErrNoBar)
	}
	f.delivered[key] = bar.Time
	return bar, nil
}

// Spread returns the last spread seen for symbol.
func (f *WSFeed) Spread(symbol string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.spreads[symbol]
}
