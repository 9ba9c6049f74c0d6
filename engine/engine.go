// Package engine drives the polling control loop: bars in, order intents
// out. It contains no business logic beyond dispatch and intent emission.
package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdnx/gaptrader/config"
	"github.com/evdnx/gaptrader/executor"
	"github.com/evdnx/gaptrader/feed"
	"github.com/evdnx/gaptrader/indicator"
	"github.com/evdnx/gaptrader/journal"
	"github.com/evdnx/gaptrader/logger"
	"github.com/evdnx/gaptrader/metrics"
	"github.com/evdnx/gaptrader/position"
	"github.com/evdnx/gaptrader/risk"
	"github.com/evdnx/gaptrader/session"
	"github.com/evdnx/gaptrader/signal"
	"github.com/evdnx/gaptrader/types"
)

// feedFatalThreshold is the number of consecutive barless cycles with a
// non-transient feed error after which new entries are halted while open
// positions keep being managed. Quiet cycles where no bar has closed yet
// are healthy and never count.
const feedFatalThreshold = 3

// marker is the optional gateway hook for simulated brokerages: the paper
// gateway fills resting limits and closes positions as prices trade through
// them. Live gateways do all of that server side and never implement it.
type marker interface {
	Mark(symbol string, price float64, now time.Time) []types.Fill
}

// Orchestrator wires the components together and runs one cycle at a time.
// Cycles never overlap; all shared state is mutated from the cycle
// goroutine only.
type Orchestrator struct {
	cfg   *config.Config
	log   logger.Logger
	feed  feed.Feed
	gw    executor.Gateway
	ind   *indicator.Engine
	gen   *signal.Generator
	risk  *risk.Manager
	pos   *position.Manager
	sched *session.Scheduler
	jrnl  journal.Writer

	callTimeout time.Duration
	lastPrice   map[string]float64
	lastATR     map[string]float64 // ATR by symbol, from the shortest ready timeframe
	feedFails   int
}

func NewOrchestrator(
	cfg *config.Config,
	log logger.Logger,
	f feed.Feed,
	gw executor.Gateway,
	ind *indicator.Engine,
	gen *signal.Generator,
	rm *risk.Manager,
	pm *position.Manager,
	sched *session.Scheduler,
	jrnl journal.Writer,
) *Orchestrator {
	if jrnl == nil {
		jrnl = journal.Nop{}
	}
	return &Orchestrator{
		cfg:         cfg,
		log:         log,
		feed:        f,
		gw:          gw,
		ind:         ind,
		gen:         gen,
		risk:        rm,
		pos:         pm,
		sched:       sched,
		jrnl:        jrnl,
		callTimeout: time.Duration(cfg.CallTimeoutMS) * time.Millisecond,
		lastPrice:   make(map[string]float64),
		lastATR:     make(map[string]float64),
	}
}

// Run polls Cycle on the configured cadence until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(o.cfg.PollSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := o.Cycle(ctx, now); err != nil {
				o.log.Warn("cycle_abandoned", logger.Err(err))
			}
		}
	}
}

// Cycle executes one full pass: account refresh, daily reset, position
// management, then the entry scan. An error abandons the cycle; the next
// tick retries from scratch.
func (o *Orchestrator) Cycle(ctx context.Context, now time.Time) error {
	eq, err := o.accountEquity(ctx)
	if err != nil {
		return err
	}
	if o.sched.IsNewTradingDay(now, o.risk.LastDay()) {
		o.risk.OnNewDay(now)
	}
	o.risk.Tick(eq)

	// Bars and indicator bookkeeping advance every cycle; entry evaluation
	// is gated by the session calendar and by a fatal feed condition. Risk
	// halts are not checked here: sizing rejects with an observable reason.
	entries := o.sched.IsTradingPermitted(now) && o.feedFails < feedFatalThreshold
	o.processPairs(ctx, now, entries)

	// Positions are managed every cycle, halted or not. Capital
	// preservation stops new risk, never the unwinding of existing risk.
	o.detectFills(ctx, now)
	o.managePositions(ctx, now)

	metrics.CyclesTotal.Inc()
	return nil
}

func (o *Orchestrator) accountEquity(ctx context.Context) (float64, error) {
	cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	eq, err := o.gw.AccountEquity(cctx)
	if err != nil {
		return 0, err
	}
	f, _ := eq.Float64()
	return f, nil
}

// processPairs walks every configured pair, symbols outer, timeframes in
// ascending order so the shorter timeframe claims risk capacity first when
// two signals fire on the same symbol in one cycle. Bars always advance the
// indicator state; entries is false when the session is closed or the feed
// has gone fatal.
func (o *Orchestrator) processPairs(ctx context.Context, now time.Time, entries bool) {
	anyBar := false
	outage := false
	for _, symbol := range o.cfg.Symbols {
		for _, tf := range o.cfg.Timeframes {
			bar, err := o.pullBar(ctx, symbol, tf)
			if err != nil {
				if !feed.Transient(err) {
					outage = true
					metrics.FeedErrors.WithLabelValues("fatal").Inc()
					o.log.Warn("feed_error", logger.String("symbol", symbol), logger.Err(err))
				}
				continue
			}
			anyBar = true

			snap, ready, err := o.ind.Update(bar, o.feed.Spread(symbol))
			if err != nil {
				metrics.FeedErrors.WithLabelValues("transient").Inc()
				continue
			}
			metrics.BarsIngested.WithLabelValues(symbol, strconv.Itoa(int(tf))).Inc()
			o.lastPrice[symbol] = bar.Close
			if mk, ok := o.gw.(marker); ok {
				mk.Mark(symbol, bar.Close, now)
			}
			if !ready {
				continue
			}
			o.lastATR[symbol] = snap.ATRFast
			if !entries {
				continue
			}

			sig, ok := o.gen.Evaluate(snap)
			if !ok {
				continue
			}
			metrics.SignalsGenerated.WithLabelValues(symbol, string(sig.Side)).Inc()
			o.submitEntry(ctx, sig, snap.BarIndex, now)
		}
	}
	// ErrNoBar on every pair just means nothing has closed since the last
	// poll; at a 5s cadence that is the normal state between bar closes.
	// Only barless cycles with an actual outage advance the fatal counter.
	if anyBar || !outage {
		o.feedFails = 0
	} else {
		o.feedFails++
		if o.feedFails == feedFatalThreshold {
			o.log.Error("feed_fatal_entries_halted", logger.Int("cycles", o.feedFails))
		}
	}
}

func (o *Orchestrator) pullBar(ctx context.Context, symbol string, tf types.Timeframe) (types.Bar, error) {
	cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return o.feed.LatestClosedBar(cctx, symbol, tf)
}

// submitEntry sizes the signal and, on approval, emits exactly one limit
// order intent. Re-submission for a magic with an order already in flight is
// suppressed before any external call.
func (o *Orchestrator) submitEntry(ctx context.Context, sig types.Signal, barIndex int, now time.Time) {
	magic := o.pos.Magic(sig.Symbol, sig.Timeframe, sig.Side)
	if magic == 0 || o.pos.Live(magic) {
		return
	}

	set := o.cfg.SettingsFor(sig.Symbol)
	// Entry is a resting limit order a few pips inside the move.
	offset := o.cfg.Strategy.LimitOrderDistance * set.PipSize
	if sig.Side == types.Buy {
		sig.Price -= offset
	} else {
		sig.Price += offset
	}

	intent, err := o.risk.SizePosition(sig, barIndex)
	if err != nil {
		if rej, ok := risk.IsRejection(err); ok {
			o.log.Info("entry_rejected",
				logger.String("symbol", sig.Symbol),
				logger.String("side", string(sig.Side)),
				logger.String("reason", string(rej.Reason)))
		} else {
			o.log.Error("sizing_failed", logger.String("symbol", sig.Symbol), logger.Err(err))
		}
		return
	}

	intent.ID = uuid.NewString()
	intent.Magic = magic
	intent.Expiration = now.Add(time.Duration(o.cfg.Strategy.ExpirationBars) * sig.Timeframe.Duration())

	cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	orderID, err := o.gw.PlaceLimitOrder(cctx, intent)
	cancel()
	if err != nil {
		// Broker rejections are logged and re-evaluated next cycle, never
		// retried inline.
		o.log.Warn("order_rejected",
			logger.String("symbol", intent.Symbol),
			logger.String("side", string(intent.Side)),
			logger.Err(err))
		return
	}

	if _, err := o.pos.Track(intent, orderID, now); err != nil {
		o.log.Error("track_failed", logger.Int64("magic", magic), logger.Err(err))
		return
	}
	// A resting order consumes a trade slot immediately so the caps hold
	// while it is pending, and only an accepted order starts the cooldown.
	o.risk.OnFill(types.Fill{
		OrderID: orderID, Symbol: intent.Symbol, Side: intent.Side,
		Volume: intent.Volume, Price: intent.Price, Magic: magic, Time: now,
	}, intent.Timeframe)
	o.risk.OnPlaced(intent.Symbol, intent.Timeframe, barIndex)

	metrics.IntentsEmitted.WithLabelValues(intent.Symbol, string(intent.Side)).Inc()
	o.log.Info("limit_order_placed",
		logger.String("symbol", intent.Symbol),
		logger.String("side", string(intent.Side)),
		logger.Float64("volume", intent.Volume),
		logger.Float64("price", intent.Price),
		logger.Int64("magic", magic))
}

// managePositions advances every tracked position and translates the
// resulting actions into gateway calls.
func (o *Orchestrator) managePositions(ctx context.Context, now time.Time) {
	for _, p := range o.pos.All() {
		price, ok := o.lastPrice[p.Symbol]
		if !ok && p.Status != position.Pending {
			// No price seen yet; expiry is the only transition that can
			// fire without one.
			continue
		}
		act := o.pos.Advance(p, price, o.lastATR[p.Symbol], now)
		switch act.Type {
		case position.ModifyStop:
			cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
			err := o.gw.ModifyOrder(cctx, p.OrderID, act.Stop, act.Target)
			cancel()
			if err != nil {
				o.log.Warn("modify_failed", logger.Int64("magic", p.Magic), logger.Err(err))
				continue
			}
			o.log.Info("stop_trailed",
				logger.String("symbol", p.Symbol),
				logger.Int("stage", p.Stage),
				logger.Float64("stop", act.Stop))
		case position.Close:
			o.closePosition(p, act.Reason, now)
		case position.Expire:
			cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
			err := o.gw.CancelOrder(cctx, p.OrderID)
			cancel()
			if err != nil && !errors.Is(err, executor.ErrOrderRejected) {
				o.log.Warn("cancel_failed", logger.Int64("magic", p.Magic), logger.Err(err))
			}
			o.log.Info("order_expired", logger.String("symbol", p.Symbol), logger.Int64("magic", p.Magic))
			o.risk.OnClose(types.Fill{Symbol: p.Symbol, Magic: p.Magic, Time: now}, p.Timeframe)
			o.pos.Remove(p.Magic)
		}
	}
}

// closePosition books a stop/target exit. The broker closes these server
// side; the engine only reconciles state and journals the result.
func (o *Orchestrator) closePosition(p *position.Position, reason string, now time.Time) {
	dir := 1.0
	if p.Side == types.Sell {
		dir = -1.0
	}
	exit := p.Stop
	if reason == "target" {
		exit = p.Target
	}
	profit := dir * (exit - p.Entry) * p.Volume

	fill := types.Fill{
		OrderID: p.OrderID, Symbol: p.Symbol, Side: p.Side.Opposite(),
		Volume: p.Volume, Price: exit, Profit: profit, Magic: p.Magic, Time: now,
	}
	o.risk.OnClose(fill, p.Timeframe)
	if err := o.jrnl.Record(journal.EntryFromFill(fill, reason, p.Stop, p.Target)); err != nil {
		o.log.Error("journal_write_failed", logger.Err(err))
	}
	o.log.Info("position_closed",
		logger.String("symbol", p.Symbol),
		logger.String("reason", reason),
		logger.Float64("profit", profit))
	o.pos.Remove(p.Magic)
}

// detectFills reconciles pending orders against the gateway's view and
// journals entry fills.
func (o *Orchestrator) detectFills(ctx context.Context, now time.Time) {
	cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	broker, err := o.gw.OpenPositions(cctx)
	cancel()
	if err != nil {
		o.log.Warn("open_positions_failed", logger.Err(err))
		return
	}
	byMagic := make(map[int64]executor.BrokerPosition, len(broker))
	for _, b := range broker {
		byMagic[b.Magic] = b
	}
	for _, p := range o.pos.All() {
		b, exists := byMagic[p.Magic]
		if p.Status == position.Pending && exists && b.Filled {
			if err := o.pos.OnFill(p.Magic, b.Entry, now); err != nil {
				o.log.Error("fill_transition_failed", logger.Int64("magic", p.Magic), logger.Err(err))
				continue
			}
			fill := types.Fill{
				OrderID: p.OrderID, Symbol: p.Symbol, Side: p.Side,
				Volume: p.Volume, Price: b.Entry, Magic: p.Magic, Time: now,
			}
			if err := o.jrnl.Record(journal.EntryFromFill(fill, "entry", p.Stop, p.Target)); err != nil {
				o.log.Error("journal_write_failed", logger.Err(err))
			}
			o.log.Info("order_filled",
				logger.String("symbol", p.Symbol),
				logger.Float64("price", b.Entry),
				logger.Int64("magic", p.Magic))
		}
	}
}

// Equity is a convenience for callers that report equity externally.
func (o *Orchestrator) Equity(ctx context.Context) (decimal.Decimal, error) {
	cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return o.gw.AccountEquity(cctx)
}
