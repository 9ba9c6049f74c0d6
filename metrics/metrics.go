package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gaptrader_cycles_total",
			Help: "Completed polling cycles.",
		},
	)

	BarsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_bars_ingested_total",
			Help: "Closed bars consumed per symbol/timeframe.",
		},
		[]string{"symbol", "timeframe"},
	)

	SignalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_signals_total",
			Help: "Trade signals emitted by the gap rule.",
		},
		[]string{"symbol", "side"},
	)

	IntentsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_intents_total",
			Help: "Order intents submitted to the gateway.",
		},
		[]string{"symbol", "side"},
	)

	RiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_risk_rejections_total",
			Help: "Sizing requests blocked by a risk rule.",
		},
		[]string{"reason"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaptrader_positions_open",
			Help: "Positions currently tracked by the position manager.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaptrader_equity",
			Help: "Last account equity reported by the gateway.",
		},
	)

	DrawdownGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaptrader_drawdown_percent",
			Help: "Current drawdown from peak equity, percent.",
		},
	)

	FeedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_feed_errors_total",
			Help: "Market data errors by class (transient/fatal).",
		},
		[]string{"class"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal, BarsIngested, SignalsGenerated, IntentsEmitted,
		RiskRejections, PositionsOpen, EquityGauge, DrawdownGauge, FeedErrors,
	)
}

// Serve exposes /metrics on addr and returns the server so the caller can
// shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
