// Package metrics exposes Prometheus counters and gauges for the
// trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pairbot", Name: "ticks_total", Help: "Count of evaluation ticks per pair"},
		[]string{"pair"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pairbot", Name: "signals_total", Help: "Signals emitted by action"},
		[]string{"pair", "action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pairbot", Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	OrderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pairbot", Name: "order_retries_total", Help: "Order submissions retried after transient broker errors"},
		[]string{"symbol"},
	)
	RiskRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pairbot", Name: "risk_rejections_total", Help: "Entry signals rejected by the risk manager"},
		[]string{"pair", "reason"},
	)
	TradesClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pairbot", Name: "trades_closed_total", Help: "Round-trip pair trades completed"},
		[]string{"pair"},
	)
	HedgeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pairbot", Name: "hedge_failures_total", Help: "Second legs that failed and forced a compensating close"},
		[]string{"pair"},
	)
	ReconcileTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pairbot", Name: "reconcile_timeouts_total", Help: "Reconciliations abandoned after the polling deadline"},
		[]string{"pair"},
	)
	ZScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "pairbot", Name: "pair_zscore", Help: "Latest spread z-score per pair"},
		[]string{"pair"},
	)
	GrossExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "pairbot", Name: "gross_exposure", Help: "Combined absolute notional of open and opening positions"},
	)
	OpenPairs = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "pairbot", Name: "open_pairs", Help: "Pairs currently holding a position"},
	)
	RealizedPL = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "pairbot", Name: "realized_pl", Help: "Cumulative realized profit and loss"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		SignalsTotal,
		OrdersTotal,
		OrderRetriesTotal,
		RiskRejectionsTotal,
		TradesClosedTotal,
		HedgeFailuresTotal,
		ReconcileTimeoutsTotal,
		ZScore,
		GrossExposure,
		OpenPairs,
		RealizedPL,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
