// Package metrics exposes Prometheus counters and gauges for observability
// across the Bot Supervisor, every Market Supervisor, and their Executors.
// Registered in init() and served by the HTTP handler started from cmd/bot
// at /metrics (Prometheus text exposition format).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ordersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpsbot_orders_submitted_total",
			Help: "Orders submitted to the exchange, by asset and action.",
		},
		[]string{"asset", "action"},
	)

	ordersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpsbot_orders_rejected_total",
			Help: "Orders rejected before or by the exchange, by asset and reason.",
		},
		[]string{"asset", "reason"},
	)

	fillsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpsbot_fills_applied_total",
			Help: "Fills reconciled into the open-position record, by asset and intent.",
		},
		[]string{"asset", "intent"},
	)

	tradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpsbot_trades_closed_total",
			Help: "Completed round-trip trades, by asset and result (win/loss).",
		},
		[]string{"asset", "result"},
	)

	restingOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perpsbot_resting_orders",
			Help: "Currently tracked resting orders, by asset.",
		},
		[]string{"asset"},
	)

	marginUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpsbot_margin_used_usd",
			Help: "Total margin currently allocated across all markets.",
		},
	)

	marginFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpsbot_margin_free_usd",
			Help: "Free margin available for new market allocations.",
		},
	)

	exposureActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perpsbot_exposure_active_markets",
			Help: "Number of markets currently counted against the exposure guard.",
		},
	)

	liquidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perpsbot_liquidations_total",
			Help: "Forced liquidation fills received from the exchange, by asset.",
		},
		[]string{"asset"},
	)
)

func init() {
	prometheus.MustRegister(
		ordersSubmitted, ordersRejected, fillsApplied, tradesClosed,
		restingOrders, marginUsed, marginFree, exposureActive, liquidations,
	)
}

// Handler returns the Prometheus text-exposition HTTP handler for /metrics.
func Handler() http.Handler { return promhttp.Handler() }

func IncOrderSubmitted(asset, action string) { ordersSubmitted.WithLabelValues(asset, action).Inc() }
func IncOrderRejected(asset, reason string)  { ordersRejected.WithLabelValues(asset, reason).Inc() }
func IncFillApplied(asset, intent string)    { fillsApplied.WithLabelValues(asset, intent).Inc() }

func IncTradeClosed(asset string, pnl float64) {
	result := "loss"
	if pnl >= 0 {
		result = "win"
	}
	tradesClosed.WithLabelValues(asset, result).Inc()
}

func SetRestingOrders(asset string, n int) { restingOrders.WithLabelValues(asset).Set(float64(n)) }
func SetMarginUsed(used float64)           { marginUsed.Set(used) }
func SetMarginFree(free float64)           { marginFree.Set(free) }
func SetExposureActive(n int)              { exposureActive.Set(float64(n)) }
func IncLiquidation(asset string)          { liquidations.WithLabelValues(asset).Inc() }
