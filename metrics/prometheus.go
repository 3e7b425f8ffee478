package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter: Total orders received
	OrdersReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_received_total",
			Help: "Total number of orders received by the matching engine",
		},
		[]string{"symbol", "side", "type"},
	)

	// Counter: Total orders rejected
	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Total number of orders rejected by validation",
		},
		[]string{"symbol", "reason"},
	)

	// Histogram: Order processing latency
	OrderLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_latency_seconds",
			Help:    "Time taken to process an order from receipt to completion",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3.2s
		},
		[]string{"symbol", "type"},
	)

	// Gauge: Current number of resting orders per side
	CurrentOrderbookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "current_orderbook_depth",
			Help: "Current number of resting orders in the book",
		},
		[]string{"symbol", "side"},
	)

	// Gauge: Best bid/ask prices
	BestBidPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "best_bid_price",
			Help: "Current best bid price in the book",
		},
		[]string{"symbol"},
	)

	BestAskPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "best_ask_price",
			Help: "Current best ask price in the book",
		},
		[]string{"symbol"},
	)

	// Gauge: Spread between best ask and best bid
	OrderbookSpread = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orderbook_spread",
			Help: "Current spread between best bid and best ask",
		},
		[]string{"symbol"},
	)

	// Counter: Trades executed
	TradesExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_executed_total",
			Help: "Total number of trades executed",
		},
		[]string{"symbol"},
	)

	// Counter: Volume traded
	TradedVolumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traded_volume_total",
			Help: "Total volume traded",
		},
		[]string{"symbol"},
	)

	// Histogram: Trade size distribution
	TradeSizeDistribution = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trade_size_distribution",
			Help:    "Distribution of trade sizes",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"symbol"},
	)
)

// RecordOrderReceived increments the orders_received_total counter.
func RecordOrderReceived(symbol, side, orderType string) {
	OrdersReceivedTotal.WithLabelValues(symbol, side, orderType).Inc()
}

// RecordOrderRejected increments the orders_rejected_total counter.
func RecordOrderRejected(symbol, reason string) {
	OrdersRejectedTotal.WithLabelValues(symbol, reason).Inc()
}

// RecordOrderLatency records the time taken to process an order.
func RecordOrderLatency(symbol, orderType string, seconds float64) {
	OrderLatencySeconds.WithLabelValues(symbol, orderType).Observe(seconds)
}

// UpdateOrderbookDepth updates the resting-order gauge for one side.
func UpdateOrderbookDepth(symbol, side string, depth float64) {
	CurrentOrderbookDepth.WithLabelValues(symbol, side).Set(depth)
}

// UpdateBestPrices updates best bid/ask gauges and the spread.
func UpdateBestPrices(symbol string, bestBid, bestAsk float64) {
	if bestBid > 0 {
		BestBidPrice.WithLabelValues(symbol).Set(bestBid)
	}
	if bestAsk > 0 {
		BestAskPrice.WithLabelValues(symbol).Set(bestAsk)
	}
	if bestBid > 0 && bestAsk > 0 {
		OrderbookSpread.WithLabelValues(symbol).Set(bestAsk - bestBid)
	}
}

// RecordTrade records a trade execution and its size.
func RecordTrade(symbol string, quantity float64) {
	TradesExecutedTotal.WithLabelValues(symbol).Inc()
	TradedVolumeTotal.WithLabelValues(symbol).Add(quantity)
	TradeSizeDistribution.WithLabelValues(symbol).Observe(quantity)
}
