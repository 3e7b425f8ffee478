package engine

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// OrderBookStats tracks monotonically non-decreasing book counters. The
// counters are atomic so read-only statistics queries never take the book
// lock; they are always written inside the same critical section as the
// mutation they describe, so external readers see them eventually
// consistent with an in-flight matching operation. Only Reset decreases
// them.
type OrderBookStats struct {
	ordersAdded     atomic.Uint64
	ordersCancelled atomic.Uint64
	ordersReplaced  atomic.Uint64
	totalTrades     atomic.Uint64
	totalRejected   atomic.Uint64

	// Volume is decimal, so it gets its own lock instead of an atomic.
	// Readers still stay off the book lock.
	volumeMu    sync.RWMutex
	totalVolume decimal.Decimal
}

// StatsSnapshot is a point-in-time copy of all counters.
type StatsSnapshot struct {
	OrdersAdded     uint64          `json:"orders_added"`
	OrdersCancelled uint64          `json:"orders_cancelled"`
	OrdersReplaced  uint64          `json:"orders_replaced"`
	TotalTrades     uint64          `json:"total_trades"`
	TotalVolume     decimal.Decimal `json:"total_volume"`
	TotalRejected   uint64          `json:"total_rejected"`
}

func (s *OrderBookStats) recordAdd()     { s.ordersAdded.Add(1) }
func (s *OrderBookStats) recordCancel()  { s.ordersCancelled.Add(1) }
func (s *OrderBookStats) recordReplace() { s.ordersReplaced.Add(1) }
func (s *OrderBookStats) recordReject()  { s.totalRejected.Add(1) }

func (s *OrderBookStats) recordTrade(quantity decimal.Decimal) {
	s.totalTrades.Add(1)
	s.volumeMu.Lock()
	s.totalVolume = s.totalVolume.Add(quantity)
	s.volumeMu.Unlock()
}

// OrdersAdded returns the orders-accepted counter.
func (s *OrderBookStats) OrdersAdded() uint64 { return s.ordersAdded.Load() }

// OrdersCancelled returns the cancellation counter.
func (s *OrderBookStats) OrdersCancelled() uint64 { return s.ordersCancelled.Load() }

// OrdersReplaced returns the replace counter.
func (s *OrderBookStats) OrdersReplaced() uint64 { return s.ordersReplaced.Load() }

// TotalTrades returns the executed-trade counter.
func (s *OrderBookStats) TotalTrades() uint64 { return s.totalTrades.Load() }

// TotalRejected returns the rejection counter.
func (s *OrderBookStats) TotalRejected() uint64 { return s.totalRejected.Load() }

// TotalVolume returns the cumulative traded quantity.
func (s *OrderBookStats) TotalVolume() decimal.Decimal {
	s.volumeMu.RLock()
	defer s.volumeMu.RUnlock()
	return s.totalVolume
}

// Snapshot copies every counter at once.
func (s *OrderBookStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		OrdersAdded:     s.OrdersAdded(),
		OrdersCancelled: s.OrdersCancelled(),
		OrdersReplaced:  s.OrdersReplaced(),
		TotalTrades:     s.TotalTrades(),
		TotalVolume:     s.TotalVolume(),
		TotalRejected:   s.TotalRejected(),
	}
}

// Reset zeroes every counter. The only operation allowed to decrease them.
func (s *OrderBookStats) Reset() {
	s.ordersAdded.Store(0)
	s.ordersCancelled.Store(0)
	s.ordersReplaced.Store(0)
	s.totalTrades.Store(0)
	s.totalRejected.Store(0)
	s.volumeMu.Lock()
	s.totalVolume = decimal.Zero
	s.volumeMu.Unlock()
}
