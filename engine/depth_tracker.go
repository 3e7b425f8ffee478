package engine

import (
	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/models"
)

// DefaultDepthCapacity is the number of price levels tracked per side when
// the book is constructed without an explicit capacity.
const DefaultDepthCapacity = 10

// DepthLevel is one level of aggregated market depth: the price, the total
// open quantity and the order count at that price.
type DepthLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderCount int             `json:"order_count"`
}

// IsEmpty reports whether the entry holds no meaningful data.
func (dl DepthLevel) IsEmpty() bool {
	return dl.Quantity.IsZero() && dl.OrderCount == 0
}

// Equal compares price, quantity and order count.
func (dl DepthLevel) Equal(other DepthLevel) bool {
	return dl.Price.Equal(other.Price) &&
		dl.Quantity.Equal(other.Quantity) &&
		dl.OrderCount == other.OrderCount
}

// DepthChange is one structured delta between two consecutive snapshots of
// one side. Level appearance and disappearance are the degenerate cases
// where the old or new entry is absent.
type DepthChange struct {
	Side          models.OrderSide `json:"side"`
	Level         int              `json:"level"`
	Price         decimal.Decimal  `json:"price"`
	OldQuantity   decimal.Decimal  `json:"old_quantity"`
	NewQuantity   decimal.Decimal  `json:"new_quantity"`
	OldOrderCount int              `json:"old_order_count"`
	NewOrderCount int              `json:"new_order_count"`
}

// Delta returns the signed quantity change at this level.
func (dc DepthChange) Delta() decimal.Decimal {
	return dc.NewQuantity.Sub(dc.OldQuantity)
}

// DepthTracker derives a bounded top-N view of both sides of the book and
// detects level-by-level changes since the previous snapshot.
//
// Invariant: entries are populated contiguously from index 0 (best price)
// upward; an index at or beyond the live count holds no meaningful data.
// Levels beyond the capacity are invisible to depth consumers.
type DepthTracker struct {
	capacity int

	bids     []DepthLevel
	asks     []DepthLevel
	bidCount int
	askCount int

	prevBids     []DepthLevel
	prevAsks     []DepthLevel
	prevBidCount int
	prevAskCount int
}

// NewDepthTracker creates a tracker bounded to the given number of levels
// per side. Non-positive capacities fall back to the default.
func NewDepthTracker(capacity int) *DepthTracker {
	if capacity <= 0 {
		capacity = DefaultDepthCapacity
	}
	return &DepthTracker{
		capacity: capacity,
		bids:     make([]DepthLevel, capacity),
		asks:     make([]DepthLevel, capacity),
		prevBids: make([]DepthLevel, capacity),
		prevAsks: make([]DepthLevel, capacity),
	}
}

// Capacity returns the per-side level bound.
func (dt *DepthTracker) Capacity() int {
	return dt.capacity
}

// Refresh rebuilds both sides from the trackers in a single pass per side
// and returns the structured change list against the previous snapshot.
// The caller holds the book lock.
func (dt *DepthTracker) Refresh(bidTracker, askTracker *OrderTracker) []DepthChange {
	dt.prevBids, dt.bids = dt.bids, dt.prevBids
	dt.prevAsks, dt.asks = dt.asks, dt.prevAsks
	dt.prevBidCount, dt.prevAskCount = dt.bidCount, dt.askCount

	dt.bidCount = dt.rebuildSide(dt.bids, bidTracker)
	dt.askCount = dt.rebuildSide(dt.asks, askTracker)

	changes := make([]DepthChange, 0)
	changes = dt.appendSideChanges(changes, models.OrderSideBuy, dt.prevBids, dt.prevBidCount, dt.bids, dt.bidCount)
	changes = dt.appendSideChanges(changes, models.OrderSideSell, dt.prevAsks, dt.prevAskCount, dt.asks, dt.askCount)
	return changes
}

// rebuildSide writes up to capacity entries in priority order, skipping
// empty levels, and returns the live count.
func (dt *DepthTracker) rebuildSide(dest []DepthLevel, tracker *OrderTracker) int {
	count := 0
	tracker.eachLevel(func(level *PriceLevel) bool {
		if level.IsEmpty() {
			return true
		}
		if count >= dt.capacity {
			return false
		}
		dest[count] = DepthLevel{
			Price:      level.Price,
			Quantity:   level.TotalQuantity,
			OrderCount: level.OrderCount(),
		}
		count++
		return true
	})
	for i := count; i < dt.capacity; i++ {
		dest[i] = DepthLevel{}
	}
	return count
}

// appendSideChanges compares previous and current entries index by index up
// to max(prevCount, curCount), treating an out-of-range side as absent.
func (dt *DepthTracker) appendSideChanges(changes []DepthChange, side models.OrderSide,
	prev []DepthLevel, prevCount int, cur []DepthLevel, curCount int) []DepthChange {

	limit := prevCount
	if curCount > limit {
		limit = curCount
	}
	for i := 0; i < limit; i++ {
		var oldLevel, newLevel DepthLevel
		if i < prevCount {
			oldLevel = prev[i]
		}
		if i < curCount {
			newLevel = cur[i]
		}
		if oldLevel.Equal(newLevel) {
			continue
		}
		price := newLevel.Price
		if i >= curCount {
			price = oldLevel.Price
		}
		changes = append(changes, DepthChange{
			Side:          side,
			Level:         i,
			Price:         price,
			OldQuantity:   oldLevel.Quantity,
			NewQuantity:   newLevel.Quantity,
			OldOrderCount: oldLevel.OrderCount,
			NewOrderCount: newLevel.OrderCount,
		})
	}
	return changes
}

// BestBid returns the best bid entry; false if the bid side is empty.
func (dt *DepthTracker) BestBid() (DepthLevel, bool) {
	if dt.bidCount == 0 {
		return DepthLevel{}, false
	}
	return dt.bids[0], true
}

// BestAsk returns the best ask entry; false if the ask side is empty.
func (dt *DepthTracker) BestAsk() (DepthLevel, bool) {
	if dt.askCount == 0 {
		return DepthLevel{}, false
	}
	return dt.asks[0], true
}

// Spread returns best ask minus best bid, or zero if either side is empty.
func (dt *DepthTracker) Spread() decimal.Decimal {
	bid, haveBid := dt.BestBid()
	ask, haveAsk := dt.BestAsk()
	if !haveBid || !haveAsk {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// MidPrice returns the average of best bid and ask; with one side empty it
// falls back to the remaining side, and with both empty it returns zero.
func (dt *DepthTracker) MidPrice() decimal.Decimal {
	bid, haveBid := dt.BestBid()
	ask, haveAsk := dt.BestAsk()
	switch {
	case haveBid && haveAsk:
		return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
	case haveBid:
		return bid.Price
	case haveAsk:
		return ask.Price
	default:
		return decimal.Zero
	}
}

// SpreadPercent returns the spread relative to the mid price, in percent.
func (dt *DepthTracker) SpreadPercent() decimal.Decimal {
	mid := dt.MidPrice()
	if mid.IsZero() {
		return decimal.Zero
	}
	return dt.Spread().Div(mid).Mul(decimal.NewFromInt(100))
}

// BidLiquidity sums the visible quantity across the bid snapshot.
func (dt *DepthTracker) BidLiquidity() decimal.Decimal {
	return sumLiquidity(dt.bids, dt.bidCount)
}

// AskLiquidity sums the visible quantity across the ask snapshot.
func (dt *DepthTracker) AskLiquidity() decimal.Decimal {
	return sumLiquidity(dt.asks, dt.askCount)
}

func sumLiquidity(levels []DepthLevel, count int) decimal.Decimal {
	total := decimal.Zero
	for i := 0; i < count; i++ {
		total = total.Add(levels[i].Quantity)
	}
	return total
}

// Bids returns a copy of the live bid snapshot, best price first.
func (dt *DepthTracker) Bids() []DepthLevel {
	return copyLevels(dt.bids, dt.bidCount)
}

// Asks returns a copy of the live ask snapshot, best price first.
func (dt *DepthTracker) Asks() []DepthLevel {
	return copyLevels(dt.asks, dt.askCount)
}

func copyLevels(levels []DepthLevel, count int) []DepthLevel {
	out := make([]DepthLevel, count)
	copy(out, levels[:count])
	return out
}
