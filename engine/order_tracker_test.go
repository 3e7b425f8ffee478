package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/models"
)

func TestTrackerAddAndBestPrice(t *testing.T) {
	bids := NewOrderTracker(true)
	asks := NewOrderTracker(false)

	bids.AddOrder(newTestOrder(1, models.OrderSideBuy, 100, 10))
	bids.AddOrder(newTestOrder(2, models.OrderSideBuy, 102, 5))
	bids.AddOrder(newTestOrder(3, models.OrderSideBuy, 99, 7))

	asks.AddOrder(newTestOrder(4, models.OrderSideSell, 105, 10))
	asks.AddOrder(newTestOrder(5, models.OrderSideSell, 103, 5))

	if best := bids.BestPrice(); best == nil || !best.Equal(decimal.NewFromInt(102)) {
		t.Errorf("Expected best bid 102, got %v", best)
	}
	if best := asks.BestPrice(); best == nil || !best.Equal(decimal.NewFromInt(103)) {
		t.Errorf("Expected best ask 103, got %v", best)
	}
}

func TestTrackerEmptyBestPriceIsAbsent(t *testing.T) {
	tracker := NewOrderTracker(true)
	if tracker.BestPrice() != nil {
		t.Error("Empty side must report absence, never a forged price")
	}
	if tracker.BestLevel() != nil {
		t.Error("Empty side must have no best level")
	}
}

func TestTrackerRemoveUnknownIsNoOp(t *testing.T) {
	tracker := NewOrderTracker(true)
	tracker.AddOrder(newTestOrder(1, models.OrderSideBuy, 100, 10))

	if _, ok := tracker.RemoveOrder(999); ok {
		t.Error("Removing an unknown id must fail")
	}
	if tracker.OrderCount() != 1 || tracker.LevelCount() != 1 {
		t.Error("Failed removal must not touch the book")
	}
}

func TestTrackerRemoveEvictsEmptyLevel(t *testing.T) {
	tracker := NewOrderTracker(true)
	tracker.AddOrder(newTestOrder(1, models.OrderSideBuy, 100, 10))
	tracker.AddOrder(newTestOrder(2, models.OrderSideBuy, 100, 5))
	tracker.AddOrder(newTestOrder(3, models.OrderSideBuy, 101, 5))

	order, ok := tracker.RemoveOrder(3)
	if !ok || order.ID != 3 {
		t.Fatal("Expected to remove order 3")
	}
	if tracker.LevelCount() != 1 {
		t.Errorf("Emptied level must be evicted, levels %d", tracker.LevelCount())
	}

	// Level with a remaining member is kept.
	tracker.RemoveOrder(1)
	if tracker.LevelCount() != 1 {
		t.Errorf("Level with a remaining order must stay, levels %d", tracker.LevelCount())
	}
}

func TestTrackerIndexMapCoherence(t *testing.T) {
	tracker := NewOrderTracker(false)
	for i := uint64(1); i <= 6; i++ {
		tracker.AddOrder(newTestOrder(i, models.OrderSideSell, int64(100+i%3), 10))
	}
	tracker.RemoveOrder(2)
	tracker.RemoveOrder(5)

	// Every indexed order must be reachable through its level, and every
	// order in every level must be indexed.
	indexed := make(map[uint64]bool)
	for id, loc := range tracker.orders {
		found := false
		for e := loc.level.Orders.Front(); e != nil; e = e.Next() {
			if e.Value.(*models.Order).ID == id {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Indexed order %d missing from its level", id)
		}
		indexed[id] = true
	}
	tracker.eachLevel(func(level *PriceLevel) bool {
		for e := level.Orders.Front(); e != nil; e = e.Next() {
			id := e.Value.(*models.Order).ID
			if !indexed[id] {
				t.Errorf("Order %d in level has no index entry", id)
			}
		}
		return true
	})
}

func TestTrackerUpdateOrderQuantity(t *testing.T) {
	tracker := NewOrderTracker(true)
	order := newTestOrder(1, models.OrderSideBuy, 100, 10)
	tracker.AddOrder(order)

	if !tracker.UpdateOrderQuantity(1, decimal.NewFromInt(6)) {
		t.Fatal("Expected update to succeed")
	}
	if !order.OpenQuantity.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected open quantity 6, got %s", order.OpenQuantity)
	}
	if !tracker.BestLevel().TotalQuantity.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Level aggregate must follow the update, got %s", tracker.BestLevel().TotalQuantity)
	}
	if tracker.UpdateOrderQuantity(999, decimal.NewFromInt(1)) {
		t.Error("Unknown id must be a no-op")
	}
}

func TestMatchQuantityAskSideCrossing(t *testing.T) {
	asks := NewOrderTracker(false)
	asks.AddOrder(newTestOrder(1, models.OrderSideSell, 101, 5))
	asks.AddOrder(newTestOrder(2, models.OrderSideSell, 102, 5))
	asks.AddOrder(newTestOrder(3, models.OrderSideSell, 105, 5))

	// Buy limit 102 crosses the 101 and 102 levels only.
	matches := asks.MatchQuantity(decimal.NewFromInt(102), decimal.NewFromInt(20))

	if len(matches) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(matches))
	}
	if matches[0].Order.ID != 1 || matches[1].Order.ID != 2 {
		t.Errorf("Expected priority order [1 2], got [%d %d]", matches[0].Order.ID, matches[1].Order.ID)
	}
}

func TestMatchQuantityBidSideCrossing(t *testing.T) {
	bids := NewOrderTracker(true)
	bids.AddOrder(newTestOrder(1, models.OrderSideBuy, 100, 5))
	bids.AddOrder(newTestOrder(2, models.OrderSideBuy, 98, 5))

	// Sell limit 99 crosses only the 100 bid level.
	matches := bids.MatchQuantity(decimal.NewFromInt(99), decimal.NewFromInt(20))

	if len(matches) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(matches))
	}
	if matches[0].Order.ID != 1 {
		t.Errorf("Expected candidate order 1, got %d", matches[0].Order.ID)
	}
}

func TestMatchQuantityMarketSentinelIgnoresPrices(t *testing.T) {
	asks := NewOrderTracker(false)
	asks.AddOrder(newTestOrder(1, models.OrderSideSell, 101, 5))
	asks.AddOrder(newTestOrder(2, models.OrderSideSell, 999, 5))

	matches := asks.MatchQuantity(models.MarketPrice, decimal.NewFromInt(20))
	if len(matches) != 2 {
		t.Fatalf("Market sentinel must cross every level, got %d candidates", len(matches))
	}
}

func TestMatchQuantityBoundedAndNonMutating(t *testing.T) {
	asks := NewOrderTracker(false)
	first := newTestOrder(1, models.OrderSideSell, 101, 10)
	second := newTestOrder(2, models.OrderSideSell, 101, 10)
	asks.AddOrder(first)
	asks.AddOrder(second)

	matches := asks.MatchQuantity(models.MarketPrice, decimal.NewFromInt(12))

	if len(matches) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(matches))
	}
	if !matches[0].Quantity.Equal(decimal.NewFromInt(10)) || !matches[1].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected quantities [10 2], got [%s %s]", matches[0].Quantity, matches[1].Quantity)
	}

	// The plan must not mutate any state.
	if !first.OpenQuantity.Equal(decimal.NewFromInt(10)) || !second.OpenQuantity.Equal(decimal.NewFromInt(10)) {
		t.Error("MatchQuantity must not touch resting orders")
	}
	if asks.OrderCount() != 2 || asks.LevelCount() != 1 {
		t.Error("MatchQuantity must not touch book structure")
	}
}

func TestTrackerApplyFillEvictsFilledOrder(t *testing.T) {
	asks := NewOrderTracker(false)
	order := newTestOrder(1, models.OrderSideSell, 101, 10)
	asks.AddOrder(order)

	asks.ApplyFill(order, decimal.NewFromInt(4))
	if order.Status != models.OrderStatusPartiallyFilled {
		t.Errorf("Expected partially_filled, got %s", order.Status)
	}
	if !asks.BestLevel().TotalQuantity.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected level total 6, got %s", asks.BestLevel().TotalQuantity)
	}

	asks.ApplyFill(order, decimal.NewFromInt(6))
	if order.Status != models.OrderStatusFilled {
		t.Errorf("Expected filled, got %s", order.Status)
	}
	if asks.OrderCount() != 0 || asks.LevelCount() != 0 {
		t.Error("Filled order and emptied level must both be evicted")
	}
}

func TestTrackerStopLadderKeying(t *testing.T) {
	// Stop orders ladder by trigger price, not limit price.
	stops := NewOrderTracker(false)
	order := models.NewStopOrder(1, "client1", "BTC-USD", models.OrderSideBuy,
		models.OrderTypeStopLimit, decimal.NewFromInt(105), decimal.NewFromInt(102), decimal.NewFromInt(5))
	stops.AddOrderWithKey(order, order.StopPrice)

	if best := stops.BestPrice(); best == nil || !best.Equal(decimal.NewFromInt(102)) {
		t.Errorf("Expected ladder keyed at stop price 102, got %v", best)
	}
}
