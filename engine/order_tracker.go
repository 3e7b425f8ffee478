package engine

import (
	"container/list"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vaasu2002/order-matching-system/logging"
	"github.com/vaasu2002/order-matching-system/models"
)

// Less orders price levels by ascending price inside the btree. Priority
// direction (descending for bids) is applied at iteration time.
func (pl *PriceLevel) Less(than btree.Item) bool {
	other := than.(*PriceLevel)
	return pl.Price.LessThan(other.Price)
}

// orderLocation records where an order lives: its price level and its
// element handle inside the level's FIFO queue. The element handle is
// stable across removals of other orders, so cancel stays O(1).
type orderLocation struct {
	level   *PriceLevel
	element *list.Element
}

// Match is one entry of a match plan: a resting order and the quantity the
// plan would take from it.
type Match struct {
	Order    *models.Order
	Quantity decimal.Decimal
}

// OrderTracker manages one side of the book: a price-ordered set of
// PriceLevels plus an order-id index for O(1) cancel and lookup.
//
// Invariant: every order referenced by the index belongs to exactly one
// price level in the tree and vice versa. Index and tree are always
// mutated together.
type OrderTracker struct {
	tree   *btree.BTree
	orders map[uint64]*orderLocation
	isBid  bool
}

// NewOrderTracker creates a tracker for one side. isBid selects priority
// ordering: descending price for bids, ascending for asks.
func NewOrderTracker(isBid bool) *OrderTracker {
	return &OrderTracker{
		tree:   btree.New(32),
		orders: make(map[uint64]*orderLocation),
		isBid:  isBid,
	}
}

// AddOrder inserts the order at its price level, lazily creating the level,
// and records its location in the index. Always succeeds for a structurally
// valid order.
func (ot *OrderTracker) AddOrder(order *models.Order) {
	ot.AddOrderWithKey(order, order.Price)
}

// AddOrderWithKey inserts the order under an explicit ladder price. The
// stop trackers use this to ladder orders by trigger price instead of
// limit price.
func (ot *OrderTracker) AddOrderWithKey(order *models.Order, key decimal.Decimal) {
	level := ot.getOrCreateLevel(key)
	element := level.AddOrder(order)
	ot.orders[order.ID] = &orderLocation{level: level, element: element}
}

// RemoveOrder removes the order from its price level and the index,
// evicting the level if it becomes empty. Returns the order and true, or
// nil and false if the id is unknown.
func (ot *OrderTracker) RemoveOrder(orderID uint64) (*models.Order, bool) {
	location, exists := ot.orders[orderID]
	if !exists {
		return nil, false
	}

	// A located index entry whose level is gone from the tree means a
	// prior bug corrupted the structure. Surface it instead of silently
	// continuing.
	if ot.tree.Get(location.level) == nil {
		logging.GetLogger().WithFields(logrus.Fields{
			"event":    logging.EventBookCorruption,
			"order_id": orderID,
			"price":    location.level.Price.String(),
			"is_bid":   ot.isBid,
		}).Error("Order index references a price level missing from the ladder")
		delete(ot.orders, orderID)
		return nil, false
	}

	order := location.element.Value.(*models.Order)
	location.level.RemoveOrder(location.element)
	if location.level.IsEmpty() {
		ot.tree.Delete(location.level)
	}
	delete(ot.orders, orderID)
	return order, true
}

// GetOrder looks up an order by id without touching the book structure.
func (ot *OrderTracker) GetOrder(orderID uint64) (*models.Order, bool) {
	location, exists := ot.orders[orderID]
	if !exists {
		return nil, false
	}
	return location.element.Value.(*models.Order), true
}

// UpdateOrderQuantity sets a new open quantity on the order, adjusting the
// level aggregate by the delta. No-op (false) if the id is unknown.
func (ot *OrderTracker) UpdateOrderQuantity(orderID uint64, newOpenQty decimal.Decimal) bool {
	location, exists := ot.orders[orderID]
	if !exists {
		return false
	}
	order := location.element.Value.(*models.Order)
	location.level.UpdateQuantity(order.OpenQuantity, newOpenQty)
	order.OpenQuantity = newOpenQty
	return true
}

// ApplyFill decrements a resting order's open quantity by the fill amount
// together with the level aggregate, evicting the order (and an emptied
// level) once fully filled. Index and tree stay coherent throughout.
func (ot *OrderTracker) ApplyFill(order *models.Order, quantity decimal.Decimal) {
	location, exists := ot.orders[order.ID]
	if !exists {
		return
	}
	location.level.TotalQuantity = location.level.TotalQuantity.Sub(quantity)
	order.Fill(quantity)

	if order.IsFilled() {
		location.level.Orders.Remove(location.element)
		if location.level.IsEmpty() {
			ot.tree.Delete(location.level)
		}
		delete(ot.orders, order.ID)
	}
}

// BestLevel returns the highest-priority price level, or nil if the side is
// empty. Absence is the empty-book sentinel, never a forged zero price.
func (ot *OrderTracker) BestLevel() *PriceLevel {
	var item btree.Item
	if ot.isBid {
		item = ot.tree.Max()
	} else {
		item = ot.tree.Min()
	}
	if item == nil {
		return nil
	}
	return item.(*PriceLevel)
}

// BestPrice returns the best price, or nil if the side is empty.
func (ot *OrderTracker) BestPrice() *decimal.Decimal {
	level := ot.BestLevel()
	if level == nil {
		return nil
	}
	return &level.Price
}

// MatchQuantity walks price levels in priority order while the level price
// crosses the limit and, within each level, walks orders FIFO, taking
// min(open, remaining) from each. It returns the full match plan without
// mutating any state, so the caller can apply all-or-none / fill-or-kill
// checks before committing.
//
// The models.MarketPrice sentinel disables the crossing test entirely.
func (ot *OrderTracker) MatchQuantity(limitPrice, maxQuantity decimal.Decimal) []Match {
	matches := make([]Match, 0)
	remaining := maxQuantity

	ot.eachLevel(func(level *PriceLevel) bool {
		if remaining.LessThanOrEqual(decimal.Zero) {
			return false
		}
		if !ot.crosses(level.Price, limitPrice) {
			return false
		}
		for element := level.Orders.Front(); element != nil; element = element.Next() {
			if remaining.LessThanOrEqual(decimal.Zero) {
				break
			}
			order := element.Value.(*models.Order)
			qty := decimal.Min(order.OpenQuantity, remaining)
			matches = append(matches, Match{Order: order, Quantity: qty})
			remaining = remaining.Sub(qty)
		}
		return true
	})
	return matches
}

// crosses applies the side's crossing test: an ask level qualifies against
// a buy when its price is at or below the buy limit, a bid level against a
// sell when its price is at or above the sell limit.
func (ot *OrderTracker) crosses(levelPrice, limitPrice decimal.Decimal) bool {
	if limitPrice.Equal(models.MarketPrice) {
		return true
	}
	if ot.isBid {
		return levelPrice.GreaterThanOrEqual(limitPrice)
	}
	return levelPrice.LessThanOrEqual(limitPrice)
}

// eachLevel iterates levels in priority order: descending price for bids,
// ascending for asks.
func (ot *OrderTracker) eachLevel(fn func(level *PriceLevel) bool) {
	iterator := func(item btree.Item) bool {
		return fn(item.(*PriceLevel))
	}
	if ot.isBid {
		ot.tree.Descend(iterator)
	} else {
		ot.tree.Ascend(iterator)
	}
}

// LevelCount returns the number of non-empty price levels.
func (ot *OrderTracker) LevelCount() int {
	return ot.tree.Len()
}

// OrderCount returns the number of orders indexed on this side.
func (ot *OrderTracker) OrderCount() int {
	return len(ot.orders)
}

// TotalQuantity sums the open quantity across every level on this side.
func (ot *OrderTracker) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	ot.eachLevel(func(level *PriceLevel) bool {
		total = total.Add(level.TotalQuantity)
		return true
	})
	return total
}

func (ot *OrderTracker) getOrCreateLevel(price decimal.Decimal) *PriceLevel {
	search := &PriceLevel{Price: price}
	if item := ot.tree.Get(search); item != nil {
		return item.(*PriceLevel)
	}
	level := NewPriceLevel(price)
	ot.tree.ReplaceOrInsert(level)
	return level
}
