package engine

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vaasu2002/order-matching-system/logging"
	"github.com/vaasu2002/order-matching-system/metrics"
	"github.com/vaasu2002/order-matching-system/models"
)

// OrderBook manages buy and sell orders for one instrument, matches trades
// under price-time priority, and notifies listeners of every event.
//
// One OrderBook instance exists per instrument. Instruments share no
// mutable state, so cross-instrument concurrency is handled by sharding on
// symbol. Within one instrument every state-mutating entry point runs
// under a single exclusive lock; internal methods with the Locked suffix
// assume that lock is held, which is how nested flows (stop triggering
// re-entering the matching path) stay on one critical section.
type OrderBook struct {
	symbol string

	bidTracker *OrderTracker // resting buy orders, descending price priority
	askTracker *OrderTracker // resting sell orders, ascending price priority

	// Stop orders ladder by trigger price: stop-buys trigger lowest first,
	// stop-sells highest first.
	stopBidTracker *OrderTracker
	stopAskTracker *OrderTracker

	depth *DepthTracker

	marketPrice       decimal.Decimal
	lastTradePrice    decimal.Decimal
	lastTradeQuantity decimal.Decimal

	orderListeners []OrderListener
	tradeListeners []TradeListener
	bookListeners  []BookListener
	depthListeners []DepthListener

	stats OrderBookStats

	// Trades accumulate here until a consumer drains them. The draining
	// contract is DrainPendingTrades: batch consumption, caller-defined
	// cadence.
	pendingTrades []TradeExecution

	// Execution conditions of queued stop orders, keyed by order id. The
	// entry travels with the order when its trigger fires, so an AON or
	// IOC constraint given at submission still binds the triggered match.
	stopConditions map[uint64]models.OrderConditions

	mu sync.RWMutex
}

// NewOrderBook creates an order book for an instrument with the default
// depth capacity.
func NewOrderBook(symbol string) *OrderBook {
	return NewOrderBookWithDepth(symbol, DefaultDepthCapacity)
}

// NewOrderBookWithDepth creates an order book tracking the given number of
// depth levels per side.
func NewOrderBookWithDepth(symbol string, depthCapacity int) *OrderBook {
	return &OrderBook{
		symbol:            symbol,
		bidTracker:        NewOrderTracker(true),
		askTracker:        NewOrderTracker(false),
		stopBidTracker:    NewOrderTracker(false), // lowest trigger first
		stopAskTracker:    NewOrderTracker(true),  // highest trigger first
		depth:             NewDepthTracker(depthCapacity),
		marketPrice:       decimal.Zero,
		lastTradePrice:    decimal.Zero,
		lastTradeQuantity: decimal.Zero,
		pendingTrades:     make([]TradeExecution, 0, 1024),
		stopConditions:    make(map[uint64]models.OrderConditions),
	}
}

// Symbol returns the instrument this book trades.
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

// ========== Listener Management ==========

// AddOrderListener subscribes a listener to order lifecycle events.
func (ob *OrderBook) AddOrderListener(listener OrderListener) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.orderListeners = append(ob.orderListeners, listener)
}

// AddTradeListener subscribes a listener to trade executions.
func (ob *OrderBook) AddTradeListener(listener TradeListener) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.tradeListeners = append(ob.tradeListeners, listener)
}

// AddBookListener subscribes a listener to whole-book and BBO changes.
func (ob *OrderBook) AddBookListener(listener BookListener) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bookListeners = append(ob.bookListeners, listener)
}

// AddDepthListener subscribes a listener to per-level depth changes.
func (ob *OrderBook) AddDepthListener(listener DepthListener) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.depthListeners = append(ob.depthListeners, listener)
}

// ========== Core Order Operations ==========

// AddOrder validates, routes and matches an incoming order, returning
// whether any quantity was filled. Invalid orders are rejected via the
// reject notification and never touch book state.
func (ob *OrderBook) AddOrder(order *models.Order, conditions models.OrderConditions) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.addOrderLocked(order, conditions)
}

func (ob *OrderBook) addOrderLocked(order *models.Order, conditions models.OrderConditions) bool {
	if reason, ok := ob.validateOrder(order); !ok {
		ob.rejectOrderLocked(order, reason)
		return false
	}

	order.Status = models.OrderStatusAccepted
	ob.stats.recordAdd()
	metrics.RecordOrderReceived(ob.symbol, string(order.Side), string(order.Type))
	logging.LogOrderAccepted(order.ID, ob.symbol)
	for _, listener := range ob.orderListeners {
		listener.OnAccept(order)
	}

	// Untriggered stops queue in the stop tracker and are invisible to the
	// live book until the market price crosses their trigger.
	if order.IsStop() && !ob.stopTriggered(order) {
		ob.queueStopOrderLocked(order, conditions)
		return false
	}

	filled := ob.processOrderLocked(order, conditions)
	ob.checkStopOrdersLocked()
	ob.publishDepthLocked()
	return filled
}

// CancelOrder removes the order from whichever tracker holds it. Returns
// false for an unknown id with no side effects.
func (ob *OrderBook) CancelOrder(orderID uint64) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	trackers := []*OrderTracker{ob.bidTracker, ob.askTracker, ob.stopBidTracker, ob.stopAskTracker}
	for _, tracker := range trackers {
		order, ok := tracker.RemoveOrder(orderID)
		if !ok {
			continue
		}
		cancelledQty := order.OpenQuantity
		order.Cancel()
		delete(ob.stopConditions, orderID)
		ob.stats.recordCancel()
		for _, listener := range ob.orderListeners {
			listener.OnCancel(order, cancelledQty)
		}
		ob.publishDepthLocked()
		return true
	}
	return false
}

// ReplaceOrder modifies a resting order's price and/or quantity. The
// models.PriceUnchanged and models.SizeUnchanged sentinels leave a field
// alone. A quantity-only decrease keeps the order's time priority; any
// price change or quantity increase loses priority and re-enters matching.
// Returns false for an unknown id.
func (ob *OrderBook) ReplaceOrder(orderID uint64, newPrice, newQty decimal.Decimal) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order, tracker := ob.findRestingOrderLocked(orderID)
	if order == nil {
		unknown := &models.Order{ID: orderID, Symbol: ob.symbol}
		for _, listener := range ob.orderListeners {
			listener.OnReplaceReject(unknown, "unknown order id")
		}
		return false
	}

	if newPrice.Equal(models.PriceUnchanged) {
		newPrice = order.Price
	}
	if newQty.Equal(models.SizeUnchanged) {
		newQty = order.Quantity
	}

	filled := order.FilledQuantity()
	if newPrice.LessThanOrEqual(decimal.Zero) || newQty.LessThanOrEqual(filled) {
		for _, listener := range ob.orderListeners {
			listener.OnReplaceReject(order, "invalid replace parameters")
		}
		return false
	}

	if newPrice.Equal(order.Price) && newQty.LessThan(order.Quantity) {
		// Size-down in place: priority preserved.
		tracker.UpdateOrderQuantity(orderID, newQty.Sub(filled))
		order.Quantity = newQty
		ob.stats.recordReplace()
		logging.LogOrderReplaced(orderID, ob.symbol, newPrice.String(), newQty.String())
		for _, listener := range ob.orderListeners {
			listener.OnReplace(order, order)
		}
		ob.publishDepthLocked()
		return true
	}

	tracker.RemoveOrder(orderID)
	replacement := *order
	replacement.Price = newPrice
	replacement.Quantity = newQty
	replacement.OpenQuantity = newQty.Sub(filled)
	replacement.Status = models.OrderStatusAccepted
	order.Status = models.OrderStatusReplaced

	ob.stats.recordReplace()
	logging.LogOrderReplaced(orderID, ob.symbol, newPrice.String(), newQty.String())
	for _, listener := range ob.orderListeners {
		listener.OnReplace(order, &replacement)
	}

	ob.processOrderLocked(&replacement, models.NoConditions)
	ob.checkStopOrdersLocked()
	ob.publishDepthLocked()
	return true
}

// SetMarketPrice seeds the reference market price, evaluating stop
// triggers against it.
func (ob *OrderBook) SetMarketPrice(price decimal.Decimal) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.marketPrice = price
	ob.checkStopOrdersLocked()
	ob.publishDepthLocked()
}

// ========== Validation ==========

func (ob *OrderBook) validateOrder(order *models.Order) (string, bool) {
	switch {
	case order == nil:
		return "nil order", false
	case order.Symbol != ob.symbol:
		return "symbol mismatch", false
	case order.Quantity.LessThanOrEqual(decimal.Zero):
		return "non-positive quantity", false
	case order.OpenQuantity.GreaterThan(order.Quantity):
		return "open quantity exceeds total quantity", false
	case !order.IsMarket() && order.Type != models.OrderTypeStop && order.Price.LessThanOrEqual(decimal.Zero):
		return "non-positive price", false
	case order.IsStop() && order.StopPrice.LessThanOrEqual(decimal.Zero):
		return "non-positive stop price", false
	}
	return "", true
}

func (ob *OrderBook) rejectOrderLocked(order *models.Order, reason string) {
	if order == nil {
		return
	}
	order.Reject()
	ob.stats.recordReject()
	metrics.RecordOrderRejected(ob.symbol, reason)
	logging.LogOrderRejected(order.ID, order.ClientID, ob.symbol, reason)
	for _, listener := range ob.orderListeners {
		listener.OnReject(order, reason)
	}
}

// ========== Order Processing ==========

// processOrderLocked routes by type: market orders (and triggered stops)
// match with no price limit and never rest; limit orders (and triggered
// stop-limits) match while crossing and rest any GTC/DAY remainder.
func (ob *OrderBook) processOrderLocked(order *models.Order, conditions models.OrderConditions) bool {
	marketLike := order.IsMarket() || order.Type == models.OrderTypeStop

	limitPrice := order.Price
	if marketLike {
		limitPrice = models.MarketPrice
	}

	filled := ob.matchOrderLocked(order, conditions, limitPrice)
	if order.Status.IsTerminal() {
		return filled
	}

	if order.OpenQuantity.GreaterThan(decimal.Zero) {
		immediate := conditions.IsImmediateOrCancel() ||
			order.TimeInForce == models.TimeInForceIOC ||
			order.TimeInForce == models.TimeInForceFOK
		if marketLike || immediate {
			// Market orders never rest; IOC remainders are cancelled.
			ob.cancelRemainderLocked(order)
		} else {
			ob.restOrderLocked(order)
		}
	}
	return filled
}

// matchOrderLocked queries the opposite tracker for a match plan and
// executes the accepted fills in priority order.
//
// Fill-or-kill is checked against the whole plan before any execution: if
// the plan cannot fully satisfy the order, it is cancelled with no fills.
// All-or-none is a per-candidate check over the plan entries: an entry
// whose planned quantity cannot satisfy the inbound order's full remaining
// quantity is skipped, not partially consumed. The plan's quantity budget
// is consumed by skipped entries too, so a small candidate ahead in the
// queue can shadow a larger one behind it.
func (ob *OrderBook) matchOrderLocked(order *models.Order, conditions models.OrderConditions, limitPrice decimal.Decimal) bool {
	opposite := ob.askTracker
	if order.IsSell() {
		opposite = ob.bidTracker
	}

	matches := opposite.MatchQuantity(limitPrice, order.OpenQuantity)

	if order.TimeInForce == models.TimeInForceFOK {
		plannable := decimal.Zero
		for _, m := range matches {
			plannable = plannable.Add(m.Quantity)
		}
		if plannable.LessThan(order.OpenQuantity) {
			ob.cancelRemainderLocked(order)
			return false
		}
	}

	anyFill := false
	for _, m := range matches {
		if order.OpenQuantity.LessThanOrEqual(decimal.Zero) {
			break
		}
		if conditions.IsAllOrNone() && m.Quantity.LessThan(order.OpenQuantity) {
			continue
		}
		fillQty := decimal.Min(m.Quantity, order.OpenQuantity)
		ob.executeTradeLocked(order, m.Order, fillQty, m.Order.Price)
		anyFill = true
	}
	return anyFill
}

// executeTradeLocked creates the trade record, updates statistics and
// market state, applies the fill to both orders, and fans the event out.
// The resting order's price is always the execution price: the resting
// side is price-maker.
func (ob *OrderBook) executeTradeLocked(inbound, resting *models.Order, quantity, price decimal.Decimal) {
	trade := newTradeExecution(inbound, resting, quantity, price)
	ob.pendingTrades = append(ob.pendingTrades, trade)

	ob.stats.recordTrade(quantity)
	ob.lastTradePrice = price
	ob.lastTradeQuantity = quantity
	ob.marketPrice = price

	restingTracker := ob.askTracker
	if resting.IsBuy() {
		restingTracker = ob.bidTracker
	}
	restingTracker.ApplyFill(resting, quantity)
	inbound.Fill(quantity)

	qty, _ := quantity.Float64()
	metrics.RecordTrade(ob.symbol, qty)

	logging.GetLogger().WithFields(logrus.Fields{
		"event":            logging.EventTradeExecuted,
		"trade_id":         trade.TradeID.String(),
		"symbol":           ob.symbol,
		"inbound_order_id": inbound.ID,
		"resting_order_id": resting.ID,
		"price":            price.String(),
		"quantity":         quantity.String(),
	}).Debug("Trade executed")

	for _, listener := range ob.orderListeners {
		listener.OnFill(inbound, resting, quantity, price)
		listener.OnFill(resting, inbound, quantity, price)
	}
	for _, listener := range ob.tradeListeners {
		listener.OnTrade(inbound, resting, quantity, price,
			trade.InboundFilled(), trade.RestingFilled())
	}
}

func (ob *OrderBook) cancelRemainderLocked(order *models.Order) {
	cancelledQty := order.OpenQuantity
	order.Cancel()
	ob.stats.recordCancel()
	for _, listener := range ob.orderListeners {
		listener.OnCancel(order, cancelledQty)
	}
}

func (ob *OrderBook) restOrderLocked(order *models.Order) {
	if order.IsBuy() {
		ob.bidTracker.AddOrder(order)
	} else {
		ob.askTracker.AddOrder(order)
	}
}

// ========== Stop Orders ==========

func (ob *OrderBook) stopTriggered(order *models.Order) bool {
	if ob.marketPrice.IsZero() {
		return false
	}
	if order.IsBuy() {
		return ob.marketPrice.GreaterThanOrEqual(order.StopPrice)
	}
	return ob.marketPrice.LessThanOrEqual(order.StopPrice)
}

func (ob *OrderBook) queueStopOrderLocked(order *models.Order, conditions models.OrderConditions) {
	if order.IsBuy() {
		ob.stopBidTracker.AddOrderWithKey(order, order.StopPrice)
	} else {
		ob.stopAskTracker.AddOrderWithKey(order, order.StopPrice)
	}
	if conditions != models.NoConditions {
		ob.stopConditions[order.ID] = conditions
	}
}

// checkStopOrdersLocked releases every stop order whose trigger the market
// price has crossed and re-enters each into the matching path under the
// held lock. Executions can move the market price and trigger further
// stops, so the sweep repeats until quiescent.
func (ob *OrderBook) checkStopOrdersLocked() {
	for {
		triggered := ob.takeTriggeredLocked(ob.stopBidTracker)
		triggered = append(triggered, ob.takeTriggeredLocked(ob.stopAskTracker)...)
		if len(triggered) == 0 {
			return
		}
		for _, order := range triggered {
			conditions := ob.stopConditions[order.ID]
			delete(ob.stopConditions, order.ID)
			logging.LogStopTriggered(order.ID, ob.symbol, order.StopPrice.String(), ob.marketPrice.String())
			ob.processOrderLocked(order, conditions)
		}
	}
}

// takeTriggeredLocked removes and returns all triggered stop orders from a
// stop tracker, best-trigger first. The stop ladders are keyed so that the
// tracker's own crossing test against the market price is the trigger test.
func (ob *OrderBook) takeTriggeredLocked(tracker *OrderTracker) []*models.Order {
	if ob.marketPrice.IsZero() {
		return nil
	}
	var ids []uint64
	tracker.eachLevel(func(level *PriceLevel) bool {
		if !tracker.crosses(level.Price, ob.marketPrice) {
			return false
		}
		for element := level.Orders.Front(); element != nil; element = element.Next() {
			ids = append(ids, element.Value.(*models.Order).ID)
		}
		return true
	})

	orders := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		if order, ok := tracker.RemoveOrder(id); ok {
			orders = append(orders, order)
		}
	}
	return orders
}

// ========== Depth & Notifications ==========

// publishDepthLocked rebuilds the depth snapshot from the live trackers
// and fans out book, BBO and per-level depth notifications for whatever
// changed.
func (ob *OrderBook) publishDepthLocked() {
	prevBid, hadBid := ob.depth.BestBid()
	prevAsk, hadAsk := ob.depth.BestAsk()

	changes := ob.depth.Refresh(ob.bidTracker, ob.askTracker)
	if len(changes) == 0 {
		return
	}

	for _, listener := range ob.bookListeners {
		listener.OnOrderBookChange(ob)
	}

	newBid, haveBid := ob.depth.BestBid()
	newAsk, haveAsk := ob.depth.BestAsk()
	bboChanged := hadBid != haveBid || hadAsk != haveAsk ||
		(haveBid && !newBid.Price.Equal(prevBid.Price)) ||
		(haveAsk && !newAsk.Price.Equal(prevAsk.Price))
	if bboChanged {
		// An empty side is reported as nil, never as a zero price.
		var bidPrice, askPrice *decimal.Decimal
		if haveBid {
			p := newBid.Price
			bidPrice = &p
		}
		if haveAsk {
			p := newAsk.Price
			askPrice = &p
		}
		for _, listener := range ob.bookListeners {
			listener.OnBBOChange(ob, bidPrice, askPrice)
		}
	}

	for _, change := range changes {
		for _, listener := range ob.depthListeners {
			listener.OnDepthChange(ob, change)
		}
	}

	metrics.UpdateOrderbookDepth(ob.symbol, "buy", float64(ob.bidTracker.OrderCount()))
	metrics.UpdateOrderbookDepth(ob.symbol, "sell", float64(ob.askTracker.OrderCount()))
	bidPrice, _ := newBid.Price.Float64()
	askPrice, _ := newAsk.Price.Float64()
	metrics.UpdateBestPrices(ob.symbol, bidPrice, askPrice)
}

// ========== Queries ==========

// BestBid returns the highest bid price, or nil if there are no bids.
func (ob *OrderBook) BestBid() *decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bidTracker.BestPrice()
}

// BestAsk returns the lowest ask price, or nil if there are no asks.
func (ob *OrderBook) BestAsk() *decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.askTracker.BestPrice()
}

// MarketPrice returns the book's reference market price.
func (ob *OrderBook) MarketPrice() decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.marketPrice
}

// LastTrade returns the price and quantity of the most recent execution.
func (ob *OrderBook) LastTrade() (decimal.Decimal, decimal.Decimal) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastTradePrice, ob.lastTradeQuantity
}

// GetOrder looks up a resting (non-stop) order by id.
func (ob *OrderBook) GetOrder(orderID uint64) (*models.Order, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if order, ok := ob.bidTracker.GetOrder(orderID); ok {
		return order, true
	}
	return ob.askTracker.GetOrder(orderID)
}

// Size returns the total number of resting orders on both sides.
func (ob *OrderBook) Size() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bidTracker.OrderCount() + ob.askTracker.OrderCount()
}

// DepthSnapshot copies the live depth view: bids and asks, best first.
func (ob *OrderBook) DepthSnapshot() (bids, asks []DepthLevel) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.depth.Bids(), ob.depth.Asks()
}

// Depth exposes the depth tracker for read-side metrics (spread, mid,
// liquidity). Callers must treat it as read-only.
func (ob *OrderBook) Depth() *DepthTracker {
	return ob.depth
}

// Stats returns a point-in-time copy of the book counters without taking
// the book lock.
func (ob *OrderBook) Stats() StatsSnapshot {
	return ob.stats.Snapshot()
}

// DrainPendingTrades returns the accumulated trade executions and clears
// the pending sequence. Consumers own the returned batch.
func (ob *OrderBook) DrainPendingTrades() []TradeExecution {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if len(ob.pendingTrades) == 0 {
		return nil
	}
	drained := make([]TradeExecution, len(ob.pendingTrades))
	copy(drained, ob.pendingTrades)
	ob.pendingTrades = ob.pendingTrades[:0]
	return drained
}

// TakeTradesFor removes and returns the pending trades whose inbound order
// matches the given id. Trades belonging to other orders stay queued, so
// concurrent submitters each collect only their own executions.
func (ob *OrderBook) TakeTradesFor(orderID uint64) []TradeExecution {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var taken []TradeExecution
	kept := ob.pendingTrades[:0]
	for _, trade := range ob.pendingTrades {
		if trade.InboundOrder.ID == orderID {
			taken = append(taken, trade)
		} else {
			kept = append(kept, trade)
		}
	}
	ob.pendingTrades = kept
	return taken
}

// RestoreOrder reinstates a previously accepted order into the book without
// running it through matching or the listener fan-out. Used when rebuilding
// the live book from durable storage; the order keeps its persisted status
// and open quantity. Returns false for orders that are structurally invalid
// or already terminal.
func (ob *OrderBook) RestoreOrder(order *models.Order) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, ok := ob.validateOrder(order); !ok {
		return false
	}
	if order.Status.IsTerminal() || order.IsMarket() {
		// Market orders never rest, so a restorable order is always
		// limit, stop or stop-limit.
		return false
	}

	if order.IsStop() && !ob.stopTriggered(order) {
		ob.queueStopOrderLocked(order, models.NoConditions)
	} else {
		ob.restOrderLocked(order)
	}
	ob.publishDepthLocked()
	return true
}

func (ob *OrderBook) findRestingOrderLocked(orderID uint64) (*models.Order, *OrderTracker) {
	if order, ok := ob.bidTracker.GetOrder(orderID); ok {
		return order, ob.bidTracker
	}
	if order, ok := ob.askTracker.GetOrder(orderID); ok {
		return order, ob.askTracker
	}
	return nil, nil
}
