package engine

import (
	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/models"
)

// OrderListener receives order lifecycle events. Embed NoopOrderListener
// to subscribe to a subset.
//
// Dispatch is a synchronous fan-out under the same critical section as the
// triggering mutation, so notification order matches mutation order.
// Listener implementations must not call back into the book.
type OrderListener interface {
	OnAccept(order *models.Order)
	OnReject(order *models.Order, reason string)
	OnFill(order, matchedOrder *models.Order, quantity, price decimal.Decimal)
	OnCancel(order *models.Order, cancelledQty decimal.Decimal)
	OnReplace(oldOrder, newOrder *models.Order)
	OnReplaceReject(order *models.Order, reason string)
}

// TradeListener receives one call per executed trade with both participant
// orders and fill-completeness for each side.
type TradeListener interface {
	OnTrade(inbound, resting *models.Order, quantity, price decimal.Decimal,
		inboundFilled, restingFilled bool)
}

// BookListener receives whole-book and best-bid/ask change events. A nil
// bid or ask means that side of the book is empty.
type BookListener interface {
	OnOrderBookChange(book *OrderBook)
	OnBBOChange(book *OrderBook, bid, ask *decimal.Decimal)
}

// DepthListener receives one call per changed depth level.
type DepthListener interface {
	OnDepthChange(book *OrderBook, change DepthChange)
}

// NoopOrderListener is a safe do-nothing OrderListener base.
type NoopOrderListener struct{}

func (NoopOrderListener) OnAccept(*models.Order)                          {}
func (NoopOrderListener) OnReject(*models.Order, string)                  {}
func (NoopOrderListener) OnFill(_, _ *models.Order, _, _ decimal.Decimal) {}
func (NoopOrderListener) OnCancel(*models.Order, decimal.Decimal)         {}
func (NoopOrderListener) OnReplace(_, _ *models.Order)                    {}
func (NoopOrderListener) OnReplaceReject(*models.Order, string)           {}

// NoopBookListener is a safe do-nothing BookListener base.
type NoopBookListener struct{}

func (NoopBookListener) OnOrderBookChange(*OrderBook)                               {}
func (NoopBookListener) OnBBOChange(*OrderBook, *decimal.Decimal, *decimal.Decimal) {}
