package websocket

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/engine"
	"github.com/vaasu2002/order-matching-system/models"
)

// Feed bridges engine events onto the WebSocket hub. It implements the
// engine listener interfaces; each callback converts the event to a wire
// message and hands it to the hub through a non-blocking channel send, so
// matching never waits on a slow consumer.
type Feed struct {
	hub      *Hub
	provider *SnapshotProvider
}

// NewFeed creates a feed that broadcasts through hub and records recent
// history in provider.
func NewFeed(hub *Hub, provider *SnapshotProvider) *Feed {
	return &Feed{hub: hub, provider: provider}
}

// OnTrade implements engine.TradeListener.
func (f *Feed) OnTrade(inbound, resting *models.Order, quantity, price decimal.Decimal,
	inboundFilled, restingFilled bool) {
	msg := TradeMessage{
		Symbol:         inbound.Symbol,
		InboundOrderID: inbound.ID,
		RestingOrderID: resting.ID,
		Price:          price,
		Quantity:       quantity,
		Timestamp:      time.Now().Unix(),
	}
	f.provider.recordTrade(msg)
	f.hub.BroadcastTrade(&msg)
}

// OnDepthChange implements engine.DepthListener.
func (f *Feed) OnDepthChange(book *engine.OrderBook, change engine.DepthChange) {
	msg := DepthDeltaMessage{
		Symbol:      book.Symbol(),
		Side:        string(change.Side),
		Level:       change.Level,
		Price:       change.Price,
		OldQuantity: change.OldQuantity,
		NewQuantity: change.NewQuantity,
		OrderCount:  change.NewOrderCount,
		Timestamp:   time.Now().Unix(),
	}
	f.hub.BroadcastDepthDelta(&msg)
}

// OnAccept implements engine.OrderListener.
func (f *Feed) OnAccept(order *models.Order) {
	f.broadcastOrder(order)
}

// OnReject implements engine.OrderListener.
func (f *Feed) OnReject(order *models.Order, reason string) {
	f.broadcastOrder(order)
}

// OnFill implements engine.OrderListener.
func (f *Feed) OnFill(order, matchedOrder *models.Order, quantity, price decimal.Decimal) {
	f.broadcastOrder(order)
}

// OnCancel implements engine.OrderListener.
func (f *Feed) OnCancel(order *models.Order, cancelledQty decimal.Decimal) {
	f.broadcastOrder(order)
}

// OnReplace implements engine.OrderListener.
func (f *Feed) OnReplace(oldOrder, newOrder *models.Order) {
	f.broadcastOrder(newOrder)
}

// OnReplaceReject implements engine.OrderListener.
func (f *Feed) OnReplaceReject(order *models.Order, reason string) {
	f.broadcastOrder(order)
}

func (f *Feed) broadcastOrder(order *models.Order) {
	msg := OrderMessage{
		OrderID:      order.ID,
		ClientID:     order.ClientID,
		Symbol:       order.Symbol,
		Side:         string(order.Side),
		Type:         string(order.Type),
		Status:       string(order.Status),
		Price:        order.Price,
		Quantity:     order.Quantity,
		OpenQuantity: order.OpenQuantity,
		Timestamp:    time.Now().Unix(),
	}
	f.provider.recordOrder(msg)
	f.hub.BroadcastOrder(&msg)
}
