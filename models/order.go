package models

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a trading order: immutable identity plus mutable
// execution state. Quantity invariant: 0 <= OpenQuantity <= Quantity,
// held at all times. OpenQuantity only ever decreases.
//
// Ownership is shared: the tracker that indexes the order and any
// in-flight trade execution record hold the same *Order, so the order
// stays valid after removal from its price level for as long as a trade
// record references it.
type Order struct {
	ID           uint64          `json:"id"`
	ClientID     string          `json:"client_id"`
	Symbol       string          `json:"symbol"`
	Side         OrderSide       `json:"side"`
	Type         OrderType       `json:"type"`
	TimeInForce  TimeInForce     `json:"time_in_force"`
	Price        decimal.Decimal `json:"price"`
	StopPrice    decimal.Decimal `json:"stop_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	OpenQuantity decimal.Decimal `json:"open_quantity"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewOrder creates a new order in PENDING state with the full quantity open.
func NewOrder(id uint64, clientID, symbol string, side OrderSide, orderType OrderType, price, quantity decimal.Decimal) *Order {
	return &Order{
		ID:           id,
		ClientID:     clientID,
		Symbol:       symbol,
		Side:         side,
		Type:         orderType,
		TimeInForce:  TimeInForceGTC,
		Price:        price,
		StopPrice:    decimal.Zero,
		Quantity:     quantity,
		OpenQuantity: quantity,
		Status:       OrderStatusPending,
		CreatedAt:    time.Now(),
	}
}

// NewStopOrder creates a stop or stop-limit order with a trigger price.
func NewStopOrder(id uint64, clientID, symbol string, side OrderSide, orderType OrderType, price, stopPrice, quantity decimal.Decimal) *Order {
	o := NewOrder(id, clientID, symbol, side, orderType, price, quantity)
	o.StopPrice = stopPrice
	return o
}

func (o *Order) IsBuy() bool    { return o.Side == OrderSideBuy }
func (o *Order) IsSell() bool   { return o.Side == OrderSideSell }
func (o *Order) IsMarket() bool { return o.Type == OrderTypeMarket }
func (o *Order) IsLimit() bool  { return o.Type == OrderTypeLimit }

// IsStop reports whether the order rests in a stop tracker until triggered.
func (o *Order) IsStop() bool {
	return o.Type == OrderTypeStop || o.Type == OrderTypeStopLimit
}

// FilledQuantity returns how much of the order has been executed.
func (o *Order) FilledQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.OpenQuantity)
}

// IsFilled checks if the order is completely filled.
func (o *Order) IsFilled() bool {
	return o.OpenQuantity.IsZero()
}

// IsPartiallyFilled checks if the order has some but not all quantity executed.
func (o *Order) IsPartiallyFilled() bool {
	return o.OpenQuantity.GreaterThan(decimal.Zero) && o.OpenQuantity.LessThan(o.Quantity)
}

// Fill decrements the open quantity and moves the status forward.
// The caller guarantees quantity <= OpenQuantity.
func (o *Order) Fill(quantity decimal.Decimal) {
	o.OpenQuantity = o.OpenQuantity.Sub(quantity)
	if o.IsFilled() {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}

// Cancel marks the order as cancelled. Open quantity is left as-is so a
// partial-fill-then-cancel remains distinguishable from a full fill.
func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
}

// Reject marks the order as rejected.
func (o *Order) Reject() {
	o.Status = OrderStatusRejected
}

// IDGenerator hands out unique, monotonically increasing order ids.
type IDGenerator struct {
	next atomic.Uint64
}

// NewIDGenerator creates a generator that starts after the given seed.
func NewIDGenerator(seed uint64) *IDGenerator {
	g := &IDGenerator{}
	g.next.Store(seed)
	return g
}

// Next returns the next unused order id.
func (g *IDGenerator) Next() uint64 {
	return g.next.Add(1)
}
