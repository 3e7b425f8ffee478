package engine

import (
	"container/list"

	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/models"
)

// PriceLevel groups all active orders resting at the same price, FIFO by
// arrival time, with cached aggregates kept consistent with every mutation
// of its member orders' open quantity.
//
// Invariant: TotalQuantity equals the sum of the members' open quantities
// and OrderCount equals the member count. A level with zero members is
// logically absent and must be evicted by its owning tracker.
type PriceLevel struct {
	Price         decimal.Decimal
	Orders        *list.List // of *models.Order, FIFO
	TotalQuantity decimal.Decimal
}

// NewPriceLevel creates an empty price level at the given price.
func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Price:         price,
		Orders:        list.New(),
		TotalQuantity: decimal.Zero,
	}
}

// AddOrder appends the order to the FIFO tail and returns its element
// handle. The handle stays valid across removals of other orders, which is
// what lets the tracker index cancel in O(1).
func (pl *PriceLevel) AddOrder(order *models.Order) *list.Element {
	pl.TotalQuantity = pl.TotalQuantity.Add(order.OpenQuantity)
	return pl.Orders.PushBack(order)
}

// RemoveOrder removes the member behind the element handle and decrements
// the aggregate by that order's current open quantity.
func (pl *PriceLevel) RemoveOrder(element *list.Element) {
	if element == nil {
		return
	}
	order := element.Value.(*models.Order)
	pl.TotalQuantity = pl.TotalQuantity.Sub(order.OpenQuantity)
	pl.Orders.Remove(element)
}

// UpdateQuantity adjusts the aggregate total by the delta between an
// order's old and new open quantity. Used by order-modify flows.
func (pl *PriceLevel) UpdateQuantity(oldQty, newQty decimal.Decimal) {
	pl.TotalQuantity = pl.TotalQuantity.Add(newQty.Sub(oldQty))
}

// Fill consumes orders from the FIFO head up to maxQuantity. Each order is
// filled by min(open, remaining); fully filled orders are marked FILLED and
// evicted, a partially consumed order is marked PARTIALLY_FILLED and
// consumption stops there. Returns the total quantity filled.
//
// This is price-time priority within a level: earlier orders are always
// exhausted before later ones receive any fill.
func (pl *PriceLevel) Fill(maxQuantity decimal.Decimal) decimal.Decimal {
	filled := decimal.Zero

	element := pl.Orders.Front()
	for element != nil && filled.LessThan(maxQuantity) {
		next := element.Next()
		order := element.Value.(*models.Order)

		fillQty := decimal.Min(order.OpenQuantity, maxQuantity.Sub(filled))
		order.Fill(fillQty)
		filled = filled.Add(fillQty)
		pl.TotalQuantity = pl.TotalQuantity.Sub(fillQty)

		if order.IsFilled() {
			pl.Orders.Remove(element)
		}
		element = next
	}
	return filled
}

// FrontOrder returns the first order in FIFO order, or nil if empty.
func (pl *PriceLevel) FrontOrder() *models.Order {
	front := pl.Orders.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*models.Order)
}

// OrderCount returns the number of orders resting at this level.
func (pl *PriceLevel) OrderCount() int {
	return pl.Orders.Len()
}

// IsEmpty reports whether the level has no members and should be evicted.
func (pl *PriceLevel) IsEmpty() bool {
	return pl.Orders.Len() == 0
}
