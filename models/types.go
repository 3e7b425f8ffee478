package models

import (
	"github.com/shopspring/decimal"
)

// OrderSide represents the side of an order (buy or sell)
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of order
type OrderType string

const (
	OrderTypeLimit     OrderType = "limit"      // executes at a specified price or better
	OrderTypeMarket    OrderType = "market"     // executes immediately at best available price
	OrderTypeStop      OrderType = "stop"       // converts to a market order once the trigger price is hit
	OrderTypeStopLimit OrderType = "stop_limit" // converts to a limit order once the trigger price is hit
)

// TimeInForce controls how long an order remains eligible for matching
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // good till cancelled
	TimeInForceIOC TimeInForce = "IOC" // immediate or cancel: unfilled remainder is cancelled
	TimeInForceFOK TimeInForce = "FOK" // fill or kill: all-or-nothing, immediately
	TimeInForceDay TimeInForce = "DAY" // active for the trading day
)

// OrderStatus represents the current lifecycle state of an order.
// The lifecycle moves strictly forward:
// PENDING -> ACCEPTED -> {PARTIALLY_FILLED -> ... -> FILLED} with
// CANCELLED, REJECTED and REPLACED as the remaining terminal states.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusReplaced        OrderStatus = "replaced"
)

// IsTerminal reports whether no further transitions may leave this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusReplaced:
		return true
	}
	return false
}

// OrderConditions is a bitmask of special execution constraints.
// Multiple conditions can be combined; FOK is AON|IOC.
type OrderConditions uint32

const (
	NoConditions     OrderConditions = 0
	ConditionAON     OrderConditions = 1 << 0 // all-or-none: fill completely or not at all
	ConditionIOC     OrderConditions = 1 << 1 // immediate-or-cancel
	ConditionFOK     OrderConditions = ConditionAON | ConditionIOC
	ConditionHidden  OrderConditions = 1 << 2 // not displayed in the public book
	ConditionIceberg OrderConditions = 1 << 3 // only a portion of the quantity displayed
)

// IsAllOrNone reports whether the all-or-none bit is set.
func (c OrderConditions) IsAllOrNone() bool {
	return c&ConditionAON != 0
}

// IsImmediateOrCancel reports whether the immediate-or-cancel bit is set.
func (c OrderConditions) IsImmediateOrCancel() bool {
	return c&ConditionIOC != 0
}

// IsFillOrKill reports whether both AON and IOC bits are set.
func (c OrderConditions) IsFillOrKill() bool {
	return c&ConditionFOK == ConditionFOK
}

// FillFlags is a bitmask describing the characteristics of one trade fill.
type FillFlags uint32

const (
	FillNormal     FillFlags = 0
	FillAggressive FillFlags = 1 << 0 // the order actively removed liquidity
	FillPassive    FillFlags = 1 << 1 // the order provided liquidity by resting
	FillPartial    FillFlags = 1 << 2 // fill covered part of the order's quantity
	FillComplete   FillFlags = 1 << 3 // fill fully satisfied the order's quantity
)

// MarketPrice is the sentinel limit price of a market order: "no limit",
// never a real price. Trackers treat it as disabling the crossing test.
var MarketPrice = decimal.Zero

// Sentinel values for ReplaceOrder meaning "leave this field alone".
var (
	PriceUnchanged = decimal.NewFromInt(-1)
	SizeUnchanged  = decimal.NewFromInt(-1)
)
