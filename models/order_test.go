package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewOrderDefaults(t *testing.T) {
	order := NewOrder(1, "client1", "BTC-USD", OrderSideBuy, OrderTypeLimit,
		decimal.NewFromInt(50000), decimal.NewFromInt(10))

	if order.Status != OrderStatusPending {
		t.Errorf("Expected status pending, got %s", order.Status)
	}
	if !order.OpenQuantity.Equal(order.Quantity) {
		t.Errorf("Expected open quantity %s, got %s", order.Quantity, order.OpenQuantity)
	}
	if order.TimeInForce != TimeInForceGTC {
		t.Errorf("Expected GTC time in force, got %s", order.TimeInForce)
	}
	if order.CreatedAt.IsZero() {
		t.Error("Expected creation timestamp to be set")
	}
}

func TestOrderFillTransitions(t *testing.T) {
	order := NewOrder(2, "client1", "BTC-USD", OrderSideSell, OrderTypeLimit,
		decimal.NewFromInt(100), decimal.NewFromInt(10))

	order.Fill(decimal.NewFromInt(4))
	if order.Status != OrderStatusPartiallyFilled {
		t.Errorf("Expected partially_filled after partial fill, got %s", order.Status)
	}
	if !order.OpenQuantity.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected open quantity 6, got %s", order.OpenQuantity)
	}
	if !order.FilledQuantity().Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected filled quantity 4, got %s", order.FilledQuantity())
	}

	order.Fill(decimal.NewFromInt(6))
	if order.Status != OrderStatusFilled {
		t.Errorf("Expected filled after complete fill, got %s", order.Status)
	}
	if !order.IsFilled() {
		t.Error("Expected IsFilled to be true")
	}
}

func TestOrderCancelKeepsOpenQuantity(t *testing.T) {
	order := NewOrder(3, "client1", "BTC-USD", OrderSideBuy, OrderTypeMarket,
		MarketPrice, decimal.NewFromInt(5))

	order.Cancel()
	if order.Status != OrderStatusCancelled {
		t.Errorf("Expected cancelled, got %s", order.Status)
	}
	if !order.OpenQuantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Cancel must not touch open quantity, got %s", order.OpenQuantity)
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusReplaced}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
	active := []OrderStatus{OrderStatusPending, OrderStatusAccepted, OrderStatusPartiallyFilled}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("Expected %s to be non-terminal", s)
		}
	}
}

func TestOrderConditions(t *testing.T) {
	if !ConditionFOK.IsAllOrNone() || !ConditionFOK.IsImmediateOrCancel() {
		t.Error("FOK must imply both AON and IOC")
	}
	if ConditionAON.IsFillOrKill() {
		t.Error("AON alone is not FOK")
	}
	if NoConditions.IsAllOrNone() {
		t.Error("NoConditions must not set AON")
	}
}

func TestStopOrderTrigger(t *testing.T) {
	order := NewStopOrder(4, "client1", "BTC-USD", OrderSideSell, OrderTypeStopLimit,
		decimal.NewFromInt(95), decimal.NewFromInt(98), decimal.NewFromInt(3))

	if !order.IsStop() {
		t.Error("Expected stop-limit order to report IsStop")
	}
	if !order.StopPrice.Equal(decimal.NewFromInt(98)) {
		t.Errorf("Expected stop price 98, got %s", order.StopPrice)
	}
}

func TestIDGenerator(t *testing.T) {
	gen := NewIDGenerator(100)
	first := gen.Next()
	second := gen.Next()
	if first != 101 || second != 102 {
		t.Errorf("Expected 101, 102 got %d, %d", first, second)
	}
}
