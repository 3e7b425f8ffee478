package websocket

import (
	"github.com/shopspring/decimal"
)

type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type ClientMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}

type DepthDeltaMessage struct {
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Level       int             `json:"level"`
	Price       decimal.Decimal `json:"price"`
	OldQuantity decimal.Decimal `json:"old_quantity"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	OrderCount  int             `json:"order_count"`
	Timestamp   int64           `json:"timestamp"`
}

type TradeMessage struct {
	Symbol         string          `json:"symbol"`
	InboundOrderID uint64          `json:"inbound_order_id"`
	RestingOrderID uint64          `json:"resting_order_id"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Timestamp      int64           `json:"timestamp"`
}

type OrderMessage struct {
	OrderID      uint64          `json:"order_id"`
	ClientID     string          `json:"client_id"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	OpenQuantity decimal.Decimal `json:"open_quantity"`
	Timestamp    int64           `json:"timestamp"`
}

type BookSnapshot struct {
	Symbol    string          `json:"symbol"`
	Bids      []SnapshotLevel `json:"bids"`
	Asks      []SnapshotLevel `json:"asks"`
	Timestamp int64           `json:"timestamp"`
}

type SnapshotLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderCount int             `json:"order_count"`
}
