package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaasu2002/order-matching-system/logging"
	"github.com/vaasu2002/order-matching-system/models"
)

// OrderEventType represents the type of order event
type OrderEventType string

const (
	OrderEventAccepted      OrderEventType = "ORDER_ACCEPTED"
	OrderEventRejected      OrderEventType = "ORDER_REJECTED"
	OrderEventFilled        OrderEventType = "ORDER_FILLED"
	OrderEventCancelled     OrderEventType = "ORDER_CANCELLED"
	OrderEventReplaced      OrderEventType = "ORDER_REPLACED"
	OrderEventReplaceReject OrderEventType = "ORDER_REPLACE_REJECTED"
)

// OrderEvent is one immutable entry in the order lifecycle journal.
type OrderEvent struct {
	EventID        int64
	OrderID        uint64
	EventType      OrderEventType
	EventData      map[string]interface{}
	EventTimestamp time.Time
}

type journalEntry struct {
	orderID   uint64
	eventType OrderEventType
	data      map[string]interface{}
	timestamp time.Time

	// Current order state to mirror into the orders table, nil when the
	// event carries no state change worth mirroring.
	orderState *models.Order
}

// OrderEventStore journals every order lifecycle event and mirrors the
// order's current state into the orders table. It implements
// engine.OrderListener.
//
// Listener callbacks run inside the book's critical section, so they only
// enqueue; a background worker does the database I/O. A full queue drops
// the journal entry rather than stall matching, and the drop is logged.
type OrderEventStore struct {
	store *PostgresStore
	queue chan journalEntry
	done  chan struct{}
}

// NewOrderEventStore creates the journal and starts its worker.
func NewOrderEventStore(store *PostgresStore) *OrderEventStore {
	oes := &OrderEventStore{
		store: store,
		queue: make(chan journalEntry, 4096),
		done:  make(chan struct{}),
	}
	go oes.run()
	return oes
}

// Close stops the background worker after the queue drains.
func (oes *OrderEventStore) Close() {
	close(oes.queue)
	<-oes.done
}

func (oes *OrderEventStore) run() {
	defer close(oes.done)
	for entry := range oes.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := oes.writeEvent(ctx, entry); err != nil {
			logging.LogStoreError("write_order_event", err)
		}
		if entry.orderState != nil {
			if err := oes.store.UpsertOrder(ctx, entry.orderState); err != nil {
				logging.LogStoreError("upsert_order", err)
			}
		}
		cancel()
	}
}

func (oes *OrderEventStore) writeEvent(ctx context.Context, entry journalEntry) error {
	payload, err := json.Marshal(entry.data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO order_events (order_id, event_type, event_data, event_timestamp)
		VALUES ($1, $2, $3, $4)
	`
	_, err = oes.store.db.ExecContext(ctx, query,
		int64(entry.orderID),
		string(entry.eventType),
		payload,
		entry.timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}
	return nil
}

func (oes *OrderEventStore) enqueue(entry journalEntry) {
	select {
	case oes.queue <- entry:
	default:
		logging.LogStoreError("journal_enqueue",
			fmt.Errorf("journal queue full, dropping %s for order %d", entry.eventType, entry.orderID))
	}
}

func snapshotOrder(order *models.Order) *models.Order {
	copied := *order
	return &copied
}

// OnAccept implements engine.OrderListener.
func (oes *OrderEventStore) OnAccept(order *models.Order) {
	oes.enqueue(journalEntry{
		orderID:   order.ID,
		eventType: OrderEventAccepted,
		data: map[string]interface{}{
			"client_id": order.ClientID,
			"symbol":    order.Symbol,
			"side":      string(order.Side),
			"type":      string(order.Type),
			"price":     order.Price.String(),
			"quantity":  order.Quantity.String(),
		},
		timestamp:  time.Now(),
		orderState: snapshotOrder(order),
	})
}

// OnReject implements engine.OrderListener.
func (oes *OrderEventStore) OnReject(order *models.Order, reason string) {
	oes.enqueue(journalEntry{
		orderID:   order.ID,
		eventType: OrderEventRejected,
		data: map[string]interface{}{
			"reason": reason,
			"status": string(order.Status),
		},
		timestamp: time.Now(),
	})
}

// OnFill implements engine.OrderListener. Called once per side of each
// execution.
func (oes *OrderEventStore) OnFill(order, matchedOrder *models.Order, quantity, price decimal.Decimal) {
	oes.enqueue(journalEntry{
		orderID:   order.ID,
		eventType: OrderEventFilled,
		data: map[string]interface{}{
			"matched_order_id": matchedOrder.ID,
			"fill_quantity":    quantity.String(),
			"fill_price":       price.String(),
			"open_quantity":    order.OpenQuantity.String(),
			"status":           string(order.Status),
		},
		timestamp:  time.Now(),
		orderState: snapshotOrder(order),
	})
}

// OnCancel implements engine.OrderListener.
func (oes *OrderEventStore) OnCancel(order *models.Order, cancelledQty decimal.Decimal) {
	oes.enqueue(journalEntry{
		orderID:   order.ID,
		eventType: OrderEventCancelled,
		data: map[string]interface{}{
			"cancelled_quantity": cancelledQty.String(),
			"status":             string(order.Status),
		},
		timestamp:  time.Now(),
		orderState: snapshotOrder(order),
	})
}

// OnReplace implements engine.OrderListener.
func (oes *OrderEventStore) OnReplace(oldOrder, newOrder *models.Order) {
	oes.enqueue(journalEntry{
		orderID:   oldOrder.ID,
		eventType: OrderEventReplaced,
		data: map[string]interface{}{
			"old_price":    oldOrder.Price.String(),
			"new_price":    newOrder.Price.String(),
			"old_quantity": oldOrder.Quantity.String(),
			"new_quantity": newOrder.Quantity.String(),
		},
		timestamp:  time.Now(),
		orderState: snapshotOrder(newOrder),
	})
}

// OnReplaceReject implements engine.OrderListener.
func (oes *OrderEventStore) OnReplaceReject(order *models.Order, reason string) {
	oes.enqueue(journalEntry{
		orderID:   order.ID,
		eventType: OrderEventReplaceReject,
		data: map[string]interface{}{
			"reason": reason,
		},
		timestamp: time.Now(),
	})
}

// GetOrderHistory retrieves all journal entries for an order, oldest first.
func (oes *OrderEventStore) GetOrderHistory(ctx context.Context, orderID uint64) ([]*OrderEvent, error) {
	query := `
		SELECT event_id, order_id, event_type, event_data, event_timestamp
		FROM order_events
		WHERE order_id = $1
		ORDER BY event_id ASC
	`

	rows, err := oes.store.db.QueryContext(ctx, query, int64(orderID))
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []*OrderEvent
	for rows.Next() {
		var event OrderEvent
		var id int64
		var eventDataJSON []byte

		err := rows.Scan(
			&event.EventID,
			&id,
			&event.EventType,
			&eventDataJSON,
			&event.EventTimestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.OrderID = uint64(id)

		if err := json.Unmarshal(eventDataJSON, &event.EventData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}

		events = append(events, &event)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// TradeJournal persists executions. It implements engine.TradeListener with
// the same enqueue-and-drain pattern as the order journal.
type TradeJournal struct {
	store *PostgresStore
	queue chan *TradeRecord
	done  chan struct{}
}

// NewTradeJournal creates the journal and starts its worker.
func NewTradeJournal(store *PostgresStore) *TradeJournal {
	tj := &TradeJournal{
		store: store,
		queue: make(chan *TradeRecord, 4096),
		done:  make(chan struct{}),
	}
	go tj.run()
	return tj
}

// Close stops the background worker after the queue drains.
func (tj *TradeJournal) Close() {
	close(tj.queue)
	<-tj.done
}

func (tj *TradeJournal) run() {
	defer close(tj.done)
	for record := range tj.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tj.store.PersistTrade(ctx, record); err != nil {
			logging.LogStoreError("persist_trade", err)
		}
		cancel()
	}
}

// OnTrade implements engine.TradeListener.
func (tj *TradeJournal) OnTrade(inbound, resting *models.Order, quantity, price decimal.Decimal,
	inboundFilled, restingFilled bool) {
	record := &TradeRecord{
		TradeID:        uuid.New(),
		InboundOrderID: inbound.ID,
		RestingOrderID: resting.ID,
		Symbol:         inbound.Symbol,
		Price:          price,
		Quantity:       quantity,
		Timestamp:      time.Now(),
	}
	select {
	case tj.queue <- record:
	default:
		logging.LogStoreError("trade_enqueue",
			fmt.Errorf("trade queue full, dropping trade %s", record.TradeID))
	}
}

// HealthCheck verifies the database connection is alive.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}
